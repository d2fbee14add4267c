package token

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/types"
)

// Token Program instruction discriminators (first byte of instruction data)
const (
	InstructionInitializeMint     uint8 = 0
	InstructionTransfer           uint8 = 3
	InstructionMintTo             uint8 = 7
	InstructionBurn               uint8 = 8
	InstructionTransferChecked    uint8 = 12
	InstructionMintToChecked      uint8 = 14
	InstructionInitializeAccount3 uint8 = 18
	InstructionInitializeMint2    uint8 = 20
)

// InitializeMintInstruction initializes a new mint.
// Accounts:
//
//	[0] mint (writable) - The mint to initialize
type InitializeMintInstruction struct {
	Decimals        uint8         // Number of decimal places
	MintAuthority   types.Pubkey  // Authority allowed to mint tokens
	FreezeAuthority *types.Pubkey // Optional authority to freeze accounts
}

// Decode decodes an InitializeMint instruction from bytes.
func (inst *InitializeMintInstruction) Decode(data []byte) error {
	// Layout: decimals (1) + mint_authority (32) + freeze_authority_tag (1)
	// + freeze_authority (32, present when tag == 1)
	if len(data) < 34 {
		return fmt.Errorf("%w: InitializeMint requires at least 34 bytes, got %d",
			ErrInvalidInstructionData, len(data))
	}

	inst.Decimals = data[0]
	copy(inst.MintAuthority[:], data[1:33])
	inst.FreezeAuthority = nil

	if data[33] == 1 {
		if len(data) < 66 {
			return fmt.Errorf("%w: InitializeMint with freeze authority requires 66 bytes",
				ErrInvalidInstructionData)
		}
		freezeAuth := types.Pubkey{}
		copy(freezeAuth[:], data[34:66])
		inst.FreezeAuthority = &freezeAuth
	}

	return nil
}

// Encode encodes an InitializeMint instruction to bytes using the
// InitializeMint2 discriminator (no rent sysvar account required).
func (inst *InitializeMintInstruction) Encode() []byte {
	var data []byte
	if inst.FreezeAuthority != nil {
		data = make([]byte, 1+66)
		data[0] = InstructionInitializeMint2
		data[1] = inst.Decimals
		copy(data[2:34], inst.MintAuthority[:])
		data[34] = 1
		copy(data[35:67], inst.FreezeAuthority[:])
	} else {
		data = make([]byte, 1+34)
		data[0] = InstructionInitializeMint2
		data[1] = inst.Decimals
		copy(data[2:34], inst.MintAuthority[:])
	}
	return data
}

// InitializeAccount3Instruction initializes a token account, with the
// owner carried in instruction data rather than as an account.
// Accounts:
//
//	[0] account (writable) - The account to initialize
//	[1] mint - The mint for this account
type InitializeAccount3Instruction struct {
	Owner types.Pubkey // Owner of the new token account
}

// Decode decodes an InitializeAccount3 instruction from bytes.
func (inst *InitializeAccount3Instruction) Decode(data []byte) error {
	if len(data) < 32 {
		return fmt.Errorf("%w: InitializeAccount3 requires 32 bytes, got %d",
			ErrInvalidInstructionData, len(data))
	}
	copy(inst.Owner[:], data[0:32])
	return nil
}

// Encode encodes an InitializeAccount3 instruction to bytes.
func (inst *InitializeAccount3Instruction) Encode() []byte {
	data := make([]byte, 1+32)
	data[0] = InstructionInitializeAccount3
	copy(data[1:33], inst.Owner[:])
	return data
}

// TransferInstruction transfers tokens between accounts.
// Accounts:
//
//	[0] source (writable)
//	[1] destination (writable)
//	[2] authority (signer) - Source owner or delegate
type TransferInstruction struct {
	Amount uint64 // Amount in base units
}

// Decode decodes a Transfer instruction from bytes.
func (inst *TransferInstruction) Decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: Transfer requires 8 bytes, got %d",
			ErrInvalidInstructionData, len(data))
	}
	inst.Amount = binary.LittleEndian.Uint64(data[0:8])
	return nil
}

// Encode encodes a Transfer instruction to bytes.
func (inst *TransferInstruction) Encode() []byte {
	data := make([]byte, 1+8)
	data[0] = InstructionTransfer
	binary.LittleEndian.PutUint64(data[1:9], inst.Amount)
	return data
}

// MintToInstruction mints new tokens to an account.
// Accounts:
//
//	[0] mint (writable)
//	[1] destination (writable)
//	[2] mint_authority (signer)
type MintToInstruction struct {
	Amount uint64 // Amount in base units
}

// Decode decodes a MintTo instruction from bytes.
func (inst *MintToInstruction) Decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: MintTo requires 8 bytes, got %d",
			ErrInvalidInstructionData, len(data))
	}
	inst.Amount = binary.LittleEndian.Uint64(data[0:8])
	return nil
}

// Encode encodes a MintTo instruction to bytes.
func (inst *MintToInstruction) Encode() []byte {
	data := make([]byte, 1+8)
	data[0] = InstructionMintTo
	binary.LittleEndian.PutUint64(data[1:9], inst.Amount)
	return data
}

// BurnInstruction burns tokens from an account.
// Accounts:
//
//	[0] source (writable)
//	[1] mint (writable)
//	[2] authority (signer) - Source owner or delegate
type BurnInstruction struct {
	Amount uint64 // Amount in base units
}

// Decode decodes a Burn instruction from bytes.
func (inst *BurnInstruction) Decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: Burn requires 8 bytes, got %d",
			ErrInvalidInstructionData, len(data))
	}
	inst.Amount = binary.LittleEndian.Uint64(data[0:8])
	return nil
}

// Encode encodes a Burn instruction to bytes.
func (inst *BurnInstruction) Encode() []byte {
	data := make([]byte, 1+8)
	data[0] = InstructionBurn
	binary.LittleEndian.PutUint64(data[1:9], inst.Amount)
	return data
}

// TransferCheckedInstruction transfers tokens with a decimals check, so a
// caller cannot silently move amounts scaled for the wrong mint.
// Accounts:
//
//	[0] source (writable)
//	[1] mint
//	[2] destination (writable)
//	[3] authority (signer)
type TransferCheckedInstruction struct {
	Amount   uint64 // Amount in base units
	Decimals uint8  // Expected mint decimals
}

// Decode decodes a TransferChecked instruction from bytes.
func (inst *TransferCheckedInstruction) Decode(data []byte) error {
	if len(data) < 9 {
		return fmt.Errorf("%w: TransferChecked requires 9 bytes, got %d",
			ErrInvalidInstructionData, len(data))
	}
	inst.Amount = binary.LittleEndian.Uint64(data[0:8])
	inst.Decimals = data[8]
	return nil
}

// Encode encodes a TransferChecked instruction to bytes.
func (inst *TransferCheckedInstruction) Encode() []byte {
	data := make([]byte, 1+9)
	data[0] = InstructionTransferChecked
	binary.LittleEndian.PutUint64(data[1:9], inst.Amount)
	data[9] = inst.Decimals
	return data
}

// MintToCheckedInstruction mints tokens with a decimals check.
// Accounts:
//
//	[0] mint (writable)
//	[1] destination (writable)
//	[2] mint_authority (signer)
type MintToCheckedInstruction struct {
	Amount   uint64 // Amount in base units
	Decimals uint8  // Expected mint decimals
}

// Decode decodes a MintToChecked instruction from bytes.
func (inst *MintToCheckedInstruction) Decode(data []byte) error {
	if len(data) < 9 {
		return fmt.Errorf("%w: MintToChecked requires 9 bytes, got %d",
			ErrInvalidInstructionData, len(data))
	}
	inst.Amount = binary.LittleEndian.Uint64(data[0:8])
	inst.Decimals = data[8]
	return nil
}

// Encode encodes a MintToChecked instruction to bytes.
func (inst *MintToCheckedInstruction) Encode() []byte {
	data := make([]byte, 1+9)
	data[0] = InstructionMintToChecked
	binary.LittleEndian.PutUint64(data[1:9], inst.Amount)
	data[9] = inst.Decimals
	return data
}

// ParseInstructionDiscriminator extracts the instruction discriminator from instruction data.
func ParseInstructionDiscriminator(data []byte) (uint8, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("%w: instruction data too short", ErrInvalidInstructionData)
	}
	return data[0], nil
}
