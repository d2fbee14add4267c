package system

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/types"
)

// System Program instruction discriminators (first 4 bytes of instruction data)
const (
	InstructionCreateAccount uint32 = 0
	InstructionAssign        uint32 = 1
	InstructionTransfer      uint32 = 2
	InstructionAllocate      uint32 = 8
)

// CreateAccountInstruction creates a new account with the specified
// lamports, space, and owner.
type CreateAccountInstruction struct {
	Lamports uint64       // Amount of lamports to transfer to the new account
	Space    uint64       // Amount of space in bytes to allocate
	Owner    types.Pubkey // Program that will own the new account
}

// Decode decodes a CreateAccount instruction from bytes.
func (inst *CreateAccountInstruction) Decode(data []byte) error {
	// Data layout: lamports (8 bytes) + space (8 bytes) + owner (32 bytes) = 48 bytes
	if len(data) < 48 {
		return fmt.Errorf("%w: CreateAccount requires 48 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	inst.Lamports = binary.LittleEndian.Uint64(data[0:8])
	inst.Space = binary.LittleEndian.Uint64(data[8:16])
	copy(inst.Owner[:], data[16:48])
	return nil
}

// Encode encodes a CreateAccount instruction to bytes.
func (inst *CreateAccountInstruction) Encode() []byte {
	data := make([]byte, 4+48) // discriminator + instruction data
	binary.LittleEndian.PutUint32(data[0:4], InstructionCreateAccount)
	binary.LittleEndian.PutUint64(data[4:12], inst.Lamports)
	binary.LittleEndian.PutUint64(data[12:20], inst.Space)
	copy(data[20:52], inst.Owner[:])
	return data
}

// AssignInstruction changes the owner of an account.
type AssignInstruction struct {
	Owner types.Pubkey // New owner program
}

// Decode decodes an Assign instruction from bytes.
func (inst *AssignInstruction) Decode(data []byte) error {
	// Data layout: owner (32 bytes)
	if len(data) < 32 {
		return fmt.Errorf("%w: Assign requires 32 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	copy(inst.Owner[:], data[0:32])
	return nil
}

// Encode encodes an Assign instruction to bytes.
func (inst *AssignInstruction) Encode() []byte {
	data := make([]byte, 4+32)
	binary.LittleEndian.PutUint32(data[0:4], InstructionAssign)
	copy(data[4:36], inst.Owner[:])
	return data
}

// TransferInstruction transfers lamports between accounts.
type TransferInstruction struct {
	Lamports uint64 // Amount of lamports to transfer
}

// Decode decodes a Transfer instruction from bytes.
func (inst *TransferInstruction) Decode(data []byte) error {
	// Data layout: lamports (8 bytes)
	if len(data) < 8 {
		return fmt.Errorf("%w: Transfer requires 8 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	inst.Lamports = binary.LittleEndian.Uint64(data[0:8])
	return nil
}

// Encode encodes a Transfer instruction to bytes.
func (inst *TransferInstruction) Encode() []byte {
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:4], InstructionTransfer)
	binary.LittleEndian.PutUint64(data[4:12], inst.Lamports)
	return data
}

// AllocateInstruction allocates space in an account's data.
type AllocateInstruction struct {
	Space uint64 // Amount of space in bytes to allocate
}

// Decode decodes an Allocate instruction from bytes.
func (inst *AllocateInstruction) Decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: Allocate requires 8 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	inst.Space = binary.LittleEndian.Uint64(data[0:8])
	return nil
}

// Encode encodes an Allocate instruction to bytes.
func (inst *AllocateInstruction) Encode() []byte {
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:4], InstructionAllocate)
	binary.LittleEndian.PutUint64(data[4:12], inst.Space)
	return data
}

// ParseInstructionDiscriminator extracts the instruction discriminator from instruction data.
func ParseInstructionDiscriminator(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("%w: instruction data too short", ErrInvalidInstructionData)
	}
	return binary.LittleEndian.Uint32(data[0:4]), nil
}
