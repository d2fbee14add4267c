// Package metadata implements the token metadata program for X1-Stratus.
//
// Metadata accounts live at a program-derived address keyed by the mint
// (seeds ["metadata", program_id, mint]), so there is exactly one
// metadata account per mint and its address is computable by any client.
// The account is funded and allocated through a System Program CPI, with
// the derived address signing via seeds.
//
// Unlike the built-in programs, the metadata program's ID is deployment
// configuration, so instances are constructed with an explicit program
// key.
package metadata

import (
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/programs/system"
	"github.com/fortiblox/x1-stratus/pkg/programs/token"
	"github.com/fortiblox/x1-stratus/pkg/runtime"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

// Instruction discriminators (first byte of instruction data)
const (
	InstructionCreateMetadata uint8 = 0
	InstructionUpdateMetadata uint8 = 1
)

// MetadataProgram implements the token metadata program.
type MetadataProgram struct {
	// ProgramID is the deployed metadata program's public key
	ProgramID types.Pubkey
}

// New creates a new MetadataProgram instance at the given program ID.
func New(programID types.Pubkey) *MetadataProgram {
	return &MetadataProgram{ProgramID: programID}
}

// GetProgramID returns the metadata program's public key.
func (p *MetadataProgram) GetProgramID() types.Pubkey {
	return p.ProgramID
}

// CreateMetadataInstruction creates the metadata account for a mint.
// Accounts:
//
//	[0] metadata account (writable) - Derived address for the mint
//	[1] mint
//	[2] mint_authority (signer)
//	[3] payer (signer, writable)
//	[4] update_authority
//	[5] system program
type CreateMetadataInstruction struct {
	Name      string
	Symbol    string
	URI       string
	IsMutable bool
}

// Decode decodes a CreateMetadata instruction from bytes.
func (inst *CreateMetadataInstruction) Decode(data []byte) error {
	var err error
	offset := 0
	if inst.Name, offset, err = readString(data, offset); err != nil {
		return fmt.Errorf("%w: name: %v", ErrInvalidInstructionData, err)
	}
	if inst.Symbol, offset, err = readString(data, offset); err != nil {
		return fmt.Errorf("%w: symbol: %v", ErrInvalidInstructionData, err)
	}
	if inst.URI, offset, err = readString(data, offset); err != nil {
		return fmt.Errorf("%w: uri: %v", ErrInvalidInstructionData, err)
	}
	if offset >= len(data) {
		return fmt.Errorf("%w: missing mutability flag", ErrInvalidInstructionData)
	}
	inst.IsMutable = data[offset] != 0
	return nil
}

// Encode encodes a CreateMetadata instruction to bytes.
func (inst *CreateMetadataInstruction) Encode() []byte {
	data := []byte{InstructionCreateMetadata}
	data = appendString(data, inst.Name)
	data = appendString(data, inst.Symbol)
	data = appendString(data, inst.URI)
	if inst.IsMutable {
		data = append(data, 1)
	} else {
		data = append(data, 0)
	}
	return data
}

// UpdateMetadataInstruction updates a mutable metadata account.
// Accounts:
//
//	[0] metadata account (writable)
//	[1] update_authority (signer)
type UpdateMetadataInstruction struct {
	Name   string
	Symbol string
	URI    string
}

// Decode decodes an UpdateMetadata instruction from bytes.
func (inst *UpdateMetadataInstruction) Decode(data []byte) error {
	var err error
	offset := 0
	if inst.Name, offset, err = readString(data, offset); err != nil {
		return fmt.Errorf("%w: name: %v", ErrInvalidInstructionData, err)
	}
	if inst.Symbol, offset, err = readString(data, offset); err != nil {
		return fmt.Errorf("%w: symbol: %v", ErrInvalidInstructionData, err)
	}
	if inst.URI, _, err = readString(data, offset); err != nil {
		return fmt.Errorf("%w: uri: %v", ErrInvalidInstructionData, err)
	}
	return nil
}

// Encode encodes an UpdateMetadata instruction to bytes.
func (inst *UpdateMetadataInstruction) Encode() []byte {
	data := []byte{InstructionUpdateMetadata}
	data = appendString(data, inst.Name)
	data = appendString(data, inst.Symbol)
	data = appendString(data, inst.URI)
	return data
}

// Execute executes a metadata program instruction.
func (p *MetadataProgram) Execute(ctx *runtime.ExecutionContext, instruction []byte) error {
	if len(instruction) < 1 {
		return fmt.Errorf("%w: instruction data too short", ErrInvalidInstructionData)
	}

	switch instruction[0] {
	case InstructionCreateMetadata:
		var inst CreateMetadataInstruction
		if err := inst.Decode(instruction[1:]); err != nil {
			return err
		}
		return p.handleCreateMetadata(ctx, &inst)

	case InstructionUpdateMetadata:
		var inst UpdateMetadataInstruction
		if err := inst.Decode(instruction[1:]); err != nil {
			return err
		}
		return p.handleUpdateMetadata(ctx, &inst)

	default:
		return fmt.Errorf("%w: unknown instruction %d", ErrInvalidInstructionData, instruction[0])
	}
}

func (p *MetadataProgram) handleCreateMetadata(ctx *runtime.ExecutionContext, inst *CreateMetadataInstruction) error {
	if ctx.AccountCount() < 6 {
		return fmt.Errorf("%w: CreateMetadata requires 6 accounts, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}

	metadataAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !metadataAcc.IsWritable {
		return fmt.Errorf("%w: metadata account", ErrAccountNotWritable)
	}

	mintAcc, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return err
	}
	mintAuthorityAcc, err := ctx.GetAccountByIndex(2)
	if err != nil {
		return err
	}
	if !mintAuthorityAcc.IsSigner {
		return fmt.Errorf("%w: mint authority", ErrAccountNotSigner)
	}

	payerAcc, err := ctx.GetAccountByIndex(3)
	if err != nil {
		return err
	}
	if !payerAcc.IsSigner {
		return fmt.Errorf("%w: payer", ErrAccountNotSigner)
	}
	if !payerAcc.IsWritable {
		return fmt.Errorf("%w: payer", ErrAccountNotWritable)
	}

	updateAuthorityAcc, err := ctx.GetAccountByIndex(4)
	if err != nil {
		return err
	}

	// Only the mint authority may attach metadata to a mint.
	mint, err := token.DeserializeMint(mintAcc.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	if !mint.IsInitialized {
		return fmt.Errorf("%w: mint not initialized", ErrInvalidMint)
	}
	if !mint.MintAuthority.IsSome || mint.MintAuthority.Value != mintAuthorityAcc.Pubkey {
		return fmt.Errorf("%w: mint authority", ErrAuthorityMismatch)
	}

	derived, bump, err := runtime.DeriveMetadataAddress(p.ProgramID, mintAcc.Pubkey)
	if err != nil {
		return err
	}
	if derived != metadataAcc.Pubkey {
		return fmt.Errorf("%w: got %s, expected %s", ErrAddressMismatch, metadataAcc.Pubkey, derived)
	}
	if metadataAcc.Exists() {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, metadataAcc.Pubkey)
	}

	meta := &Metadata{
		Mint:            mintAcc.Pubkey,
		UpdateAuthority: updateAuthorityAcc.Pubkey,
		Name:            inst.Name,
		Symbol:          inst.Symbol,
		URI:             inst.URI,
		IsMutable:       inst.IsMutable,
	}
	if err := meta.Validate(); err != nil {
		return err
	}

	space := uint64(meta.SerializedSize())
	createInst := &system.CreateAccountInstruction{
		Lamports: uint64(types.RentExemptMinimum(space)),
		Space:    space,
		Owner:    p.ProgramID,
	}
	signerSeeds := [][]byte{
		[]byte(runtime.MetadataSeedTag),
		p.ProgramID[:],
		mintAcc.Pubkey[:],
		{bump},
	}
	err = ctx.Invoke(types.SystemProgramID, []types.AccountMeta{
		{Pubkey: payerAcc.Pubkey, IsSigner: true, IsWritable: true},
		{Pubkey: metadataAcc.Pubkey, IsSigner: true, IsWritable: true},
	}, createInst.Encode(), signerSeeds)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	copy(metadataAcc.Data, meta.Serialize())
	ctx.Logf("created metadata %s for mint %s: %q (%q)",
		metadataAcc.Pubkey, mintAcc.Pubkey, meta.Name, meta.Symbol)
	return nil
}

func (p *MetadataProgram) handleUpdateMetadata(ctx *runtime.ExecutionContext, inst *UpdateMetadataInstruction) error {
	if ctx.AccountCount() < 2 {
		return fmt.Errorf("%w: UpdateMetadata requires 2 accounts, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}

	metadataAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !metadataAcc.IsWritable {
		return fmt.Errorf("%w: metadata account", ErrAccountNotWritable)
	}
	if metadataAcc.Owner != p.ProgramID {
		return fmt.Errorf("%w: metadata account not owned by program", ErrInvalidAccountData)
	}

	authorityAcc, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return err
	}
	if !authorityAcc.IsSigner {
		return fmt.Errorf("%w: update authority", ErrAccountNotSigner)
	}

	meta, err := DeserializeMetadata(metadataAcc.Data)
	if err != nil {
		return err
	}
	if !meta.IsMutable {
		return ErrImmutable
	}
	if meta.UpdateAuthority != authorityAcc.Pubkey {
		return fmt.Errorf("%w: update authority", ErrAuthorityMismatch)
	}

	meta.Name = inst.Name
	meta.Symbol = inst.Symbol
	meta.URI = inst.URI
	if err := meta.Validate(); err != nil {
		return err
	}

	// Field lengths may change, so the account is resized to fit.
	if err := ctx.ResizeAccountData(metadataAcc.Pubkey, meta.SerializedSize()); err != nil {
		return err
	}
	copy(metadataAcc.Data, meta.Serialize())
	return nil
}
