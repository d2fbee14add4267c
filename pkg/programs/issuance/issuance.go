// Package issuance implements the token issuance program for X1-Stratus.
//
// The program exposes three instructions:
//   - create_token: provision and initialize a new mint with fixed
//     decimals, payer as mint and freeze authority, and (on deployments
//     with a metadata program configured) an immutable metadata record.
//   - mint_token: mint human-unit amounts into a recipient's balance
//     account, creating that account on first use.
//   - transfer_tokens: move human-unit amounts between balance accounts,
//     creating the recipient's account on first use.
//
// All state mutation is delegated through CPI to the system, token,
// associated token, and metadata programs; this program contributes the
// account-constraint validation, decimal scaling, and lazy provisioning
// that tie those calls together.
//
// The program's own address is deployment configuration, not a constant:
// instances are constructed with the deployed program ID, and optionally
// the metadata program ID that selects the metadata-attaching variant of
// create_token.
package issuance

import (
	"bytes"
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/runtime"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

// IssuanceProgram implements the token issuance program.
type IssuanceProgram struct {
	// ProgramID is the deployed program's public key.
	ProgramID types.Pubkey

	// MetadataProgramID selects the create_token variant: when set,
	// create_token derives and provisions a metadata account through this
	// program; when nil, name and symbol are logged but not stored.
	MetadataProgramID *types.Pubkey
}

// New creates an issuance program instance without metadata support.
func New(programID types.Pubkey) *IssuanceProgram {
	return &IssuanceProgram{ProgramID: programID}
}

// NewWithMetadata creates an issuance program instance whose create_token
// attaches an immutable metadata record through the given program.
func NewWithMetadata(programID, metadataProgramID types.Pubkey) *IssuanceProgram {
	return &IssuanceProgram{
		ProgramID:         programID,
		MetadataProgramID: &metadataProgramID,
	}
}

// GetProgramID returns the deployed program's public key.
func (p *IssuanceProgram) GetProgramID() types.Pubkey {
	return p.ProgramID
}

// Execute dispatches an issuance program instruction by its 8-byte
// method discriminator.
func (p *IssuanceProgram) Execute(ctx *runtime.ExecutionContext, instruction []byte) error {
	if len(instruction) < DiscriminatorSize {
		return fmt.Errorf("%w: instruction data too short", ErrInvalidInstructionData)
	}
	discriminator := instruction[:DiscriminatorSize]
	data := instruction[DiscriminatorSize:]

	switch {
	case bytes.Equal(discriminator, DiscriminatorCreateToken[:]):
		var args CreateTokenArgs
		if err := args.Decode(data); err != nil {
			return err
		}
		if args.URI != "" && p.MetadataProgramID == nil {
			return fmt.Errorf("%w: uri supplied", ErrMetadataNotConfigured)
		}
		return p.handleCreateToken(ctx, &args)

	case bytes.Equal(discriminator, DiscriminatorMintToken[:]):
		var args MintTokenArgs
		if err := args.Decode(data); err != nil {
			return err
		}
		return p.handleMintToken(ctx, &args)

	case bytes.Equal(discriminator, DiscriminatorTransferTokens[:]):
		var args TransferTokensArgs
		if err := args.Decode(data); err != nil {
			return err
		}
		return p.handleTransferTokens(ctx, &args)

	default:
		return fmt.Errorf("%w: %x", ErrUnknownInstruction, discriminator)
	}
}
