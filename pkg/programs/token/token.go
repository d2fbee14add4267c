// Package token implements the fungible token ledger program for
// X1-Stratus.
//
// The Token Program handles fungible tokens:
//   - Creating and initializing token mints
//   - Initializing per-holder token accounts
//   - Transferring tokens between accounts
//   - Minting and burning tokens
//
// Mint and token account data follow the SPL Token wire layouts (82 and
// 165 bytes), so accounts written by this program are readable by
// standard tooling.
package token

import (
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/runtime"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

// TokenProgram implements the token ledger program.
type TokenProgram struct {
	// ProgramID is the Token Program's public key
	ProgramID types.Pubkey
}

// New creates a new TokenProgram instance.
func New() *TokenProgram {
	return &TokenProgram{
		ProgramID: types.TokenProgramID,
	}
}

// Execute executes a Token Program instruction.
// The instruction format is:
//   - First byte: instruction discriminator
//   - Remaining bytes: instruction-specific data
func (p *TokenProgram) Execute(ctx *runtime.ExecutionContext, instruction []byte) error {
	discriminator, err := ParseInstructionDiscriminator(instruction)
	if err != nil {
		return err
	}

	var instructionData []byte
	if len(instruction) > 1 {
		instructionData = instruction[1:]
	}

	switch discriminator {
	case InstructionInitializeMint, InstructionInitializeMint2:
		var inst InitializeMintInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleInitializeMint(ctx, &inst)

	case InstructionInitializeAccount3:
		var inst InitializeAccount3Instruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleInitializeAccount3(ctx, &inst)

	case InstructionTransfer:
		var inst TransferInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleTransfer(ctx, &inst)

	case InstructionTransferChecked:
		var inst TransferCheckedInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleTransferChecked(ctx, &inst)

	case InstructionMintTo:
		var inst MintToInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleMintTo(ctx, &inst)

	case InstructionMintToChecked:
		var inst MintToCheckedInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleMintToChecked(ctx, &inst)

	case InstructionBurn:
		var inst BurnInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleBurn(ctx, &inst)

	default:
		return fmt.Errorf("%w: unknown instruction %d", ErrInvalidInstruction, discriminator)
	}
}

// GetProgramID returns the Token Program's public key.
func (p *TokenProgram) GetProgramID() types.Pubkey {
	return p.ProgramID
}

// IsTokenProgram checks if a pubkey is the Token Program.
func IsTokenProgram(pubkey types.Pubkey) bool {
	return pubkey == types.TokenProgramID
}
