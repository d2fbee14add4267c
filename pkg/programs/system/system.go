// Package system implements the System Program for X1-Stratus.
//
// The System Program is responsible for:
//   - Creating new accounts
//   - Allocating account data
//   - Assigning program ownership
//   - Transferring lamports
//
// All accounts are initially owned by the System Program until assigned
// to another program.
package system

import (
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/runtime"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

// SystemProgram implements the System Program.
type SystemProgram struct {
	// ProgramID is the System Program's public key
	ProgramID types.Pubkey
}

// New creates a new SystemProgram instance.
func New() *SystemProgram {
	return &SystemProgram{
		ProgramID: types.SystemProgramID,
	}
}

// Execute executes a System Program instruction.
// The instruction format is:
//   - First 4 bytes: instruction discriminator (little-endian uint32)
//   - Remaining bytes: instruction-specific data
func (p *SystemProgram) Execute(ctx *runtime.ExecutionContext, instruction []byte) error {
	discriminator, err := ParseInstructionDiscriminator(instruction)
	if err != nil {
		return err
	}

	var instructionData []byte
	if len(instruction) > 4 {
		instructionData = instruction[4:]
	}

	switch discriminator {
	case InstructionCreateAccount:
		var inst CreateAccountInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleCreateAccount(ctx, &inst)

	case InstructionAssign:
		var inst AssignInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleAssign(ctx, &inst)

	case InstructionTransfer:
		var inst TransferInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleTransfer(ctx, &inst)

	case InstructionAllocate:
		var inst AllocateInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleAllocate(ctx, &inst)

	default:
		return fmt.Errorf("%w: unknown instruction %d", ErrInvalidInstructionData, discriminator)
	}
}

// GetProgramID returns the System Program's public key.
func (p *SystemProgram) GetProgramID() types.Pubkey {
	return p.ProgramID
}

// IsSystemProgram checks if a pubkey is the System Program.
func IsSystemProgram(pubkey types.Pubkey) bool {
	return pubkey == types.SystemProgramID
}
