package issuance

import (
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/runtime"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

// AccountConstraint is one declarative rule about one account in an
// instruction's account list. Constraints are checked in order before any
// state is touched; the first failing rule aborts the instruction.
type AccountConstraint struct {
	// Index of the account in the instruction account list.
	Index int

	// Role names the account in failure messages.
	Role string

	// Signer requires the account to carry a valid authorization.
	Signer bool

	// Writable requires the account to be declared mutable.
	Writable bool

	// Owner, when set, requires the account's owning program to match.
	Owner *types.Pubkey

	// Address, when set, requires the account to be at this exact address.
	Address *types.Pubkey

	// MustExist requires the account to already hold lamports or data.
	MustExist bool

	// Check, when set, runs an instruction-specific relationship check
	// after the structural rules above pass.
	Check func(acc *runtime.AccountInfo) error
}

// ConstraintSet is the full rule list for one instruction.
type ConstraintSet struct {
	// Instruction names the instruction in failure messages.
	Instruction string

	// MinAccounts is the minimum length of the account list.
	MinAccounts int

	Constraints []AccountConstraint
}

// Validate evaluates every rule against the execution context. It has no
// side effects: on success the caller proceeds to provisioning and
// execution, on failure nothing has been mutated.
func (cs *ConstraintSet) Validate(ctx *runtime.ExecutionContext) error {
	if ctx.AccountCount() < cs.MinAccounts {
		return fmt.Errorf("%w: %s requires %d accounts, got %d",
			ErrMissingAccounts, cs.Instruction, cs.MinAccounts, ctx.AccountCount())
	}

	for _, c := range cs.Constraints {
		acc, err := ctx.GetAccountByIndex(c.Index)
		if err != nil {
			return fmt.Errorf("%s %s: %w", cs.Instruction, c.Role, err)
		}

		if c.Signer && !acc.IsSigner {
			return fmt.Errorf("%w: %s %s", ErrMissingSigner, cs.Instruction, c.Role)
		}
		if c.Writable && !acc.IsWritable {
			return fmt.Errorf("%w: %s %s", ErrNotWritable, cs.Instruction, c.Role)
		}
		if c.Owner != nil && acc.Owner != *c.Owner {
			return fmt.Errorf("%w: %s %s owned by %s, expected %s",
				ErrOwnerConstraint, cs.Instruction, c.Role, acc.Owner, *c.Owner)
		}
		if c.Address != nil && acc.Pubkey != *c.Address {
			return fmt.Errorf("%w: %s %s is %s, expected %s",
				ErrAddressConstraint, cs.Instruction, c.Role, acc.Pubkey, *c.Address)
		}
		if c.MustExist && !acc.Exists() {
			return fmt.Errorf("%w: %s %s", ErrAccountMissing, cs.Instruction, c.Role)
		}
		if c.Check != nil {
			if err := c.Check(acc); err != nil {
				return fmt.Errorf("%s %s: %w", cs.Instruction, c.Role, err)
			}
		}
	}
	return nil
}
