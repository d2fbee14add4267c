package issuance

import (
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/programs/associatedtoken"
	"github.com/fortiblox/x1-stratus/pkg/runtime"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

// resolveOrCreateBalanceAccount ensures the associated balance account
// for (owner, mint) exists, creating it on first use funded by payer.
//
// The supplied account must already sit at the canonical derived address;
// that is verified here and again by the associated token program during
// creation. Returns the address and whether this call created it.
func resolveOrCreateBalanceAccount(ctx *runtime.ExecutionContext, payer, balance, owner, mint *runtime.AccountInfo, tokenProgram types.Pubkey) (types.Pubkey, bool, error) {
	derived, _, err := runtime.DeriveAssociatedTokenAddress(owner.Pubkey, tokenProgram, mint.Pubkey)
	if err != nil {
		return types.ZeroPubkey, false, err
	}
	if derived != balance.Pubkey {
		return types.ZeroPubkey, false, fmt.Errorf("%w: balance account %s, derived %s",
			ErrDerivedAddressMismatch, balance.Pubkey, derived)
	}

	wasCreated := !balance.Exists()

	// CreateIdempotent is a no-op when the account already exists in the
	// right shape and fails when it exists in the wrong one, which is
	// exactly the init-if-needed contract.
	err = ctx.Invoke(types.AssociatedTokenProgramID, []types.AccountMeta{
		{Pubkey: payer.Pubkey, IsSigner: true, IsWritable: true},
		{Pubkey: balance.Pubkey, IsWritable: true},
		{Pubkey: owner.Pubkey},
		{Pubkey: mint.Pubkey},
		{Pubkey: types.SystemProgramID},
		{Pubkey: tokenProgram},
	}, []byte{associatedtoken.InstructionCreateIdempotent})
	if err != nil {
		return types.ZeroPubkey, false, fmt.Errorf("provision balance account: %w", err)
	}

	if wasCreated {
		ctx.Logf("provisioned balance account %s for owner %s", balance.Pubkey, owner.Pubkey)
	}
	return derived, wasCreated, nil
}
