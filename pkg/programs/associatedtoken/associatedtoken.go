// Package associatedtoken implements the associated token account
// program for X1-Stratus.
//
// An associated token account is the canonical token account for an
// (owner, mint) pair, derived as a program address from the seeds
// [owner, token_program, mint]. Because the address is derived, any
// program or client can locate a holder's balance account without an
// on-chain registry, and this program can create it on demand.
//
// Creation is performed through CPI: the System Program funds and
// allocates the account (the derived address signs via seeds), then the
// Token Program initializes it with InitializeAccount3.
package associatedtoken

import (
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/programs/system"
	"github.com/fortiblox/x1-stratus/pkg/programs/token"
	"github.com/fortiblox/x1-stratus/pkg/runtime"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

// Instruction discriminators (first byte of instruction data)
const (
	InstructionCreate           uint8 = 0
	InstructionCreateIdempotent uint8 = 1
)

// AssociatedTokenProgram implements the associated token account program.
type AssociatedTokenProgram struct {
	// ProgramID is the Associated Token Program's public key
	ProgramID types.Pubkey
}

// New creates a new AssociatedTokenProgram instance.
func New() *AssociatedTokenProgram {
	return &AssociatedTokenProgram{
		ProgramID: types.AssociatedTokenProgramID,
	}
}

// Execute executes an Associated Token Program instruction.
// An empty instruction payload is treated as Create, matching the wire
// behavior of the reference program.
func (p *AssociatedTokenProgram) Execute(ctx *runtime.ExecutionContext, instruction []byte) error {
	discriminator := InstructionCreate
	if len(instruction) > 0 {
		discriminator = instruction[0]
	}

	switch discriminator {
	case InstructionCreate:
		return handleCreate(ctx, false)
	case InstructionCreateIdempotent:
		return handleCreate(ctx, true)
	default:
		return fmt.Errorf("%w: unknown instruction %d", ErrInvalidInstructionData, discriminator)
	}
}

// GetProgramID returns the Associated Token Program's public key.
func (p *AssociatedTokenProgram) GetProgramID() types.Pubkey {
	return p.ProgramID
}

// handleCreate handles Create and CreateIdempotent.
// Account layout:
//
//	[0] payer (signer, writable) - Funds the new account's rent
//	[1] associated token account (writable)
//	[2] owner - Wallet the account belongs to
//	[3] mint
//	[4] system program
//	[5] token program
func handleCreate(ctx *runtime.ExecutionContext, idempotent bool) error {
	if ctx.AccountCount() < 6 {
		return fmt.Errorf("%w: Create requires 6 accounts, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}

	payerAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !payerAcc.IsSigner {
		return fmt.Errorf("%w: payer", ErrAccountNotSigner)
	}
	if !payerAcc.IsWritable {
		return fmt.Errorf("%w: payer", ErrAccountNotWritable)
	}

	ataAcc, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return err
	}
	if !ataAcc.IsWritable {
		return fmt.Errorf("%w: associated token account", ErrAccountNotWritable)
	}

	ownerAcc, err := ctx.GetAccountByIndex(2)
	if err != nil {
		return err
	}
	mintAcc, err := ctx.GetAccountByIndex(3)
	if err != nil {
		return err
	}
	tokenProgramAcc, err := ctx.GetAccountByIndex(5)
	if err != nil {
		return err
	}

	// The supplied account must be the canonical derived address. Anything
	// else would let a caller register an arbitrary account as "the"
	// associated account.
	derived, bump, err := runtime.DeriveAssociatedTokenAddress(
		ownerAcc.Pubkey, tokenProgramAcc.Pubkey, mintAcc.Pubkey)
	if err != nil {
		return err
	}
	if derived != ataAcc.Pubkey {
		return fmt.Errorf("%w: got %s, expected %s", ErrAddressMismatch, ataAcc.Pubkey, derived)
	}

	if ataAcc.Exists() {
		if !idempotent {
			return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, ataAcc.Pubkey)
		}
		return verifyExisting(ataAcc, mintAcc.Pubkey, ownerAcc.Pubkey, tokenProgramAcc.Pubkey)
	}

	// Fund and allocate through the System Program. The derived address
	// cannot hold a private key, so it signs via seeds.
	createInst := &system.CreateAccountInstruction{
		Lamports: uint64(types.RentExemptMinimum(token.TokenAccountSize)),
		Space:    token.TokenAccountSize,
		Owner:    tokenProgramAcc.Pubkey,
	}
	signerSeeds := [][]byte{
		ownerAcc.Pubkey[:],
		tokenProgramAcc.Pubkey[:],
		mintAcc.Pubkey[:],
		{bump},
	}
	err = ctx.Invoke(types.SystemProgramID, []types.AccountMeta{
		{Pubkey: payerAcc.Pubkey, IsSigner: true, IsWritable: true},
		{Pubkey: ataAcc.Pubkey, IsSigner: true, IsWritable: true},
	}, createInst.Encode(), signerSeeds)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	// Initialize the token account for the owner.
	initInst := &token.InitializeAccount3Instruction{Owner: ownerAcc.Pubkey}
	err = ctx.Invoke(tokenProgramAcc.Pubkey, []types.AccountMeta{
		{Pubkey: ataAcc.Pubkey, IsWritable: true},
		{Pubkey: mintAcc.Pubkey},
	}, initInst.Encode())
	if err != nil {
		return fmt.Errorf("initialize account: %w", err)
	}

	ctx.Logf("created associated token account %s for owner %s mint %s",
		ataAcc.Pubkey, ownerAcc.Pubkey, mintAcc.Pubkey)
	return nil
}

// verifyExisting checks that an already-created associated account really
// is a token account for the expected owner and mint.
func verifyExisting(ataAcc *runtime.AccountInfo, mint, owner, tokenProgram types.Pubkey) error {
	if ataAcc.Owner != tokenProgram {
		return fmt.Errorf("%w: %s", ErrInvalidAccountOwner, ataAcc.Owner)
	}
	existing, err := token.DeserializeTokenAccount(ataAcc.Data)
	if err != nil {
		return err
	}
	if existing.Mint != mint || existing.Owner != owner {
		return ErrAccountMismatch
	}
	return nil
}
