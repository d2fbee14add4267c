package issuance

import (
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/programs/metadata"
	"github.com/fortiblox/x1-stratus/pkg/programs/system"
	"github.com/fortiblox/x1-stratus/pkg/programs/token"
	"github.com/fortiblox/x1-stratus/pkg/runtime"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

// Account indices for create_token.
// Without a metadata program:
//
//	[0] payer (signer, writable)
//	[1] mint (signer, writable)
//	[2] token program
//	[3] system program
//	[4] rent sysvar
//
// With a metadata program, the metadata account is inserted at [2]:
//
//	[0] payer (signer, writable)
//	[1] mint (signer, writable)
//	[2] metadata (writable, derived)
//	[3] token program
//	[4] metadata program
//	[5] system program
//	[6] rent sysvar
const (
	createPayerIndex    = 0
	createMintIndex     = 1
	createMetadataIndex = 2
)

// handleCreateToken creates a new mint with this deployment's fixed
// decimals, authority and freeze authority both set to the payer. On
// deployments with a metadata program, a metadata account is derived and
// provisioned in the same instruction; otherwise the name and symbol are
// only logged.
func (p *IssuanceProgram) handleCreateToken(ctx *runtime.ExecutionContext, args *CreateTokenArgs) error {
	tokenProgramID := types.TokenProgramID
	systemProgramID := types.SystemProgramID
	rentSysvarID := types.SysvarRentID

	minAccounts := 5
	if p.MetadataProgramID != nil {
		minAccounts = 7
	}

	constraints := &ConstraintSet{
		Instruction: "create_token",
		MinAccounts: minAccounts,
		Constraints: []AccountConstraint{
			{Index: createPayerIndex, Role: "payer", Signer: true, Writable: true},
			{Index: createMintIndex, Role: "mint", Signer: true, Writable: true},
		},
	}
	if p.MetadataProgramID != nil {
		constraints.Constraints = append(constraints.Constraints,
			AccountConstraint{Index: createMetadataIndex, Role: "metadata", Writable: true},
			AccountConstraint{Index: 3, Role: "token program", Address: &tokenProgramID},
			AccountConstraint{Index: 4, Role: "metadata program", Address: p.MetadataProgramID},
			AccountConstraint{Index: 5, Role: "system program", Address: &systemProgramID},
			AccountConstraint{Index: 6, Role: "rent sysvar", Address: &rentSysvarID})
	} else {
		constraints.Constraints = append(constraints.Constraints,
			AccountConstraint{Index: 2, Role: "token program", Address: &tokenProgramID},
			AccountConstraint{Index: 3, Role: "system program", Address: &systemProgramID},
			AccountConstraint{Index: 4, Role: "rent sysvar", Address: &rentSysvarID})
	}
	if err := constraints.Validate(ctx); err != nil {
		return err
	}

	payerAcc, _ := ctx.GetAccountByIndex(createPayerIndex)
	mintAcc, _ := ctx.GetAccountByIndex(createMintIndex)

	if mintAcc.Exists() {
		return fmt.Errorf("%w: %s", ErrMintAlreadyInitialized, mintAcc.Pubkey)
	}

	// Fund and allocate the mint, then initialize it. The mint keypair
	// signed the transaction, so it can sign its own creation.
	createInst := &system.CreateAccountInstruction{
		Lamports: uint64(types.RentExemptMinimum(token.MintSize)),
		Space:    token.MintSize,
		Owner:    types.TokenProgramID,
	}
	err := ctx.Invoke(types.SystemProgramID, []types.AccountMeta{
		{Pubkey: payerAcc.Pubkey, IsSigner: true, IsWritable: true},
		{Pubkey: mintAcc.Pubkey, IsSigner: true, IsWritable: true},
	}, createInst.Encode())
	if err != nil {
		return fmt.Errorf("create mint account: %w", err)
	}

	initInst := &token.InitializeMintInstruction{
		Decimals:        TokenDecimals,
		MintAuthority:   payerAcc.Pubkey,
		FreezeAuthority: &payerAcc.Pubkey,
	}
	err = ctx.Invoke(types.TokenProgramID, []types.AccountMeta{
		{Pubkey: mintAcc.Pubkey, IsWritable: true},
	}, initInst.Encode())
	if err != nil {
		return fmt.Errorf("initialize mint: %w", err)
	}

	if p.MetadataProgramID != nil {
		if err := p.attachMetadata(ctx, payerAcc, mintAcc, args); err != nil {
			return err
		}
	}

	ctx.Logf("created token mint %s: %q (%q), decimals %d",
		mintAcc.Pubkey, args.Name, args.Symbol, TokenDecimals)
	return nil
}

// attachMetadata derives, verifies, and provisions the metadata account
// for a freshly created mint. The record is stored immutable with the
// payer as update authority.
func (p *IssuanceProgram) attachMetadata(ctx *runtime.ExecutionContext, payerAcc, mintAcc *runtime.AccountInfo, args *CreateTokenArgs) error {
	metadataAcc, err := ctx.GetAccountByIndex(createMetadataIndex)
	if err != nil {
		return err
	}

	derived, _, err := runtime.DeriveMetadataAddress(*p.MetadataProgramID, mintAcc.Pubkey)
	if err != nil {
		return err
	}
	if derived != metadataAcc.Pubkey {
		return fmt.Errorf("%w: metadata account %s, derived %s",
			ErrDerivedAddressMismatch, metadataAcc.Pubkey, derived)
	}

	createMeta := &metadata.CreateMetadataInstruction{
		Name:      args.Name,
		Symbol:    args.Symbol,
		URI:       args.URI,
		IsMutable: false,
	}
	err = ctx.Invoke(*p.MetadataProgramID, []types.AccountMeta{
		{Pubkey: metadataAcc.Pubkey, IsWritable: true},
		{Pubkey: mintAcc.Pubkey},
		{Pubkey: payerAcc.Pubkey, IsSigner: true},
		{Pubkey: payerAcc.Pubkey, IsSigner: true, IsWritable: true},
		{Pubkey: payerAcc.Pubkey},
		{Pubkey: types.SystemProgramID},
	}, createMeta.Encode())
	if err != nil {
		return fmt.Errorf("attach metadata: %w", err)
	}
	return nil
}

// Account indices for mint_token.
//
//	[0] authority (signer, writable) - Mint authority, also funds provisioning
//	[1] recipient - Identity only
//	[2] mint (writable)
//	[3] recipient balance account (writable, init-if-needed)
//	[4] token program
//	[5] associated token program
//	[6] system program
const (
	mintAuthorityIndex    = 0
	mintRecipientIndex    = 1
	mintMintIndex         = 2
	mintBalanceIndex      = 3
	mintTokenProgramIndex = 4
	mintATAProgramIndex   = 5
	mintSystemIndex       = 6
)

// handleMintToken mints args.Amount human units (scaled by the mint's
// live decimals) into the recipient's balance account, creating that
// account on first use.
func (p *IssuanceProgram) handleMintToken(ctx *runtime.ExecutionContext, args *MintTokenArgs) error {
	tokenProgramID := types.TokenProgramID
	ataProgramID := types.AssociatedTokenProgramID
	systemProgramID := types.SystemProgramID
	constraints := &ConstraintSet{
		Instruction: "mint_token",
		MinAccounts: 7,
		Constraints: []AccountConstraint{
			{Index: mintAuthorityIndex, Role: "authority", Signer: true, Writable: true},
			{Index: mintMintIndex, Role: "mint", Writable: true, Owner: &tokenProgramID, MustExist: true},
			{Index: mintBalanceIndex, Role: "recipient balance", Writable: true},
			{Index: mintTokenProgramIndex, Role: "token program", Address: &tokenProgramID},
			{Index: mintATAProgramIndex, Role: "associated token program", Address: &ataProgramID},
			{Index: mintSystemIndex, Role: "system program", Address: &systemProgramID},
		},
	}
	if err := constraints.Validate(ctx); err != nil {
		return err
	}

	authorityAcc, _ := ctx.GetAccountByIndex(mintAuthorityIndex)
	recipientAcc, _ := ctx.GetAccountByIndex(mintRecipientIndex)
	mintAcc, _ := ctx.GetAccountByIndex(mintMintIndex)
	balanceAcc, _ := ctx.GetAccountByIndex(mintBalanceIndex)

	mint, err := token.DeserializeMint(mintAcc.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMintUninitialized, err)
	}
	if !mint.IsInitialized {
		return fmt.Errorf("%w: %s", ErrMintUninitialized, mintAcc.Pubkey)
	}

	// The token program would reject a bad authority anyway, but the
	// recorded-authority check is this program's own invariant and is
	// enforced here first.
	if !mint.MintAuthority.IsSome || mint.MintAuthority.Value != authorityAcc.Pubkey {
		return fmt.Errorf("%w: %s", ErrUnauthorizedMintAuthority, authorityAcc.Pubkey)
	}

	if _, _, err := resolveOrCreateBalanceAccount(ctx, authorityAcc, balanceAcc, recipientAcc, mintAcc, types.TokenProgramID); err != nil {
		return err
	}

	// Scaling uses the decimals read from the live mint account, never a
	// caller-supplied or cached value.
	baseUnits, err := Scale(args.Amount, mint.Decimals)
	if err != nil {
		return err
	}

	mintInst := &token.MintToInstruction{Amount: baseUnits}
	err = ctx.Invoke(types.TokenProgramID, []types.AccountMeta{
		{Pubkey: mintAcc.Pubkey, IsWritable: true},
		{Pubkey: balanceAcc.Pubkey, IsWritable: true},
		{Pubkey: authorityAcc.Pubkey, IsSigner: true},
	}, mintInst.Encode())
	if err != nil {
		return fmt.Errorf("mint to: %w", err)
	}

	ctx.Logf("minted %d base units of %s to %s", baseUnits, mintAcc.Pubkey, balanceAcc.Pubkey)
	return nil
}

// Account indices for transfer_tokens.
//
//	[0] sender (signer, writable) - Owner of the source balance, funds provisioning
//	[1] recipient - Identity only
//	[2] mint
//	[3] sender balance account (writable, must pre-exist)
//	[4] recipient balance account (writable, init-if-needed)
//	[5] token program
//	[6] associated token program
//	[7] system program
const (
	transferSenderIndex           = 0
	transferRecipientIndex        = 1
	transferMintIndex             = 2
	transferSenderBalanceIndex    = 3
	transferRecipientBalanceIndex = 4
	transferTokenProgramIndex     = 5
	transferATAProgramIndex       = 6
	transferSystemIndex           = 7
)

// handleTransferTokens moves args.Amount human units (scaled by the
// mint's live decimals) from the sender's balance account to the
// recipient's, provisioning the recipient's account on first use. The
// sender's account must already exist.
func (p *IssuanceProgram) handleTransferTokens(ctx *runtime.ExecutionContext, args *TransferTokensArgs) error {
	tokenProgramID := types.TokenProgramID
	ataProgramID := types.AssociatedTokenProgramID
	systemProgramID := types.SystemProgramID
	constraints := &ConstraintSet{
		Instruction: "transfer_tokens",
		MinAccounts: 8,
		Constraints: []AccountConstraint{
			{Index: transferSenderIndex, Role: "sender", Signer: true, Writable: true},
			{Index: transferMintIndex, Role: "mint", Owner: &tokenProgramID, MustExist: true},
			{Index: transferSenderBalanceIndex, Role: "sender balance", Writable: true, Owner: &tokenProgramID, MustExist: true},
			{Index: transferRecipientBalanceIndex, Role: "recipient balance", Writable: true},
			{Index: transferTokenProgramIndex, Role: "token program", Address: &tokenProgramID},
			{Index: transferATAProgramIndex, Role: "associated token program", Address: &ataProgramID},
			{Index: transferSystemIndex, Role: "system program", Address: &systemProgramID},
		},
	}
	if err := constraints.Validate(ctx); err != nil {
		return err
	}

	senderAcc, _ := ctx.GetAccountByIndex(transferSenderIndex)
	recipientAcc, _ := ctx.GetAccountByIndex(transferRecipientIndex)
	mintAcc, _ := ctx.GetAccountByIndex(transferMintIndex)
	senderBalanceAcc, _ := ctx.GetAccountByIndex(transferSenderBalanceIndex)
	recipientBalanceAcc, _ := ctx.GetAccountByIndex(transferRecipientBalanceIndex)

	mint, err := token.DeserializeMint(mintAcc.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMintUninitialized, err)
	}
	if !mint.IsInitialized {
		return fmt.Errorf("%w: %s", ErrMintUninitialized, mintAcc.Pubkey)
	}

	// The sender balance must sit at the canonical derived address and be
	// recorded for exactly this sender and mint. The relationship is
	// checked even though the account pre-exists.
	derived, _, err := runtime.DeriveAssociatedTokenAddress(senderAcc.Pubkey, types.TokenProgramID, mintAcc.Pubkey)
	if err != nil {
		return err
	}
	if derived != senderBalanceAcc.Pubkey {
		return fmt.Errorf("%w: sender balance %s, derived %s",
			ErrDerivedAddressMismatch, senderBalanceAcc.Pubkey, derived)
	}
	senderBalance, err := token.DeserializeTokenAccount(senderBalanceAcc.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBalanceAccountMismatch, err)
	}
	if senderBalance.Mint != mintAcc.Pubkey {
		return fmt.Errorf("%w: sender balance mint %s", ErrBalanceAccountMismatch, senderBalance.Mint)
	}
	if senderBalance.Owner != senderAcc.Pubkey {
		return fmt.Errorf("%w: balance owned by %s", ErrNotBalanceOwner, senderBalance.Owner)
	}

	if _, _, err := resolveOrCreateBalanceAccount(ctx, senderAcc, recipientBalanceAcc, recipientAcc, mintAcc, types.TokenProgramID); err != nil {
		return err
	}

	baseUnits, err := Scale(args.Amount, mint.Decimals)
	if err != nil {
		return err
	}

	// TransferChecked re-verifies the mint and decimals in the token
	// program. The duplication with the checks above is deliberate.
	transferInst := &token.TransferCheckedInstruction{
		Amount:   baseUnits,
		Decimals: mint.Decimals,
	}
	err = ctx.Invoke(types.TokenProgramID, []types.AccountMeta{
		{Pubkey: senderBalanceAcc.Pubkey, IsWritable: true},
		{Pubkey: mintAcc.Pubkey},
		{Pubkey: recipientBalanceAcc.Pubkey, IsWritable: true},
		{Pubkey: senderAcc.Pubkey, IsSigner: true},
	}, transferInst.Encode())
	if err != nil {
		return fmt.Errorf("transfer checked: %w", err)
	}

	ctx.Logf("transferred %d base units of %s from %s to %s",
		baseUnits, mintAcc.Pubkey, senderBalanceAcc.Pubkey, recipientBalanceAcc.Pubkey)
	return nil
}
