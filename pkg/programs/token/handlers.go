package token

import (
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/runtime"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

// handleInitializeMint handles InitializeMint and InitializeMint2.
// Account layout:
//
//	[0] mint (writable) - The mint to initialize
func handleInitializeMint(ctx *runtime.ExecutionContext, inst *InitializeMintInstruction) error {
	if ctx.AccountCount() < 1 {
		return fmt.Errorf("%w: InitializeMint requires 1 account, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}

	mintAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !mintAcc.IsWritable {
		return fmt.Errorf("%w: mint account", ErrAccountNotWritable)
	}
	if mintAcc.Owner != types.TokenProgramID {
		return fmt.Errorf("%w: mint account", ErrInvalidAccountOwner)
	}
	if len(mintAcc.Data) < MintSize {
		return fmt.Errorf("%w: mint account data too small, expected %d bytes",
			ErrInvalidAccountData, MintSize)
	}

	existing, err := DeserializeMint(mintAcc.Data)
	if err == nil && existing.IsInitialized {
		return ErrAlreadyInitialized
	}

	mint := NewMint(inst.Decimals, &inst.MintAuthority, inst.FreezeAuthority)
	copy(mintAcc.Data, mint.Serialize())

	return nil
}

// handleInitializeAccount3 handles the InitializeAccount3 instruction.
// Account layout:
//
//	[0] account (writable) - The account to initialize
//	[1] mint - The mint for this account
func handleInitializeAccount3(ctx *runtime.ExecutionContext, inst *InitializeAccount3Instruction) error {
	if ctx.AccountCount() < 2 {
		return fmt.Errorf("%w: InitializeAccount3 requires 2 accounts, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}

	tokenAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !tokenAcc.IsWritable {
		return fmt.Errorf("%w: token account", ErrAccountNotWritable)
	}
	if tokenAcc.Owner != types.TokenProgramID {
		return fmt.Errorf("%w: token account", ErrInvalidAccountOwner)
	}
	if len(tokenAcc.Data) < TokenAccountSize {
		return fmt.Errorf("%w: token account data too small, expected %d bytes",
			ErrInvalidAccountData, TokenAccountSize)
	}

	existing, err := DeserializeTokenAccount(tokenAcc.Data)
	if err == nil && existing.State != AccountStateUninitialized {
		return ErrAlreadyInitialized
	}

	mintAcc, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return err
	}
	if len(mintAcc.Data) < MintSize {
		return fmt.Errorf("%w: mint account data too small", ErrInvalidMint)
	}
	mint, err := DeserializeMint(mintAcc.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	if !mint.IsInitialized {
		return fmt.Errorf("%w: mint not initialized", ErrInvalidMint)
	}

	account := NewTokenAccount(mintAcc.Pubkey, inst.Owner)
	copy(tokenAcc.Data, account.Serialize())

	return nil
}

// handleTransfer handles the Transfer instruction.
// Account layout:
//
//	[0] source (writable)
//	[1] destination (writable)
//	[2] authority (signer) - Source owner or delegate
func handleTransfer(ctx *runtime.ExecutionContext, inst *TransferInstruction) error {
	if ctx.AccountCount() < 3 {
		return fmt.Errorf("%w: Transfer requires 3 accounts, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}

	sourceAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	destAcc, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return err
	}
	authorityAcc, err := ctx.GetAccountByIndex(2)
	if err != nil {
		return err
	}

	return transferTokens(sourceAcc, destAcc, authorityAcc, inst.Amount)
}

// handleTransferChecked handles the TransferChecked instruction. It
// validates the supplied mint and decimals before moving tokens.
// Account layout:
//
//	[0] source (writable)
//	[1] mint
//	[2] destination (writable)
//	[3] authority (signer)
func handleTransferChecked(ctx *runtime.ExecutionContext, inst *TransferCheckedInstruction) error {
	if ctx.AccountCount() < 4 {
		return fmt.Errorf("%w: TransferChecked requires 4 accounts, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}

	sourceAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	mintAcc, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return err
	}
	destAcc, err := ctx.GetAccountByIndex(2)
	if err != nil {
		return err
	}
	authorityAcc, err := ctx.GetAccountByIndex(3)
	if err != nil {
		return err
	}

	mint, err := DeserializeMint(mintAcc.Data)
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	if !mint.IsInitialized {
		return fmt.Errorf("mint: %w", ErrNotInitialized)
	}
	if mint.Decimals != inst.Decimals {
		return ErrDecimalsMismatch
	}

	source, err := DeserializeTokenAccount(sourceAcc.Data)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if source.Mint != mintAcc.Pubkey {
		return ErrMintMismatch
	}

	return transferTokens(sourceAcc, destAcc, authorityAcc, inst.Amount)
}

// transferTokens moves tokens between two accounts of the same mint. The
// authority must be the source owner or its delegate; delegate transfers
// draw down the delegated allowance.
func transferTokens(sourceAcc, destAcc, authorityAcc *runtime.AccountInfo, amount uint64) error {
	if !sourceAcc.IsWritable {
		return fmt.Errorf("%w: source account", ErrAccountNotWritable)
	}
	if !destAcc.IsWritable {
		return fmt.Errorf("%w: destination account", ErrAccountNotWritable)
	}
	if !authorityAcc.IsSigner {
		return fmt.Errorf("%w: authority", ErrAccountNotSigner)
	}
	if sourceAcc.Owner != types.TokenProgramID {
		return fmt.Errorf("%w: source account", ErrInvalidAccountOwner)
	}
	if destAcc.Owner != types.TokenProgramID {
		return fmt.Errorf("%w: destination account", ErrInvalidAccountOwner)
	}

	source, err := DeserializeTokenAccount(sourceAcc.Data)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	dest, err := DeserializeTokenAccount(destAcc.Data)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}

	if source.State == AccountStateUninitialized {
		return fmt.Errorf("source: %w", ErrNotInitialized)
	}
	if dest.State == AccountStateUninitialized {
		return fmt.Errorf("destination: %w", ErrNotInitialized)
	}
	if source.IsFrozen() {
		return fmt.Errorf("source: %w", ErrAccountFrozen)
	}
	if dest.IsFrozen() {
		return fmt.Errorf("destination: %w", ErrAccountFrozen)
	}
	if source.Mint != dest.Mint {
		return ErrMintMismatch
	}

	isOwner := source.Owner == authorityAcc.Pubkey
	isDelegate := source.Delegate.IsSome && source.Delegate.Value == authorityAcc.Pubkey
	if !isOwner && !isDelegate {
		return ErrOwnerMismatch
	}

	if amount > source.Amount {
		return ErrInsufficientFunds
	}
	if isDelegate && !isOwner && amount > source.DelegatedAmount {
		return ErrInsufficientFunds
	}

	// Source and destination may be the same account. The structs above were
	// deserialized from the same buffer, so applying the debit and credit
	// separately and serializing both would let the last write win. A
	// self-transfer is fully validated but moves nothing.
	if sourceAcc.Pubkey == destAcc.Pubkey {
		return nil
	}

	if isDelegate && !isOwner {
		source.DelegatedAmount -= amount
	}
	if dest.Amount > ^uint64(0)-amount {
		return ErrOverflow
	}

	source.Amount -= amount
	dest.Amount += amount

	copy(sourceAcc.Data, source.Serialize())
	copy(destAcc.Data, dest.Serialize())

	return nil
}

// handleMintTo handles the MintTo instruction.
// Account layout:
//
//	[0] mint (writable)
//	[1] destination (writable)
//	[2] mint_authority (signer)
func handleMintTo(ctx *runtime.ExecutionContext, inst *MintToInstruction) error {
	return mintTo(ctx, inst.Amount, nil)
}

// handleMintToChecked handles the MintToChecked instruction. The supplied
// decimals must match the mint.
func handleMintToChecked(ctx *runtime.ExecutionContext, inst *MintToCheckedInstruction) error {
	return mintTo(ctx, inst.Amount, &inst.Decimals)
}

func mintTo(ctx *runtime.ExecutionContext, amount uint64, expectDecimals *uint8) error {
	if ctx.AccountCount() < 3 {
		return fmt.Errorf("%w: MintTo requires 3 accounts, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}

	mintAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !mintAcc.IsWritable {
		return fmt.Errorf("%w: mint account", ErrAccountNotWritable)
	}
	if mintAcc.Owner != types.TokenProgramID {
		return fmt.Errorf("%w: mint account", ErrInvalidAccountOwner)
	}

	destAcc, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return err
	}
	if !destAcc.IsWritable {
		return fmt.Errorf("%w: destination account", ErrAccountNotWritable)
	}
	if destAcc.Owner != types.TokenProgramID {
		return fmt.Errorf("%w: destination account", ErrInvalidAccountOwner)
	}

	authorityAcc, err := ctx.GetAccountByIndex(2)
	if err != nil {
		return err
	}
	if !authorityAcc.IsSigner {
		return fmt.Errorf("%w: mint authority", ErrAccountNotSigner)
	}

	mint, err := DeserializeMint(mintAcc.Data)
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	dest, err := DeserializeTokenAccount(destAcc.Data)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}

	if !mint.IsInitialized {
		return fmt.Errorf("mint: %w", ErrNotInitialized)
	}
	if expectDecimals != nil && mint.Decimals != *expectDecimals {
		return ErrDecimalsMismatch
	}
	if dest.State == AccountStateUninitialized {
		return fmt.Errorf("destination: %w", ErrNotInitialized)
	}
	if dest.IsFrozen() {
		return fmt.Errorf("destination: %w", ErrAccountFrozen)
	}
	if dest.Mint != mintAcc.Pubkey {
		return ErrMintMismatch
	}
	// Both positions are serialized back below, so they must not alias.
	if mintAcc.Pubkey == destAcc.Pubkey {
		return fmt.Errorf("%w: destination aliases the mint", ErrInvalidMint)
	}

	if !mint.MintAuthority.IsSome {
		return ErrFixedSupply
	}
	if mint.MintAuthority.Value != authorityAcc.Pubkey {
		return ErrAuthorityMismatch
	}

	if mint.Supply > ^uint64(0)-amount {
		return ErrOverflow
	}
	if dest.Amount > ^uint64(0)-amount {
		return ErrOverflow
	}

	mint.Supply += amount
	dest.Amount += amount

	copy(mintAcc.Data, mint.Serialize())
	copy(destAcc.Data, dest.Serialize())

	return nil
}

// handleBurn handles the Burn instruction.
// Account layout:
//
//	[0] source (writable)
//	[1] mint (writable)
//	[2] authority (signer) - Source owner or delegate
func handleBurn(ctx *runtime.ExecutionContext, inst *BurnInstruction) error {
	if ctx.AccountCount() < 3 {
		return fmt.Errorf("%w: Burn requires 3 accounts, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}

	sourceAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !sourceAcc.IsWritable {
		return fmt.Errorf("%w: source account", ErrAccountNotWritable)
	}

	mintAcc, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return err
	}
	if !mintAcc.IsWritable {
		return fmt.Errorf("%w: mint account", ErrAccountNotWritable)
	}

	authorityAcc, err := ctx.GetAccountByIndex(2)
	if err != nil {
		return err
	}
	if !authorityAcc.IsSigner {
		return fmt.Errorf("%w: authority", ErrAccountNotSigner)
	}

	source, err := DeserializeTokenAccount(sourceAcc.Data)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	mint, err := DeserializeMint(mintAcc.Data)
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}

	if source.State == AccountStateUninitialized {
		return fmt.Errorf("source: %w", ErrNotInitialized)
	}
	if source.IsFrozen() {
		return fmt.Errorf("source: %w", ErrAccountFrozen)
	}
	if source.Mint != mintAcc.Pubkey {
		return ErrMintMismatch
	}
	// Both positions are serialized back below, so they must not alias.
	if mintAcc.Pubkey == sourceAcc.Pubkey {
		return fmt.Errorf("%w: source aliases the mint", ErrInvalidMint)
	}

	isOwner := source.Owner == authorityAcc.Pubkey
	isDelegate := source.Delegate.IsSome && source.Delegate.Value == authorityAcc.Pubkey
	if !isOwner && !isDelegate {
		return ErrOwnerMismatch
	}

	if inst.Amount > source.Amount {
		return ErrInsufficientFunds
	}
	if isDelegate && !isOwner {
		if inst.Amount > source.DelegatedAmount {
			return ErrInsufficientFunds
		}
		source.DelegatedAmount -= inst.Amount
	}

	source.Amount -= inst.Amount
	if mint.Supply < inst.Amount {
		return ErrOverflow
	}
	mint.Supply -= inst.Amount

	copy(sourceAcc.Data, source.Serialize())
	copy(mintAcc.Data, mint.Serialize())

	return nil
}
