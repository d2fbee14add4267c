// Package issuance implements the token issuance program for X1-Stratus.
package issuance

import "errors"

// Issuance program errors. Each constraint failure carries its own
// sentinel so callers can tell exactly which relationship was violated.
var (
	// ErrInvalidInstructionData indicates the instruction data is malformed.
	ErrInvalidInstructionData = errors.New("invalid instruction data")

	// ErrUnknownInstruction indicates an unrecognized instruction discriminator.
	ErrUnknownInstruction = errors.New("unknown instruction")

	// ErrMissingAccounts indicates the instruction account list is too short.
	ErrMissingAccounts = errors.New("missing accounts")

	// ErrMissingSigner indicates a required signer constraint failed.
	ErrMissingSigner = errors.New("missing required signer")

	// ErrNotWritable indicates a required mutable account is read-only.
	ErrNotWritable = errors.New("account not writable")

	// ErrOwnerConstraint indicates an account has the wrong owning program.
	ErrOwnerConstraint = errors.New("account owner constraint failed")

	// ErrAddressConstraint indicates an account is not at its expected address.
	ErrAddressConstraint = errors.New("account address constraint failed")

	// ErrDerivedAddressMismatch indicates a supplied account does not match
	// its deterministic derivation.
	ErrDerivedAddressMismatch = errors.New("derived address mismatch")

	// ErrMintAlreadyInitialized indicates create was called for an existing mint.
	ErrMintAlreadyInitialized = errors.New("mint already initialized")

	// ErrMintUninitialized indicates the referenced mint does not exist.
	ErrMintUninitialized = errors.New("mint not initialized")

	// ErrUnauthorizedMintAuthority indicates the signer is not the recorded
	// mint authority.
	ErrUnauthorizedMintAuthority = errors.New("signer is not the mint authority")

	// ErrAccountMissing indicates an account that must pre-exist was absent.
	ErrAccountMissing = errors.New("account does not exist")

	// ErrBalanceAccountMismatch indicates an existing balance account is
	// recorded for a different owner or mint.
	ErrBalanceAccountMismatch = errors.New("balance account owner or mint mismatch")

	// ErrNotBalanceOwner indicates the signer does not own the source
	// balance account.
	ErrNotBalanceOwner = errors.New("signer does not own the source balance account")

	// ErrAmountOverflow indicates amount scaling exceeded the 64-bit range.
	ErrAmountOverflow = errors.New("amount overflow in decimal scaling")

	// ErrMetadataNotConfigured indicates a metadata URI was supplied but no
	// metadata program is configured for this deployment.
	ErrMetadataNotConfigured = errors.New("metadata program not configured")
)
