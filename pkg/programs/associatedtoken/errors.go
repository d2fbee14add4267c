// Package associatedtoken implements the associated token account
// program for X1-Stratus.
package associatedtoken

import "errors"

// Associated Token Program errors
var (
	// ErrInvalidInstructionData indicates the instruction data is malformed.
	ErrInvalidInstructionData = errors.New("invalid instruction data")

	// ErrInvalidNumberOfAccounts indicates an incorrect number of accounts were provided.
	ErrInvalidNumberOfAccounts = errors.New("invalid number of accounts")

	// ErrAddressMismatch indicates the supplied account is not the derived
	// associated token address for the owner and mint.
	ErrAddressMismatch = errors.New("associated token address mismatch")

	// ErrAccountAlreadyExists indicates the associated token account already exists.
	ErrAccountAlreadyExists = errors.New("associated token account already exists")

	// ErrAccountNotSigner indicates a required signer is missing.
	ErrAccountNotSigner = errors.New("account is not a signer")

	// ErrAccountNotWritable indicates a required writable account is not writable.
	ErrAccountNotWritable = errors.New("account is not writable")

	// ErrInvalidAccountOwner indicates an existing account has the wrong owner.
	ErrInvalidAccountOwner = errors.New("invalid account owner")

	// ErrAccountMismatch indicates an existing associated account does not
	// match the requested owner and mint.
	ErrAccountMismatch = errors.New("existing account does not match owner and mint")
)
