// Package metadata implements the token metadata program for X1-Stratus.
package metadata

import "errors"

// Metadata Program errors
var (
	// ErrInvalidInstructionData indicates the instruction data is malformed.
	ErrInvalidInstructionData = errors.New("invalid instruction data")

	// ErrInvalidNumberOfAccounts indicates an incorrect number of accounts were provided.
	ErrInvalidNumberOfAccounts = errors.New("invalid number of accounts")

	// ErrAddressMismatch indicates the supplied account is not the derived
	// metadata address for the mint.
	ErrAddressMismatch = errors.New("metadata address mismatch")

	// ErrAccountAlreadyExists indicates the metadata account already exists.
	ErrAccountAlreadyExists = errors.New("metadata account already exists")

	// ErrAccountNotSigner indicates a required signer is missing.
	ErrAccountNotSigner = errors.New("account is not a signer")

	// ErrAccountNotWritable indicates a required writable account is not writable.
	ErrAccountNotWritable = errors.New("account is not writable")

	// ErrAuthorityMismatch indicates the signing authority doesn't match.
	ErrAuthorityMismatch = errors.New("authority mismatch")

	// ErrInvalidMint indicates the mint account is invalid.
	ErrInvalidMint = errors.New("invalid mint")

	// ErrImmutable indicates the metadata was created immutable.
	ErrImmutable = errors.New("metadata is immutable")

	// ErrInvalidAccountData indicates the metadata account data is malformed.
	ErrInvalidAccountData = errors.New("invalid account data")

	// ErrNameTooLong indicates the token name exceeds the maximum length.
	ErrNameTooLong = errors.New("name too long")

	// ErrSymbolTooLong indicates the token symbol exceeds the maximum length.
	ErrSymbolTooLong = errors.New("symbol too long")

	// ErrURITooLong indicates the metadata URI exceeds the maximum length.
	ErrURITooLong = errors.New("uri too long")
)
