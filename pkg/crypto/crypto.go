// Package crypto provides Ed25519 signature verification for X1-Stratus.
//
// The engine treats a transaction signature as the caller-authorization
// proof for the signer accounts it names; programs themselves never touch
// raw signatures, they only see the signer flag the engine sets after
// verification here.
package crypto

import (
	"errors"
)

// Signature and key sizes for Ed25519.
const (
	// PublicKeySize is the size of an Ed25519 public key in bytes.
	PublicKeySize = 32

	// SignatureSize is the size of an Ed25519 signature in bytes.
	SignatureSize = 64

	// SeedSize is the size of an Ed25519 seed in bytes.
	SeedSize = 32
)

// Common errors returned by the crypto package.
var (
	// ErrInvalidPublicKey is returned when a public key has an invalid format.
	ErrInvalidPublicKey = errors.New("crypto: invalid public key")

	// ErrInvalidSignature is returned when a signature has an invalid format.
	ErrInvalidSignature = errors.New("crypto: invalid signature")

	// ErrVerificationFailed is returned when signature verification fails.
	ErrVerificationFailed = errors.New("crypto: signature verification failed")

	// ErrNoSignatures is returned when a transaction has no signatures.
	ErrNoSignatures = errors.New("crypto: transaction has no signatures")

	// ErrSignatureCountMismatch is returned when the number of signatures
	// does not match the expected number of signers.
	ErrSignatureCountMismatch = errors.New("crypto: signature count mismatch")

	// ErrMissingMessage is returned when a transaction message is nil.
	ErrMissingMessage = errors.New("crypto: missing transaction message")

	// ErrInvalidSignerIndex is returned when a signer index is out of bounds.
	ErrInvalidSignerIndex = errors.New("crypto: invalid signer index")

	// ErrMessageSerializationFailed is returned when the message cannot be
	// serialized for verification.
	ErrMessageSerializationFailed = errors.New("crypto: message serialization failed")
)
