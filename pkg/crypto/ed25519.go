package crypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/types"
)

// VerifySignature verifies a single Ed25519 signature.
// Returns false if the public key or signature have invalid lengths.
func VerifySignature(pubkey, message, signature []byte) bool {
	if len(pubkey) != PublicKeySize {
		return false
	}
	if len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(pubkey, message, signature)
}

// VerifySignatureStrict is like VerifySignature but returns an error
// with details about why verification failed.
func VerifySignatureStrict(pubkey, message, signature []byte) error {
	if len(pubkey) != PublicKeySize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPublicKey, PublicKeySize, len(pubkey))
	}
	if len(signature) != SignatureSize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureSize, len(signature))
	}
	if !ed25519.Verify(pubkey, message, signature) {
		return ErrVerificationFailed
	}
	return nil
}

// TransactionVerificationError describes a failed signature within a
// transaction.
type TransactionVerificationError struct {
	SignatureIndex int
	SignerPubkey   string
	Err            error
}

// Error implements the error interface.
func (e *TransactionVerificationError) Error() string {
	return fmt.Sprintf("signature %d (signer %s) invalid: %v",
		e.SignatureIndex, e.SignerPubkey, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransactionVerificationError) Unwrap() error {
	return e.Err
}

// VerifyTransaction verifies all signatures on a transaction.
// The first NumRequiredSignatures account keys are the signers, in order,
// matching the order of tx.Signatures.
func VerifyTransaction(tx *types.Transaction) error {
	if tx == nil {
		return ErrMissingMessage
	}

	numSignatures := len(tx.Signatures)
	if numSignatures == 0 {
		return ErrNoSignatures
	}

	numRequired := int(tx.Message.Header.NumRequiredSignatures)
	if numSignatures != numRequired {
		return fmt.Errorf("%w: expected %d signatures, got %d",
			ErrSignatureCountMismatch, numRequired, numSignatures)
	}

	messageBytes, err := tx.Message.Serialize()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMessageSerializationFailed, err)
	}

	accountKeys := tx.Message.AccountKeys
	if len(accountKeys) < numSignatures {
		return fmt.Errorf("%w: not enough account keys for signatures",
			ErrInvalidSignerIndex)
	}

	for i := 0; i < numSignatures; i++ {
		pubkey := accountKeys[i]
		signature := tx.Signatures[i]

		if !ed25519.Verify(pubkey[:], messageBytes, signature[:]) {
			return &TransactionVerificationError{
				SignatureIndex: i,
				SignerPubkey:   pubkey.String(),
				Err:            ErrVerificationFailed,
			}
		}
	}

	return nil
}

// SignMessage signs a message with an Ed25519 private key.
func SignMessage(priv ed25519.PrivateKey, message []byte) types.Signature {
	var sig types.Signature
	copy(sig[:], ed25519.Sign(priv, message))
	return sig
}

// SignTransaction signs a transaction message with the given private keys,
// in signer order, and attaches the signatures.
func SignTransaction(tx *types.Transaction, privs ...ed25519.PrivateKey) error {
	messageBytes, err := tx.Message.Serialize()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMessageSerializationFailed, err)
	}
	tx.Signatures = make([]types.Signature, len(privs))
	for i, priv := range privs {
		tx.Signatures[i] = SignMessage(priv, messageBytes)
	}
	return nil
}
