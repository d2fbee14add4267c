package issuance

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Instruction discriminators: the first 8 bytes of
// sha256("global:<method>"), so clients built for the original
// deployment stay wire compatible.
var (
	DiscriminatorCreateToken    = methodDiscriminator("create_token")
	DiscriminatorMintToken      = methodDiscriminator("mint_token")
	DiscriminatorTransferTokens = methodDiscriminator("transfer_tokens")
)

// DiscriminatorSize is the length of the method discriminator prefix.
const DiscriminatorSize = 8

func methodDiscriminator(method string) [DiscriminatorSize]byte {
	hash := sha256.Sum256([]byte("global:" + method))
	var d [DiscriminatorSize]byte
	copy(d[:], hash[:DiscriminatorSize])
	return d
}

// CreateTokenArgs are the arguments to the create_token instruction.
// URI is only meaningful on deployments with a metadata program
// configured; without one the name and symbol are logged, not stored.
type CreateTokenArgs struct {
	Name   string
	Symbol string
	URI    string
}

// Decode decodes create_token arguments (without discriminator).
func (a *CreateTokenArgs) Decode(data []byte) error {
	var err error
	offset := 0
	if a.Name, offset, err = readString(data, offset); err != nil {
		return fmt.Errorf("%w: name: %v", ErrInvalidInstructionData, err)
	}
	if a.Symbol, offset, err = readString(data, offset); err != nil {
		return fmt.Errorf("%w: symbol: %v", ErrInvalidInstructionData, err)
	}
	// The URI is only present on the metadata variant of the instruction.
	a.URI = ""
	if offset < len(data) {
		if a.URI, _, err = readString(data, offset); err != nil {
			return fmt.Errorf("%w: uri: %v", ErrInvalidInstructionData, err)
		}
	}
	return nil
}

// Encode encodes create_token with its discriminator. The URI field is
// emitted only when non-empty.
func (a *CreateTokenArgs) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(DiscriminatorCreateToken[:])
	writeString(&buf, a.Name)
	writeString(&buf, a.Symbol)
	if a.URI != "" {
		writeString(&buf, a.URI)
	}
	return buf.Bytes()
}

// MintTokenArgs are the arguments to the mint_token instruction. Amount
// is in human units and is scaled by the mint's decimals at execution.
type MintTokenArgs struct {
	Amount uint64
}

// Decode decodes mint_token arguments (without discriminator).
func (a *MintTokenArgs) Decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: mint_token requires 8 bytes, got %d",
			ErrInvalidInstructionData, len(data))
	}
	a.Amount = binary.LittleEndian.Uint64(data[0:8])
	return nil
}

// Encode encodes mint_token with its discriminator.
func (a *MintTokenArgs) Encode() []byte {
	data := make([]byte, DiscriminatorSize+8)
	copy(data, DiscriminatorMintToken[:])
	binary.LittleEndian.PutUint64(data[DiscriminatorSize:], a.Amount)
	return data
}

// TransferTokensArgs are the arguments to the transfer_tokens
// instruction. Amount is in human units.
type TransferTokensArgs struct {
	Amount uint64
}

// Decode decodes transfer_tokens arguments (without discriminator).
func (a *TransferTokensArgs) Decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: transfer_tokens requires 8 bytes, got %d",
			ErrInvalidInstructionData, len(data))
	}
	a.Amount = binary.LittleEndian.Uint64(data[0:8])
	return nil
}

// Encode encodes transfer_tokens with its discriminator.
func (a *TransferTokensArgs) Encode() []byte {
	data := make([]byte, DiscriminatorSize+8)
	copy(data, DiscriminatorTransferTokens[:])
	binary.LittleEndian.PutUint64(data[DiscriminatorSize:], a.Amount)
	return data
}

func writeString(buf *bytes.Buffer, s string) {
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(s)))
	buf.Write(length[:])
	buf.WriteString(s)
}

func readString(data []byte, offset int) (string, int, error) {
	if offset+4 > len(data) {
		return "", 0, fmt.Errorf("truncated string length")
	}
	length := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if offset+length > len(data) {
		return "", 0, fmt.Errorf("truncated string")
	}
	return string(data[offset : offset+length]), offset + length, nil
}
