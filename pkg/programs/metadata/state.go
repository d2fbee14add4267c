package metadata

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/types"
)

// Field length limits, matching the reference metadata program.
const (
	MaxNameLength   = 32
	MaxSymbolLength = 10
	MaxURILength    = 200
)

// Metadata describes a token mint: a display name, ticker symbol, and a
// URI pointing at off-chain content.
// Layout:
//   - mint: Pubkey (32 bytes)
//   - update_authority: Pubkey (32 bytes)
//   - name: u32 length + bytes
//   - symbol: u32 length + bytes
//   - uri: u32 length + bytes
//   - is_mutable: bool (1 byte)
type Metadata struct {
	Mint            types.Pubkey // The mint this metadata describes
	UpdateAuthority types.Pubkey // Authority allowed to update mutable metadata
	Name            string
	Symbol          string
	URI             string
	IsMutable       bool
}

// SerializedSize returns the byte length of the serialized metadata.
func (m *Metadata) SerializedSize() int {
	return 32 + 32 + 4 + len(m.Name) + 4 + len(m.Symbol) + 4 + len(m.URI) + 1
}

// Validate checks the field length limits.
func (m *Metadata) Validate() error {
	if len(m.Name) > MaxNameLength {
		return fmt.Errorf("%w: %d bytes, maximum %d", ErrNameTooLong, len(m.Name), MaxNameLength)
	}
	if len(m.Symbol) > MaxSymbolLength {
		return fmt.Errorf("%w: %d bytes, maximum %d", ErrSymbolTooLong, len(m.Symbol), MaxSymbolLength)
	}
	if len(m.URI) > MaxURILength {
		return fmt.Errorf("%w: %d bytes, maximum %d", ErrURITooLong, len(m.URI), MaxURILength)
	}
	return nil
}

// Serialize serializes the Metadata to bytes.
func (m *Metadata) Serialize() []byte {
	data := make([]byte, 0, m.SerializedSize())
	data = append(data, m.Mint[:]...)
	data = append(data, m.UpdateAuthority[:]...)
	data = appendString(data, m.Name)
	data = appendString(data, m.Symbol)
	data = appendString(data, m.URI)
	if m.IsMutable {
		data = append(data, 1)
	} else {
		data = append(data, 0)
	}
	return data
}

// DeserializeMetadata deserializes Metadata from account data.
func DeserializeMetadata(data []byte) (*Metadata, error) {
	if len(data) < 64 {
		return nil, fmt.Errorf("%w: metadata too short", ErrInvalidAccountData)
	}

	m := &Metadata{}
	copy(m.Mint[:], data[0:32])
	copy(m.UpdateAuthority[:], data[32:64])
	offset := 64

	var err error
	if m.Name, offset, err = readString(data, offset); err != nil {
		return nil, err
	}
	if m.Symbol, offset, err = readString(data, offset); err != nil {
		return nil, err
	}
	if m.URI, offset, err = readString(data, offset); err != nil {
		return nil, err
	}
	if offset >= len(data) {
		return nil, fmt.Errorf("%w: missing mutability flag", ErrInvalidAccountData)
	}
	m.IsMutable = data[offset] != 0

	return m, nil
}

func appendString(data []byte, s string) []byte {
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(s)))
	data = append(data, length[:]...)
	return append(data, s...)
}

func readString(data []byte, offset int) (string, int, error) {
	if offset+4 > len(data) {
		return "", 0, fmt.Errorf("%w: truncated string length", ErrInvalidAccountData)
	}
	length := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if offset+length > len(data) {
		return "", 0, fmt.Errorf("%w: truncated string", ErrInvalidAccountData)
	}
	return string(data[offset : offset+length]), offset + length, nil
}
