package token

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/types"
)

// Account state sizes
const (
	// MintSize is the size of a serialized Mint account (82 bytes)
	MintSize = 82

	// TokenAccountSize is the size of a serialized TokenAccount (165 bytes)
	TokenAccountSize = 165
)

// Account state enum values
const (
	AccountStateUninitialized uint8 = 0
	AccountStateInitialized   uint8 = 1
	AccountStateFrozen        uint8 = 2
)

// COption is an optional pubkey on the wire: 4-byte tag + 32-byte value.
type COption struct {
	IsSome bool
	Value  types.Pubkey
}

// COptionU64 is an optional u64 on the wire: 4-byte tag + 8-byte value.
type COptionU64 struct {
	IsSome bool
	Value  uint64
}

// Mint is a token mint account.
// Layout (82 bytes total):
//   - mint_authority: COption<Pubkey> (36 bytes)
//   - supply: u64 (8 bytes)
//   - decimals: u8 (1 byte)
//   - is_initialized: bool (1 byte)
//   - freeze_authority: COption<Pubkey> (36 bytes)
type Mint struct {
	MintAuthority   COption // Authority allowed to mint new tokens
	Supply          uint64  // Total supply in base units
	Decimals        uint8   // Number of decimal places
	IsInitialized   bool
	FreezeAuthority COption // Authority allowed to freeze token accounts
}

// TokenAccount is a per-holder balance account.
// Layout (165 bytes total):
//   - mint: Pubkey (32 bytes)
//   - owner: Pubkey (32 bytes)
//   - amount: u64 (8 bytes)
//   - delegate: COption<Pubkey> (36 bytes)
//   - state: u8 (1 byte)
//   - is_native: COption<u64> (12 bytes)
//   - delegated_amount: u64 (8 bytes)
//   - close_authority: COption<Pubkey> (36 bytes)
type TokenAccount struct {
	Mint            types.Pubkey // The mint this balance belongs to
	Owner           types.Pubkey // Holder of this balance
	Amount          uint64       // Balance in base units
	Delegate        COption
	State           uint8
	IsNative        COptionU64
	DelegatedAmount uint64
	CloseAuthority  COption
}

// DeserializeMint deserializes a Mint from account data.
func DeserializeMint(data []byte) (*Mint, error) {
	if len(data) < MintSize {
		return nil, fmt.Errorf("%w: mint data too short, expected %d bytes, got %d",
			ErrInvalidAccountData, MintSize, len(data))
	}

	mint := &Mint{}
	offset := 0

	mint.MintAuthority, offset = deserializeCOption(data, offset)

	mint.Supply = binary.LittleEndian.Uint64(data[offset : offset+8])
	offset += 8

	mint.Decimals = data[offset]
	offset++

	mint.IsInitialized = data[offset] != 0
	offset++

	mint.FreezeAuthority, _ = deserializeCOption(data, offset)

	return mint, nil
}

// Serialize serializes the Mint to its 82-byte wire form.
func (m *Mint) Serialize() []byte {
	data := make([]byte, MintSize)
	offset := 0

	offset = serializeCOption(data, offset, m.MintAuthority)

	binary.LittleEndian.PutUint64(data[offset:offset+8], m.Supply)
	offset += 8

	data[offset] = m.Decimals
	offset++

	if m.IsInitialized {
		data[offset] = 1
	}
	offset++

	serializeCOption(data, offset, m.FreezeAuthority)

	return data
}

// DeserializeTokenAccount deserializes a TokenAccount from account data.
func DeserializeTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < TokenAccountSize {
		return nil, fmt.Errorf("%w: token account data too short, expected %d bytes, got %d",
			ErrInvalidAccountData, TokenAccountSize, len(data))
	}

	account := &TokenAccount{}
	offset := 0

	copy(account.Mint[:], data[offset:offset+32])
	offset += 32

	copy(account.Owner[:], data[offset:offset+32])
	offset += 32

	account.Amount = binary.LittleEndian.Uint64(data[offset : offset+8])
	offset += 8

	account.Delegate, offset = deserializeCOption(data, offset)

	account.State = data[offset]
	offset++

	account.IsNative, offset = deserializeCOptionU64(data, offset)

	account.DelegatedAmount = binary.LittleEndian.Uint64(data[offset : offset+8])
	offset += 8

	account.CloseAuthority, _ = deserializeCOption(data, offset)

	return account, nil
}

// Serialize serializes the TokenAccount to its 165-byte wire form.
func (a *TokenAccount) Serialize() []byte {
	data := make([]byte, TokenAccountSize)
	offset := 0

	copy(data[offset:offset+32], a.Mint[:])
	offset += 32

	copy(data[offset:offset+32], a.Owner[:])
	offset += 32

	binary.LittleEndian.PutUint64(data[offset:offset+8], a.Amount)
	offset += 8

	offset = serializeCOption(data, offset, a.Delegate)

	data[offset] = a.State
	offset++

	offset = serializeCOptionU64(data, offset, a.IsNative)

	binary.LittleEndian.PutUint64(data[offset:offset+8], a.DelegatedAmount)
	offset += 8

	serializeCOption(data, offset, a.CloseAuthority)

	return data
}

// IsFrozen returns true if the account is frozen.
func (a *TokenAccount) IsFrozen() bool {
	return a.State == AccountStateFrozen
}

// deserializeCOption reads a COption<Pubkey> at offset and returns the new
// offset. The value space is always present on the wire, even for None.
func deserializeCOption(data []byte, offset int) (COption, int) {
	opt := COption{}
	tag := binary.LittleEndian.Uint32(data[offset : offset+4])
	offset += 4

	if tag == 1 {
		opt.IsSome = true
		copy(opt.Value[:], data[offset:offset+32])
	}
	offset += 32

	return opt, offset
}

func serializeCOption(data []byte, offset int, opt COption) int {
	if opt.IsSome {
		binary.LittleEndian.PutUint32(data[offset:offset+4], 1)
		copy(data[offset+4:offset+36], opt.Value[:])
	}
	return offset + 36
}

func deserializeCOptionU64(data []byte, offset int) (COptionU64, int) {
	opt := COptionU64{}
	tag := binary.LittleEndian.Uint32(data[offset : offset+4])
	offset += 4

	if tag == 1 {
		opt.IsSome = true
		opt.Value = binary.LittleEndian.Uint64(data[offset : offset+8])
	}
	offset += 8

	return opt, offset
}

func serializeCOptionU64(data []byte, offset int, opt COptionU64) int {
	if opt.IsSome {
		binary.LittleEndian.PutUint32(data[offset:offset+4], 1)
		binary.LittleEndian.PutUint64(data[offset+4:offset+12], opt.Value)
	}
	return offset + 12
}

// NewMint creates an initialized Mint with zero supply.
func NewMint(decimals uint8, mintAuthority *types.Pubkey, freezeAuthority *types.Pubkey) *Mint {
	mint := &Mint{
		Decimals:      decimals,
		IsInitialized: true,
	}
	if mintAuthority != nil {
		mint.MintAuthority = COption{IsSome: true, Value: *mintAuthority}
	}
	if freezeAuthority != nil {
		mint.FreezeAuthority = COption{IsSome: true, Value: *freezeAuthority}
	}
	return mint
}

// NewTokenAccount creates an initialized TokenAccount with zero balance.
func NewTokenAccount(mint types.Pubkey, owner types.Pubkey) *TokenAccount {
	return &TokenAccount{
		Mint:  mint,
		Owner: owner,
		State: AccountStateInitialized,
	}
}
