// Package accounts provides account storage for X1-Stratus.
package accounts

import (
	"github.com/fortiblox/x1-stratus/pkg/types"
)

// AccountsDB defines the interface for account storage.
type AccountsDB interface {
	// GetAccount retrieves an account by pubkey.
	// Returns nil, nil if account does not exist.
	GetAccount(pubkey types.Pubkey) (*types.Account, error)

	// SetAccount stores an account.
	SetAccount(pubkey types.Pubkey, account *types.Account) error

	// DeleteAccount removes an account.
	DeleteAccount(pubkey types.Pubkey) error

	// HasAccount returns true if the account exists.
	HasAccount(pubkey types.Pubkey) bool

	// GetAccountsCount returns the total number of accounts.
	GetAccountsCount() uint64

	// ForEachAccount calls fn for every stored account. Iteration stops
	// and the error is returned if fn returns a non-nil error.
	ForEachAccount(fn func(pubkey types.Pubkey, account *types.Account) error) error

	// Close closes the database.
	Close() error
}
