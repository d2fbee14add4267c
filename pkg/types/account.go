package types

// Account represents one unit of on-chain state: a lamport balance, a data
// buffer, and the program that owns (may write) the data.
type Account struct {
	Lamports   Lamports // Balance in lamports
	Data       []byte   // Account data
	Owner      Pubkey   // Program that owns this account
	Executable bool     // Is this a program account?
	RentEpoch  Epoch    // Last epoch rent was collected (deprecated)
}

// NewAccount creates a new account.
func NewAccount(lamports Lamports, owner Pubkey) *Account {
	return &Account{
		Lamports: lamports,
		Data:     nil,
		Owner:    owner,
	}
}

// NewAccountWithData creates a new account with data.
func NewAccountWithData(lamports Lamports, data []byte, owner Pubkey) *Account {
	return &Account{
		Lamports: lamports,
		Data:     data,
		Owner:    owner,
	}
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{
		Lamports:   a.Lamports,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	}
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return clone
}

// DataLen returns the length of account data.
func (a *Account) DataLen() uint64 {
	if a.Data == nil {
		return 0
	}
	return uint64(len(a.Data))
}

// IsEmpty returns true if the account has zero lamports and no data.
func (a *Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// RentExemptMinimum calculates the minimum lamports for rent exemption.
func RentExemptMinimum(dataSize uint64) Lamports {
	// Rent parameters (mainnet values)
	const (
		lamportsPerByteYear = 3480
		exemptionThreshold  = 2 // years
		accountOverhead     = 128
	)
	return Lamports((dataSize + accountOverhead) * lamportsPerByteYear * exemptionThreshold)
}

// AccountMeta describes an account in an instruction.
type AccountMeta struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
}

// AccountDelta represents a change to an account.
type AccountDelta struct {
	Pubkey     Pubkey
	OldAccount *Account // nil if new account
	NewAccount *Account // nil if deleted
}

// IsCreation returns true if this is a new account.
func (d *AccountDelta) IsCreation() bool {
	return d.OldAccount == nil && d.NewAccount != nil
}

// IsDeletion returns true if this account was deleted.
func (d *AccountDelta) IsDeletion() bool {
	return d.OldAccount != nil && d.NewAccount == nil
}

// IsModification returns true if this account was modified.
func (d *AccountDelta) IsModification() bool {
	return d.OldAccount != nil && d.NewAccount != nil
}
