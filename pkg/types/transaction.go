package types

// Transaction represents a complete transaction with signatures.
type Transaction struct {
	Signatures []Signature
	Message    Message
}

// Message represents a transaction message (the part that gets signed).
type Message struct {
	Header          MessageHeader
	AccountKeys     []Pubkey
	RecentBlockhash Hash
	Instructions    []CompiledInstruction
}

// MessageHeader contains counts for account types.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction is an instruction with account indices.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	AccountIndices []uint8
	Data           []byte
}

// Instruction is an expanded instruction with full account info.
type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// Signers returns the pubkeys of accounts that must sign the message.
func (m *Message) Signers() []Pubkey {
	numSigners := int(m.Header.NumRequiredSignatures)
	if numSigners > len(m.AccountKeys) {
		numSigners = len(m.AccountKeys)
	}
	return m.AccountKeys[:numSigners]
}

// IsSigner returns true if the account at the given index must sign.
func (m *Message) IsSigner(index int) bool {
	return index < int(m.Header.NumRequiredSignatures)
}

// IsWritable returns true if the account at the given index is writable.
// Account ordering: writable signers, readonly signers, writable
// non-signers, readonly non-signers.
func (m *Message) IsWritable(index int) bool {
	numSigners := int(m.Header.NumRequiredSignatures)
	numReadonlySigned := int(m.Header.NumReadonlySignedAccounts)
	numReadonlyUnsigned := int(m.Header.NumReadonlyUnsignedAccounts)
	numAccounts := len(m.AccountKeys)

	if index < numSigners {
		return index < numSigners-numReadonlySigned
	}
	unsignedIndex := index - numSigners
	numUnsignedWritable := numAccounts - numSigners - numReadonlyUnsigned
	return unsignedIndex < numUnsignedWritable
}

// Serialize serializes the message for signing.
func (m *Message) Serialize() ([]byte, error) {
	buf := make([]byte, 0, 256)

	// Header
	buf = append(buf, m.Header.NumRequiredSignatures)
	buf = append(buf, m.Header.NumReadonlySignedAccounts)
	buf = append(buf, m.Header.NumReadonlyUnsignedAccounts)

	// Account keys count (compact-u16)
	buf = appendCompactU16(buf, len(m.AccountKeys))

	// Account keys
	for _, key := range m.AccountKeys {
		buf = append(buf, key[:]...)
	}

	// Recent blockhash
	buf = append(buf, m.RecentBlockhash[:]...)

	// Instructions count (compact-u16)
	buf = appendCompactU16(buf, len(m.Instructions))

	// Instructions
	for _, ix := range m.Instructions {
		// Program ID index
		buf = append(buf, ix.ProgramIDIndex)

		// Account indices (compact-u16 + indices)
		buf = appendCompactU16(buf, len(ix.AccountIndices))
		buf = append(buf, ix.AccountIndices...)

		// Data (compact-u16 + data)
		buf = appendCompactU16(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}

	return buf, nil
}

// appendCompactU16 appends a compact u16 encoding.
func appendCompactU16(buf []byte, val int) []byte {
	if val < 0x80 {
		return append(buf, byte(val))
	}
	if val < 0x4000 {
		return append(buf, byte(val&0x7f|0x80), byte(val>>7))
	}
	return append(buf, byte(val&0x7f|0x80), byte((val>>7)&0x7f|0x80), byte(val>>14))
}

// TransactionResult represents the result of executing a transaction.
type TransactionResult struct {
	Success       bool
	Error         error
	Logs          []string
	ComputeUnits  ComputeUnits
	ReturnData    []byte
	AccountDeltas []AccountDelta
}
