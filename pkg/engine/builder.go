package engine

import (
	"errors"
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/types"
)

// Builder errors
var (
	// ErrNoFeePayer indicates the builder has no fee payer set.
	ErrNoFeePayer = errors.New("no fee payer set")

	// ErrTooManyAccounts indicates the message exceeds the one-byte
	// account index space.
	ErrTooManyAccounts = errors.New("too many accounts in transaction")
)

// TransactionBuilder compiles instructions into a transaction message
// with the canonical account ordering: writable signers first (fee payer
// leading), then readonly signers, writable non-signers, and readonly
// non-signers.
type TransactionBuilder struct {
	feePayer        types.Pubkey
	recentBlockhash types.Hash
	instructions    []*types.Instruction
}

// NewTransactionBuilder creates an empty transaction builder.
func NewTransactionBuilder() *TransactionBuilder {
	return &TransactionBuilder{}
}

// SetFeePayer sets the fee payer, the transaction's first signer.
func (b *TransactionBuilder) SetFeePayer(payer types.Pubkey) *TransactionBuilder {
	b.feePayer = payer
	return b
}

// SetRecentBlockhash sets the blockhash the message binds to.
func (b *TransactionBuilder) SetRecentBlockhash(hash types.Hash) *TransactionBuilder {
	b.recentBlockhash = hash
	return b
}

// AddInstruction appends an instruction.
func (b *TransactionBuilder) AddInstruction(instruction *types.Instruction) *TransactionBuilder {
	b.instructions = append(b.instructions, instruction)
	return b
}

// accountUse accumulates the privileges a pubkey needs across the whole
// message.
type accountUse struct {
	pubkey   types.Pubkey
	signer   bool
	writable bool
	order    int
}

// Build compiles the accumulated instructions into an unsigned
// transaction. Signatures are attached separately.
func (b *TransactionBuilder) Build() (*types.Transaction, error) {
	if b.feePayer.IsZero() {
		return nil, ErrNoFeePayer
	}

	// Collect every referenced key with the union of its privileges.
	uses := make(map[types.Pubkey]*accountUse)
	order := 0
	touch := func(pubkey types.Pubkey, signer, writable bool) {
		use, ok := uses[pubkey]
		if !ok {
			use = &accountUse{pubkey: pubkey, order: order}
			order++
			uses[pubkey] = use
		}
		use.signer = use.signer || signer
		use.writable = use.writable || writable
	}

	touch(b.feePayer, true, true)
	for _, instruction := range b.instructions {
		for _, meta := range instruction.Accounts {
			touch(meta.Pubkey, meta.IsSigner, meta.IsWritable)
		}
		touch(instruction.ProgramID, false, false)
	}

	if len(uses) > 256 {
		return nil, fmt.Errorf("%w: %d", ErrTooManyAccounts, len(uses))
	}

	// Bucket into the canonical privilege groups, preserving first-use
	// order within each group. The fee payer's first-use order of zero
	// keeps it at the front.
	var writableSigners, readonlySigners, writableOthers, readonlyOthers []*accountUse
	for _, use := range uses {
		switch {
		case use.signer && use.writable:
			writableSigners = append(writableSigners, use)
		case use.signer:
			readonlySigners = append(readonlySigners, use)
		case use.writable:
			writableOthers = append(writableOthers, use)
		default:
			readonlyOthers = append(readonlyOthers, use)
		}
	}
	sortByOrder(writableSigners)
	sortByOrder(readonlySigners)
	sortByOrder(writableOthers)
	sortByOrder(readonlyOthers)

	keys := make([]types.Pubkey, 0, len(uses))
	indexOf := make(map[types.Pubkey]uint8, len(uses))
	for _, group := range [][]*accountUse{writableSigners, readonlySigners, writableOthers, readonlyOthers} {
		for _, use := range group {
			indexOf[use.pubkey] = uint8(len(keys))
			keys = append(keys, use.pubkey)
		}
	}

	compiled := make([]types.CompiledInstruction, len(b.instructions))
	for i, instruction := range b.instructions {
		indices := make([]uint8, len(instruction.Accounts))
		for j, meta := range instruction.Accounts {
			indices[j] = indexOf[meta.Pubkey]
		}
		compiled[i] = types.CompiledInstruction{
			ProgramIDIndex: indexOf[instruction.ProgramID],
			AccountIndices: indices,
			Data:           instruction.Data,
		}
	}

	return &types.Transaction{
		Message: types.Message{
			Header: types.MessageHeader{
				NumRequiredSignatures:       uint8(len(writableSigners) + len(readonlySigners)),
				NumReadonlySignedAccounts:   uint8(len(readonlySigners)),
				NumReadonlyUnsignedAccounts: uint8(len(readonlyOthers)),
			},
			AccountKeys:     keys,
			RecentBlockhash: b.recentBlockhash,
			Instructions:    compiled,
		},
	}, nil
}

func sortByOrder(uses []*accountUse) {
	for i := 1; i < len(uses); i++ {
		for j := i; j > 0 && uses[j-1].order > uses[j].order; j-- {
			uses[j-1], uses[j] = uses[j], uses[j-1]
		}
	}
}
