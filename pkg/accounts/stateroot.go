package accounts

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/fortiblox/x1-stratus/pkg/types"
)

const (
	// merkleArity is the number of children per node in the Merkle tree.
	merkleArity = 16
)

// accountEntry pairs a pubkey with its account for hashing.
type accountEntry struct {
	pubkey  types.Pubkey
	account *types.Account
}

// HashAccount computes the hash of a single account for state-root
// inclusion.
// Format: SHA256(lamports || rent_epoch || data || executable || owner || pubkey)
func HashAccount(pubkey types.Pubkey, account *types.Account) types.Hash {
	var lamportsBuf, rentEpochBuf [8]byte
	binary.LittleEndian.PutUint64(lamportsBuf[:], uint64(account.Lamports))
	binary.LittleEndian.PutUint64(rentEpochBuf[:], uint64(account.RentEpoch))

	execByte := []byte{0}
	if account.Executable {
		execByte[0] = 1
	}

	return types.SHA256Multi(
		lamportsBuf[:],
		rentEpochBuf[:],
		account.Data,
		execByte,
		account.Owner[:],
		pubkey[:],
	)
}

// ComputeStateRoot computes a 16-ary Merkle root over every account in the
// database. Accounts are sorted by pubkey so the root is deterministic for
// a given state regardless of iteration order.
func ComputeStateRoot(db AccountsDB) (types.Hash, error) {
	var entries []accountEntry
	err := db.ForEachAccount(func(pubkey types.Pubkey, account *types.Account) error {
		entries = append(entries, accountEntry{pubkey: pubkey, account: account})
		return nil
	})
	if err != nil {
		return types.ZeroHash, err
	}
	if len(entries) == 0 {
		return types.ZeroHash, nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].pubkey[:], entries[j].pubkey[:]) < 0
	})

	hashes := make([]types.Hash, len(entries))
	for i, e := range entries {
		hashes[i] = HashAccount(e.pubkey, e.account)
	}

	return computeMerkleRoot(hashes), nil
}

// computeMerkleRoot computes the root of a 16-ary Merkle tree.
func computeMerkleRoot(hashes []types.Hash) types.Hash {
	if len(hashes) == 0 {
		return types.ZeroHash
	}

	// Process level by level until we have a single root
	for len(hashes) > 1 {
		hashes = computeNextLevel(hashes)
	}

	return hashes[0]
}

// computeNextLevel computes the next level of the 16-ary Merkle tree.
func computeNextLevel(hashes []types.Hash) []types.Hash {
	numParents := (len(hashes) + merkleArity - 1) / merkleArity
	parents := make([]types.Hash, numParents)

	for i := 0; i < numParents; i++ {
		start := i * merkleArity
		end := start + merkleArity
		if end > len(hashes) {
			end = len(hashes)
		}

		parents[i] = hashChildren(hashes[start:end])
	}

	return parents
}

// hashChildren computes the hash of a group of child nodes.
func hashChildren(children []types.Hash) types.Hash {
	if len(children) == 0 {
		return types.ZeroHash
	}
	if len(children) == 1 {
		return children[0]
	}

	// Concatenate all child hashes and compute SHA256
	data := make([]byte, 0, len(children)*32)
	for _, child := range children {
		data = append(data, child[:]...)
	}

	return types.SHA256(data)
}
