package runtime

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/fortiblox/x1-stratus/pkg/types"
)

// PDA constants
const (
	// MaxSeeds is the maximum number of seeds for PDA derivation.
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of a single seed.
	MaxSeedLen = 32
	// PDAMarker is the domain separator appended during PDA derivation.
	PDAMarker = "ProgramDerivedAddress"

	// MetadataSeedTag is the fixed first seed for metadata accounts.
	MetadataSeedTag = "metadata"
)

// PDA errors
var (
	ErrTooManySeeds   = errors.New("too many seeds")
	ErrSeedTooLong    = errors.New("seed too long")
	ErrInvalidPDA     = errors.New("derived address is on the ed25519 curve")
	ErrNoViableBump   = errors.New("no viable bump seed found")
	ErrSeedMismatch   = errors.New("derived address mismatch")
)

// CreateProgramAddress derives a program address from seeds and a program
// ID.
// Formula: SHA256(seeds... || program_id || "ProgramDerivedAddress").
// The result must not be a valid ed25519 curve point, so no private key
// can ever exist for it; an on-curve result is an error and the caller
// must retry with a different bump seed.
func CreateProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return types.ZeroPubkey, ErrTooManySeeds
	}

	hasher := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return types.ZeroPubkey, ErrSeedTooLong
		}
		hasher.Write(seed)
	}
	hasher.Write(programID[:])
	hasher.Write([]byte(PDAMarker))

	hash := hasher.Sum(nil)
	if isOnCurve(hash) {
		return types.ZeroPubkey, ErrInvalidPDA
	}

	var pda types.Pubkey
	copy(pda[:], hash)
	return pda, nil
}

// FindProgramAddress finds a valid program address by trying bump seeds
// from 255 down to 0. Returns the address and the bump that produced it.
func FindProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return types.ZeroPubkey, 0, ErrTooManySeeds
	}

	seedsWithBump := make([][]byte, len(seeds)+1)
	copy(seedsWithBump, seeds)
	bumpSeed := []byte{0}
	seedsWithBump[len(seeds)] = bumpSeed

	for bump := 255; bump >= 0; bump-- {
		bumpSeed[0] = uint8(bump)
		pda, err := CreateProgramAddress(seedsWithBump, programID)
		if err == nil {
			return pda, uint8(bump), nil
		}
		if !errors.Is(err, ErrInvalidPDA) {
			return types.ZeroPubkey, 0, err
		}
	}

	return types.ZeroPubkey, 0, ErrNoViableBump
}

// isOnCurve reports whether a 32-byte value decompresses to a valid
// ed25519 curve point.
func isOnCurve(data []byte) bool {
	if len(data) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(data)
	return err == nil
}

// DeriveAssociatedTokenAddress derives the associated token account for an
// owner and mint under the given token program.
// Seeds: [owner, token_program, mint].
func DeriveAssociatedTokenAddress(owner, tokenProgram, mint types.Pubkey) (types.Pubkey, uint8, error) {
	seeds := [][]byte{
		owner[:],
		tokenProgram[:],
		mint[:],
	}
	return FindProgramAddress(seeds, types.AssociatedTokenProgramID)
}

// DeriveMetadataAddress derives the metadata account for a mint under the
// given metadata program.
// Seeds: ["metadata", metadata_program, mint].
func DeriveMetadataAddress(metadataProgram, mint types.Pubkey) (types.Pubkey, uint8, error) {
	seeds := [][]byte{
		[]byte(MetadataSeedTag),
		metadataProgram[:],
		mint[:],
	}
	return FindProgramAddress(seeds, metadataProgram)
}

// VerifyDerivedAddress checks that the supplied address equals the address
// derived from the seeds. It is used to validate caller-provided derived
// accounts; a mismatch is a hard failure.
func VerifyDerivedAddress(address types.Pubkey, seeds [][]byte, programID types.Pubkey) error {
	derived, _, err := FindProgramAddress(seeds, programID)
	if err != nil {
		return err
	}
	if derived != address {
		return fmt.Errorf("%w: got %s, expected %s", ErrSeedMismatch, address, derived)
	}
	return nil
}
