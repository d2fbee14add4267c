// Package snapshot provides accounts-state export and import for
// X1-Stratus. A snapshot is a zstd-compressed tar archive holding a JSON
// manifest and the full account set, bound together by the accounts
// state root so an import can prove it reconstructed exactly the state
// that was exported.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/types"
	"github.com/mr-tron/base58"
)

var (
	// ErrInvalidManifest is returned when the manifest is malformed.
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrInvalidArchive is returned when the archive is malformed.
	ErrInvalidArchive = errors.New("invalid archive")

	// ErrStateRootMismatch is returned when the imported state does not
	// hash to the manifest's state root.
	ErrStateRootMismatch = errors.New("state root mismatch")

	// ErrAccountCountMismatch is returned when the archive holds a
	// different number of accounts than the manifest declares.
	ErrAccountCountMismatch = errors.New("account count mismatch")
)

// ManifestVersion is the current manifest format version.
const ManifestVersion = 1

// Archive member names.
const (
	manifestEntryName = "manifest"
	accountsEntryName = "accounts"
)

// Manifest describes a snapshot's contents.
type Manifest struct {
	Version       uint32     `json:"version"`
	AccountsCount uint64     `json:"accounts_count"`
	LamportsTotal uint64     `json:"lamports_total"`
	StateRoot     types.Hash `json:"-"`
}

// MarshalJSON encodes the state root as base58.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type alias Manifest
	return json.Marshal(&struct {
		StateRoot string `json:"state_root"`
		*alias
	}{
		StateRoot: m.StateRoot.String(),
		alias:     (*alias)(m),
	})
}

// UnmarshalJSON decodes the base58 state root.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	type alias Manifest
	aux := &struct {
		StateRoot string `json:"state_root"`
		*alias
	}{
		alias: (*alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.StateRoot == "" {
		return fmt.Errorf("%w: missing state root", ErrInvalidManifest)
	}
	decoded, err := base58.Decode(aux.StateRoot)
	if err != nil {
		return fmt.Errorf("%w: state root: %v", ErrInvalidManifest, err)
	}
	m.StateRoot, err = types.HashFromBytes(decoded)
	if err != nil {
		return fmt.Errorf("%w: state root: %v", ErrInvalidManifest, err)
	}
	return nil
}
