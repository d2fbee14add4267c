package snapshot

import (
	"archive/tar"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fortiblox/x1-stratus/pkg/accounts"
	"github.com/fortiblox/x1-stratus/pkg/types"
	"github.com/klauspost/compress/zstd"
)

// Load imports a snapshot archive into db and verifies the result: the
// account count, total lamports, and accounts state root must all match
// the manifest. The destination database should be empty; accounts
// already present are overwritten and will fail root verification if
// they do not belong to the snapshot.
func Load(path string, db accounts.AccountsDB) (*Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer decoder.Close()

	tarReader := tar.NewReader(decoder)

	var manifest *Manifest
	var loaded uint64
	var lamportsTotal uint64

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}

		switch header.Name {
		case manifestEntryName:
			data, err := io.ReadAll(tarReader)
			if err != nil {
				return nil, fmt.Errorf("read manifest: %w", err)
			}
			manifest = &Manifest{}
			if err := json.Unmarshal(data, manifest); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
			}

		case accountsEntryName:
			loaded, lamportsTotal, err = loadAccounts(tarReader, db)
			if err != nil {
				return nil, err
			}
		}
	}

	if manifest == nil {
		return nil, fmt.Errorf("%w: manifest not found", ErrInvalidArchive)
	}
	if manifest.Version != ManifestVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidManifest, manifest.Version)
	}
	if loaded != manifest.AccountsCount {
		return nil, fmt.Errorf("%w: loaded %d, manifest declares %d",
			ErrAccountCountMismatch, loaded, manifest.AccountsCount)
	}
	if lamportsTotal != manifest.LamportsTotal {
		return nil, fmt.Errorf("%w: lamports total %d, manifest declares %d",
			ErrAccountCountMismatch, lamportsTotal, manifest.LamportsTotal)
	}

	stateRoot, err := accounts.ComputeStateRoot(db)
	if err != nil {
		return nil, fmt.Errorf("compute state root: %w", err)
	}
	if stateRoot != manifest.StateRoot {
		return nil, fmt.Errorf("%w: computed %s, manifest declares %s",
			ErrStateRootMismatch, stateRoot, manifest.StateRoot)
	}

	return manifest, nil
}

// loadAccounts reads the accounts entry stream into db.
func loadAccounts(r io.Reader, db accounts.AccountsDB) (uint64, uint64, error) {
	var count, lamportsTotal uint64
	var head [36]byte // pubkey + record length

	for {
		if _, err := io.ReadFull(r, head[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return count, lamportsTotal, nil
			}
			return 0, 0, fmt.Errorf("%w: truncated account entry: %v", ErrInvalidArchive, err)
		}

		pubkey, err := types.PubkeyFromBytes(head[:32])
		if err != nil {
			return 0, 0, err
		}
		recordLen := binary.LittleEndian.Uint32(head[32:36])

		record := make([]byte, recordLen)
		if _, err := io.ReadFull(r, record); err != nil {
			return 0, 0, fmt.Errorf("%w: truncated account record for %s: %v", ErrInvalidArchive, pubkey, err)
		}

		account, err := accounts.DeserializeAccount(record)
		if err != nil {
			return 0, 0, fmt.Errorf("account %s: %w", pubkey, err)
		}
		if err := db.SetAccount(pubkey, account); err != nil {
			return 0, 0, fmt.Errorf("store account %s: %w", pubkey, err)
		}

		count++
		lamportsTotal += uint64(account.Lamports)
	}
}
