package snapshot

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fortiblox/x1-stratus/pkg/accounts"
	"github.com/fortiblox/x1-stratus/pkg/types"
	"github.com/klauspost/compress/zstd"
)

// Write exports the full account set of db to a snapshot archive at
// path. The manifest records the accounts state root at export time.
func Write(db accounts.AccountsDB, path string) (*Manifest, error) {
	stateRoot, err := accounts.ComputeStateRoot(db)
	if err != nil {
		return nil, fmt.Errorf("compute state root: %w", err)
	}

	accountsData, manifest, err := serializeAccounts(db)
	if err != nil {
		return nil, err
	}
	manifest.StateRoot = stateRoot

	manifestData, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	defer file.Close()

	encoder, err := zstd.NewWriter(file)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	tarWriter := tar.NewWriter(encoder)
	for _, entry := range []struct {
		name string
		data []byte
	}{
		{manifestEntryName, manifestData},
		{accountsEntryName, accountsData},
	} {
		header := &tar.Header{
			Name: entry.name,
			Mode: 0644,
			Size: int64(len(entry.data)),
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("write tar header %s: %w", entry.name, err)
		}
		if _, err := tarWriter.Write(entry.data); err != nil {
			return nil, fmt.Errorf("write tar entry %s: %w", entry.name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("close tar writer: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("close zstd encoder: %w", err)
	}
	return manifest, nil
}

// serializeAccounts streams every account into the accounts entry
// format: 32-byte pubkey, u32 little-endian record length, record.
func serializeAccounts(db accounts.AccountsDB) ([]byte, *Manifest, error) {
	var buf bytes.Buffer
	manifest := &Manifest{Version: ManifestVersion}

	err := db.ForEachAccount(func(pubkey types.Pubkey, account *types.Account) error {
		record, err := accounts.SerializeAccount(account)
		if err != nil {
			return fmt.Errorf("serialize account %s: %w", pubkey, err)
		}

		var lengthBuf [4]byte
		binary.LittleEndian.PutUint32(lengthBuf[:], uint32(len(record)))
		buf.Write(pubkey[:])
		buf.Write(lengthBuf[:])
		buf.Write(record)

		manifest.AccountsCount++
		manifest.LamportsTotal += uint64(account.Lamports)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), manifest, nil
}
