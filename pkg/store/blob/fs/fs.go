// Package fs implements filesystem-based blob storage.
//
// Payloads live at <base>/<owner>/<id>.blob, each wrapped in an envelope
// (see envelope.go) recording the compression used, the original size and a
// BLAKE3 digest. Writes go to a temporary file in the owner directory which
// is renamed over the target, so readers only ever see complete payloads.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/fragments/pkg/errs"
	"github.com/marmos91/fragments/pkg/store/blob"
	"github.com/marmos91/fragments/pkg/store/keys"
)

const (
	blobSuffix  = ".blob"
	tempPattern = ".tmp-*"
	tempPrefix  = ".tmp-"
	dirPerm     = 0755
	filePerm    = 0644
)

// FSBlobStoreConfig configures the filesystem blob store.
type FSBlobStoreConfig struct {
	// BasePath is the root directory for stored payloads
	BasePath string `mapstructure:"path"`

	// Compression is one of none, lz4, zstd, auto (default auto)
	Compression string `mapstructure:"compression"`
}

// FSBlobStore implements blob.BlobStore on the local filesystem.
//
// Thread Safety:
// Each write lands through an atomic rename, so concurrent writers to the
// same key race last-write-wins without tearing the file, and concurrent
// readers see either the old or the new payload.
type FSBlobStore struct {
	basePath string
	mode     CompressionMode
}

// NewFSBlobStore creates the base directory if needed.
//
// Parameters:
//   - ctx: Context for cancellation
//   - config: Base path and compression mode
//
// Returns:
//   - *FSBlobStore: Initialized store
//   - error: Invalid configuration, directory creation failure or cancelled context
func NewFSBlobStore(ctx context.Context, config FSBlobStoreConfig) (*FSBlobStore, error) {
	// ========================================================================
	// Step 1: Check context and configuration
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config.BasePath == "" {
		return nil, fmt.Errorf("filesystem blob store: path is required")
	}

	mode, err := ParseCompressionMode(config.Compression)
	if err != nil {
		return nil, fmt.Errorf("filesystem blob store: %w", err)
	}

	// ========================================================================
	// Step 2: Create the base directory if it doesn't exist
	// ========================================================================

	if err := os.MkdirAll(config.BasePath, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSBlobStore{basePath: config.BasePath, mode: mode}, nil
}

// blobPath returns the file path for a validated key.
func (s *FSBlobStore) blobPath(ownerID, id string) string {
	return filepath.Join(s.basePath, ownerID, id+blobSuffix)
}

// WriteBlob encodes data into an envelope and atomically replaces the file.
func (s *FSBlobStore) WriteBlob(ctx context.Context, ownerID, id string, data []byte) error {
	const op = "fs.WriteBlob"

	if err := keys.Validate(op, ownerID, id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errs.Storage(op, err)
	}

	envelope, err := encodeEnvelope(data, s.mode)
	if err != nil {
		return errs.Storage(op, err)
	}

	dir := filepath.Join(s.basePath, ownerID)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return errs.Storage(op, fmt.Errorf("failed to create owner directory: %w", err))
	}

	if err := writeFileAtomic(dir, s.blobPath(ownerID, id), envelope); err != nil {
		return errs.Storage(op, err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in dir, syncs it and renames it
// to target. The temp file is removed on any failure.
func writeFileAtomic(dir, target string, data []byte) (err error) {
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err = tmp.Chmod(filePerm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to commit blob: %w", err)
	}
	return nil
}

// ReadBlob reads and verifies a payload.
//
// A file that fails envelope verification is reported as ErrStorage rather
// than as missing, so corruption never masquerades as absence.
func (s *FSBlobStore) ReadBlob(ctx context.Context, ownerID, id string) ([]byte, bool, error) {
	const op = "fs.ReadBlob"

	if err := keys.Validate(op, ownerID, id); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, errs.Storage(op, err)
	}

	raw, err := os.ReadFile(s.blobPath(ownerID, id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Storage(op, err)
	}

	data, err := decodeEnvelope(raw)
	if err != nil {
		return nil, false, errs.Storage(op, fmt.Errorf("blob %s/%s: %w", ownerID, id, err))
	}
	return data, true, nil
}

// DeleteBlob removes the payload file.
func (s *FSBlobStore) DeleteBlob(ctx context.Context, ownerID, id string) (bool, error) {
	const op = "fs.DeleteBlob"

	if err := keys.Validate(op, ownerID, id); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, errs.Storage(op, err)
	}

	err := os.Remove(s.blobPath(ownerID, id))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errs.Storage(op, err)
	}
	return true, nil
}

// walkBlobs calls fn for every committed blob file, skipping temp files.
func (s *FSBlobStore) walkBlobs(ctx context.Context, fn func(k keys.Key, path string) error) error {
	owners, err := os.ReadDir(s.basePath)
	if err != nil {
		return err
	}

	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		dir := filepath.Join(s.basePath, owner.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, blobSuffix) {
				continue
			}
			k := keys.Key{OwnerID: owner.Name(), ID: strings.TrimSuffix(name, blobSuffix)}
			if err := fn(k, filepath.Join(dir, name)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ListKeys implements blob.Lister.
func (s *FSBlobStore) ListKeys(ctx context.Context) ([]keys.Key, error) {
	var all []keys.Key
	err := s.walkBlobs(ctx, func(k keys.Key, _ string) error {
		all = append(all, k)
		return nil
	})
	if err != nil {
		return nil, errs.Storage("fs.ListKeys", err)
	}
	return all, nil
}

// GetStorageStats implements blob.StatsProvider.
//
// UsedSize sums the original payload sizes recorded in each envelope header,
// so the figure is independent of the compression mode.
func (s *FSBlobStore) GetStorageStats(ctx context.Context) (*blob.StorageStats, error) {
	var used, count uint64

	err := s.walkBlobs(ctx, func(_ keys.Key, path string) error {
		h, err := readHeader(path)
		if err != nil {
			return err
		}
		used += h.size
		count++
		return nil
	})
	if err != nil {
		return nil, errs.Storage("fs.GetStorageStats", err)
	}
	return blob.NewStorageStats(used, count), nil
}

func readHeader(path string) (header, error) {
	f, err := os.Open(path)
	if err != nil {
		return header{}, err
	}
	defer func() { _ = f.Close() }()

	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(f, raw); err != nil {
		return header{}, fmt.Errorf("%s: %w: %v", path, errIntegrity, err)
	}
	return parseHeader(raw)
}

// Close is a no-op; the store holds no open descriptors between calls.
func (s *FSBlobStore) Close() error {
	return nil
}
