// Package blob defines the keyed persistence layer for fragment payloads.
//
// A BlobStore holds the raw bytes of each fragment under the same
// (owner, id) key as its metadata record. Payloads are whole-buffer values:
// a write replaces the previous bytes atomically at the key level and there
// is no partial or streaming access.
//
// Implementations must:
//   - Validate both key halves with keys.Validate before touching storage
//   - Report absence through the found/existed booleans, never as an error
//   - Never return a partially written payload to a concurrent reader
//   - Wrap backend failures as errs.ErrStorage
//   - Be safe for concurrent use
package blob

import (
	"context"

	"github.com/marmos91/fragments/pkg/store/keys"
)

// BlobStore persists fragment payloads keyed by (owner, id).
type BlobStore interface {
	// WriteBlob stores data under (ownerID, id), replacing any previous value.
	WriteBlob(ctx context.Context, ownerID, id string, data []byte) error

	// ReadBlob returns the stored bytes. The boolean is false when no blob
	// exists; the error is reserved for validation and backend failures.
	ReadBlob(ctx context.Context, ownerID, id string) ([]byte, bool, error)

	// DeleteBlob removes the blob and reports whether one existed.
	DeleteBlob(ctx context.Context, ownerID, id string) (bool, error)

	// Close releases backend resources.
	Close() error
}

// Lister is implemented by stores that can enumerate every stored key.
// The garbage collector uses it to find orphaned payloads.
type Lister interface {
	ListKeys(ctx context.Context) ([]keys.Key, error)
}

// StorageStats summarises the space used by a blob store.
type StorageStats struct {
	// UsedSize is the sum of payload sizes in bytes (before compression)
	UsedSize uint64

	// BlobCount is the number of stored payloads
	BlobCount uint64

	// AverageSize is UsedSize / BlobCount (0 when empty)
	AverageSize uint64
}

// StatsProvider is implemented by stores that can report usage statistics.
type StatsProvider interface {
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// NewStorageStats computes the derived fields of StorageStats.
func NewStorageStats(usedSize, count uint64) *StorageStats {
	stats := &StorageStats{UsedSize: usedSize, BlobCount: count}
	if count > 0 {
		stats.AverageSize = usedSize / count
	}
	return stats
}
