package badger

import (
	"context"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/fragments/pkg/errs"
)

// BadgerMetadataStore implements metadata.MetadataStore using BadgerDB.
//
// This implementation provides a persistent metadata store backed by an
// embedded key-value database. It is suitable for:
//   - Single-node production deployments requiring persistence
//   - Deployments where records must survive process restarts
//
// Thread Safety:
// BadgerDB transactions are safe for concurrent use. Writes to different
// fragments touch disjoint keys and never conflict; conflicting writes to the
// same fragment are retried a bounded number of times (last write wins).
//
// Storage Model:
// See keys.go for the key layout and serialization.go for the value format.
type BadgerMetadataStore struct {
	// db is the BadgerDB database handle (thread-safe, uses internal MVCC)
	db *badger.DB

	// seq hands out insertion order positions
	seq *badger.Sequence

	closeOnce sync.Once
}

// BadgerMetadataStoreConfig contains configuration for creating a BadgerDB metadata store.
type BadgerMetadataStoreConfig struct {
	// DBPath is the directory where BadgerDB will store its files
	DBPath string `mapstructure:"db_path"`

	// InMemory runs BadgerDB without touching disk (tests only)
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`
}

// sequenceBandwidth is how many order positions are leased per disk write.
const sequenceBandwidth = 128

// maxConflictRetries bounds retries of a transaction that lost a write race.
const maxConflictRetries = 5

// NewBadgerMetadataStore opens (or creates) a BadgerDB metadata store.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - config: Configuration including DB path and cache sizes
//
// Returns:
//   - *BadgerMetadataStore: A new store instance ready for use
//   - error: Error if database initialization fails or context is cancelled
func NewBadgerMetadataStore(ctx context.Context, config BadgerMetadataStoreConfig) (*BadgerMetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if config.DBPath == "" && !config.InMemory {
		return nil, fmt.Errorf("badger metadata store: db_path is required")
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(config.DBPath)
	}

	// Records are small and already compact CBOR
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	seq, err := db.GetSequence([]byte(keySequence), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open order sequence: %w", err)
	}

	return &BadgerMetadataStore{db: db, seq: seq}, nil
}

// Healthcheck verifies the database accepts transactions.
func (s *BadgerMetadataStore) Healthcheck(ctx context.Context) error {
	const op = "badger.Healthcheck"

	if err := ctx.Err(); err != nil {
		return errs.Storage(op, err)
	}

	// BadgerDB returns an error if it's closed
	if err := s.db.View(func(txn *badger.Txn) error { return nil }); err != nil {
		return errs.Storage(op, err)
	}
	return nil
}

// Close releases the sequence lease and closes BadgerDB.
//
// Unused leased sequence numbers are returned so the counter does not skip
// ahead on restart. Calling Close more than once is a no-op.
func (s *BadgerMetadataStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if releaseErr := s.seq.Release(); releaseErr != nil {
			err = fmt.Errorf("failed to release order sequence: %w", releaseErr)
		}
		if closeErr := s.db.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close BadgerDB: %w", closeErr)
		}
	})
	return err
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *BadgerMetadataStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		err = s.db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
	}
	return err
}
