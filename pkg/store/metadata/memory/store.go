package memory

import (
	"context"
	"sync"

	"github.com/marmos91/fragments/pkg/errs"
	"github.com/marmos91/fragments/pkg/store/keys"
	"github.com/marmos91/fragments/pkg/store/metadata"
)

// ownerData holds one owner's namespace.
type ownerData struct {
	// records maps fragment id to its stored record
	records map[string]*metadata.Record

	// order lists ids in first-write order
	order []string
}

// MemoryMetadataStore implements metadata.MetadataStore using in-memory maps.
//
// It is suitable for:
//   - Testing and development environments
//   - Ephemeral deployments where restarts may lose every fragment
//
// Thread Safety:
// All operations are protected by a single read-write mutex. Records are
// copied on the way in and out so callers never share memory with the store.
//
// Storage Model:
// Records are partitioned by owner. Each owner keeps a map for point lookups
// and a slice holding ids in first-write order for listing. An upsert of an
// existing id replaces the record without moving it in the slice.
type MemoryMetadataStore struct {
	mu     sync.RWMutex
	owners map[string]*ownerData
	closed bool
}

// NewMemoryMetadataStore creates an empty in-memory metadata store.
func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{
		owners: make(map[string]*ownerData),
	}
}

// Close drops every record. Later calls fail with ErrStorage.
func (s *MemoryMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.owners = make(map[string]*ownerData)
	s.closed = true
	return nil
}

// begin performs the checks shared by every operation.
func (s *MemoryMetadataStore) begin(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return errs.Storage(op, err)
	}
	if s.closed {
		return errs.New(errs.ErrStorage, op, "store is closed")
	}
	return nil
}

// ListAllKeys implements metadata.Enumerator.
func (s *MemoryMetadataStore) ListAllKeys(ctx context.Context) ([]keys.Key, error) {
	const op = "memory.ListAllKeys"

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.begin(ctx, op); err != nil {
		return nil, err
	}

	var all []keys.Key
	for ownerID, od := range s.owners {
		for _, id := range od.order {
			all = append(all, keys.Key{OwnerID: ownerID, ID: id})
		}
	}
	return all, nil
}
