// Package memory implements an in-memory blob store.
package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/marmos91/fragments/pkg/errs"
	"github.com/marmos91/fragments/pkg/store/blob"
	"github.com/marmos91/fragments/pkg/store/keys"
)

// MemoryBlobStore implements blob.BlobStore using a map.
//
// It is designed for:
//   - Testing and development
//   - Ephemeral deployments with small payloads
//
// Implemented Interfaces:
//   - blob.BlobStore
//   - blob.Lister
//   - blob.StatsProvider
//
// Thread Safety:
// All operations are protected by a sync.RWMutex. Data is copied on read and
// write so caller-owned buffers never alias stored bytes.
type MemoryBlobStore struct {
	// data stores payloads keyed by owner and fragment id
	data map[keys.Key][]byte

	// mu protects concurrent access to data
	mu sync.RWMutex
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		data: make(map[keys.Key][]byte),
	}
}

// WriteBlob stores a copy of data.
func (s *MemoryBlobStore) WriteBlob(ctx context.Context, ownerID, id string, data []byte) error {
	const op = "memory.WriteBlob"

	if err := keys.Validate(op, ownerID, id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errs.Storage(op, err)
	}

	stored := bytes.Clone(data)
	if stored == nil {
		stored = []byte{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[keys.Key{OwnerID: ownerID, ID: id}] = stored
	return nil
}

// ReadBlob returns a copy of the stored payload.
func (s *MemoryBlobStore) ReadBlob(ctx context.Context, ownerID, id string) ([]byte, bool, error) {
	const op = "memory.ReadBlob"

	if err := keys.Validate(op, ownerID, id); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, errs.Storage(op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[keys.Key{OwnerID: ownerID, ID: id}]
	if !ok {
		return nil, false, nil
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

// DeleteBlob removes the payload.
func (s *MemoryBlobStore) DeleteBlob(ctx context.Context, ownerID, id string) (bool, error) {
	const op = "memory.DeleteBlob"

	if err := keys.Validate(op, ownerID, id); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, errs.Storage(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := keys.Key{OwnerID: ownerID, ID: id}
	if _, ok := s.data[k]; !ok {
		return false, nil
	}
	delete(s.data, k)
	return true, nil
}

// ListKeys implements blob.Lister.
func (s *MemoryBlobStore) ListKeys(ctx context.Context) ([]keys.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Storage("memory.ListKeys", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]keys.Key, 0, len(s.data))
	for k := range s.data {
		all = append(all, k)
	}
	return all, nil
}

// GetStorageStats implements blob.StatsProvider.
func (s *MemoryBlobStore) GetStorageStats(ctx context.Context) (*blob.StorageStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Storage("memory.GetStorageStats", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	used := uint64(0)
	for _, data := range s.data {
		used += uint64(len(data))
	}
	return blob.NewStorageStats(used, uint64(len(s.data))), nil
}

// Close drops all payloads.
func (s *MemoryBlobStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[keys.Key][]byte)
	return nil
}
