// Package metadata defines the keyed persistence layer for fragment records.
//
// A MetadataStore holds one small mutable Record per (owner, id) pair and can
// list the ids an owner has stored. Payload bytes live elsewhere (see package
// blob); the two tiers are composed by the store facade.
//
// Implementations must:
//   - Validate both key halves with keys.Validate before touching storage
//   - Report absence through the found/existed booleans, never as an error
//   - Return ids from ListIDs in first-write order, stable across upserts
//   - Wrap backend failures as errs.ErrStorage
//   - Be safe for concurrent use
package metadata

import (
	"context"
	"time"

	"github.com/marmos91/fragments/pkg/store/keys"
)

// Record is the persisted metadata of a single fragment.
type Record struct {
	// ID is the fragment identifier, unique within OwnerID
	ID string `json:"id" cbor:"id"`

	// OwnerID is the pre-hashed identifier of the owning principal
	OwnerID string `json:"ownerId" cbor:"ownerId"`

	// Created is set once when the fragment is first constructed
	Created time.Time `json:"created" cbor:"created"`

	// Updated advances on every metadata or payload write
	Updated time.Time `json:"updated" cbor:"updated"`

	// Type is the declared ingest Content-Type, parameters included
	Type string `json:"type" cbor:"type"`

	// Size is the byte length of the current payload
	Size int64 `json:"size" cbor:"size"`
}

// Clone returns a copy of the record. Stores hand out clones so callers can
// never mutate stored state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Key returns the composite key of the record.
func (r *Record) Key() keys.Key {
	return keys.Key{OwnerID: r.OwnerID, ID: r.ID}
}

// MetadataStore persists fragment records keyed by (owner, id).
type MetadataStore interface {
	// WriteMetadata upserts rec under (rec.OwnerID, rec.ID).
	//
	// Returns:
	//   - error: ErrValidation for malformed keys, ErrStorage on backend failure
	WriteMetadata(ctx context.Context, rec *Record) error

	// ReadMetadata loads the record for (ownerID, id).
	//
	// Returns:
	//   - *Record: a copy of the stored record, nil when absent
	//   - bool: false when no record exists
	//   - error: ErrValidation for malformed keys, ErrStorage on backend failure
	ReadMetadata(ctx context.Context, ownerID, id string) (*Record, bool, error)

	// ListIDs returns the ids owned by ownerID in first-write order. An owner
	// with no fragments yields an empty, non-nil slice.
	ListIDs(ctx context.Context, ownerID string) ([]string, error)

	// DeleteMetadata removes the record for (ownerID, id) and reports whether
	// one existed.
	DeleteMetadata(ctx context.Context, ownerID, id string) (bool, error)

	// Healthcheck verifies the backend is reachable.
	Healthcheck(ctx context.Context) error

	// Close releases backend resources. The store must not be used afterwards.
	Close() error
}

// Enumerator is implemented by stores that can list every key they hold.
// The garbage collector uses it to find blobs whose metadata is gone.
type Enumerator interface {
	ListAllKeys(ctx context.Context) ([]keys.Key, error)
}
