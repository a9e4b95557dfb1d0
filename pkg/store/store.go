// Package store composes a metadata.MetadataStore and a blob.BlobStore into
// the single persistence abstraction used by fragments.
//
// The two tiers are written without a transaction. The write order is fixed:
//
//   - Metadata is written before the blob it describes, so a blob never
//     exists without a record establishing its owner.
//   - Deletes remove metadata first, then the blob. A crash in between leaves
//     an orphan blob that is unreachable through the API and reclaimed by the
//     garbage collector (package gc).
//
// A crash between the metadata and blob writes of a payload update leaves a
// record whose Size does not match the stored blob. Retrying the write
// repairs it because both writes are idempotent upserts.
package store

import (
	"context"
	"time"

	"github.com/marmos91/fragments/pkg/errs"
	"github.com/marmos91/fragments/pkg/metrics"
	"github.com/marmos91/fragments/pkg/store/blob"
	"github.com/marmos91/fragments/pkg/store/keys"
	"github.com/marmos91/fragments/pkg/store/metadata"
)

// Store is the storage facade over one metadata store and one blob store.
//
// Store is safe for concurrent use when both backends are.
type Store struct {
	meta    metadata.MetadataStore
	blobs   blob.BlobStore
	metrics metrics.FragmentMetrics
}

// New creates a facade over meta and blobs. A nil m disables metrics.
func New(meta metadata.MetadataStore, blobs blob.BlobStore, m metrics.FragmentMetrics) *Store {
	if m == nil {
		m = metrics.NewNoopFragmentMetrics()
	}
	return &Store{meta: meta, blobs: blobs, metrics: m}
}

// Metadata returns the underlying metadata store.
func (s *Store) Metadata() metadata.MetadataStore {
	return s.meta
}

// Blobs returns the underlying blob store.
func (s *Store) Blobs() blob.BlobStore {
	return s.blobs
}

// observe records the outcome of op started at start.
func (s *Store) observe(op string, start time.Time, err error) {
	s.metrics.RecordOperation(op, time.Since(start), err)
}

// WriteMetadata upserts rec.
func (s *Store) WriteMetadata(ctx context.Context, rec *metadata.Record) (err error) {
	defer func(start time.Time) { s.observe("WriteMetadata", start, err) }(time.Now())

	if rec == nil {
		return errs.Validation("store.WriteMetadata", "record is required")
	}
	if err = keys.Validate("store.WriteMetadata", rec.OwnerID, rec.ID); err != nil {
		return err
	}
	return s.meta.WriteMetadata(ctx, rec)
}

// ReadMetadata loads the record for (ownerID, id). Absence is reported by
// the boolean.
func (s *Store) ReadMetadata(ctx context.Context, ownerID, id string) (rec *metadata.Record, found bool, err error) {
	defer func(start time.Time) { s.observe("ReadMetadata", start, err) }(time.Now())

	if err = keys.Validate("store.ReadMetadata", ownerID, id); err != nil {
		return nil, false, err
	}
	return s.meta.ReadMetadata(ctx, ownerID, id)
}

// ListIDs returns ownerID's fragment ids in insertion order.
func (s *Store) ListIDs(ctx context.Context, ownerID string) (ids []string, err error) {
	defer func(start time.Time) { s.observe("ListIDs", start, err) }(time.Now())

	if err = keys.ValidateOwner("store.ListIDs", ownerID); err != nil {
		return nil, err
	}
	return s.meta.ListIDs(ctx, ownerID)
}

// ListRecords returns ownerID's records in insertion order.
//
// The id list is read first and each record afterwards; ids whose record was
// deleted in between are skipped.
func (s *Store) ListRecords(ctx context.Context, ownerID string) (recs []*metadata.Record, err error) {
	defer func(start time.Time) { s.observe("ListRecords", start, err) }(time.Now())

	if err = keys.ValidateOwner("store.ListRecords", ownerID); err != nil {
		return nil, err
	}

	ids, err := s.meta.ListIDs(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	recs = make([]*metadata.Record, 0, len(ids))
	for _, id := range ids {
		rec, found, readErr := s.meta.ReadMetadata(ctx, ownerID, id)
		if readErr != nil {
			return nil, readErr
		}
		if !found {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// WriteBlob stores the payload for (ownerID, id).
func (s *Store) WriteBlob(ctx context.Context, ownerID, id string, data []byte) (err error) {
	defer func(start time.Time) { s.observe("WriteBlob", start, err) }(time.Now())

	if err = keys.Validate("store.WriteBlob", ownerID, id); err != nil {
		return err
	}
	if err = s.blobs.WriteBlob(ctx, ownerID, id, data); err != nil {
		return err
	}
	s.metrics.RecordBytes("write", len(data))
	return nil
}

// ReadBlob loads the payload for (ownerID, id). Absence is reported by the
// boolean.
func (s *Store) ReadBlob(ctx context.Context, ownerID, id string) (data []byte, found bool, err error) {
	defer func(start time.Time) { s.observe("ReadBlob", start, err) }(time.Now())

	if err = keys.Validate("store.ReadBlob", ownerID, id); err != nil {
		return nil, false, err
	}
	data, found, err = s.blobs.ReadBlob(ctx, ownerID, id)
	if err == nil && found {
		s.metrics.RecordBytes("read", len(data))
	}
	return data, found, err
}

// DeleteMetadata removes the record for (ownerID, id) only.
func (s *Store) DeleteMetadata(ctx context.Context, ownerID, id string) (existed bool, err error) {
	defer func(start time.Time) { s.observe("DeleteMetadata", start, err) }(time.Now())

	if err = keys.Validate("store.DeleteMetadata", ownerID, id); err != nil {
		return false, err
	}
	return s.meta.DeleteMetadata(ctx, ownerID, id)
}

// DeleteBlob removes the payload for (ownerID, id) only.
func (s *Store) DeleteBlob(ctx context.Context, ownerID, id string) (existed bool, err error) {
	defer func(start time.Time) { s.observe("DeleteBlob", start, err) }(time.Now())

	if err = keys.Validate("store.DeleteBlob", ownerID, id); err != nil {
		return false, err
	}
	return s.blobs.DeleteBlob(ctx, ownerID, id)
}

// Delete removes both halves of a fragment, metadata first.
//
// Returns ErrNotFound when no record existed. A leftover blob is removed in
// that case too, so a retried delete after a crash cleans up the orphan.
func (s *Store) Delete(ctx context.Context, ownerID, id string) (err error) {
	const op = "store.Delete"
	defer func(start time.Time) { s.observe("Delete", start, err) }(time.Now())

	if err = keys.Validate(op, ownerID, id); err != nil {
		return err
	}

	existed, err := s.meta.DeleteMetadata(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if _, err = s.blobs.DeleteBlob(ctx, ownerID, id); err != nil {
		return err
	}

	if !existed {
		return errs.NotFound(op, "fragment %s not found", id)
	}
	return nil
}

// Healthcheck probes the metadata store.
func (s *Store) Healthcheck(ctx context.Context) error {
	return s.meta.Healthcheck(ctx)
}

// Close closes both stores and returns the first error.
func (s *Store) Close() error {
	metaErr := s.meta.Close()
	blobErr := s.blobs.Close()
	if metaErr != nil {
		return metaErr
	}
	return blobErr
}
