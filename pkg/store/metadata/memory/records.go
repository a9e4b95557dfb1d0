package memory

import (
	"context"
	"slices"

	"github.com/marmos91/fragments/pkg/errs"
	"github.com/marmos91/fragments/pkg/store/keys"
	"github.com/marmos91/fragments/pkg/store/metadata"
)

// WriteMetadata upserts a record.
//
// A new id is appended to the owner's order; an existing id keeps its place.
func (s *MemoryMetadataStore) WriteMetadata(ctx context.Context, rec *metadata.Record) error {
	const op = "memory.WriteMetadata"

	if rec == nil {
		return errs.Validation(op, "record is required")
	}
	if err := keys.Validate(op, rec.OwnerID, rec.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(ctx, op); err != nil {
		return err
	}

	od, ok := s.owners[rec.OwnerID]
	if !ok {
		od = &ownerData{records: make(map[string]*metadata.Record)}
		s.owners[rec.OwnerID] = od
	}

	if _, exists := od.records[rec.ID]; !exists {
		od.order = append(od.order, rec.ID)
	}
	od.records[rec.ID] = rec.Clone()

	return nil
}

// ReadMetadata returns a copy of the record for (ownerID, id).
func (s *MemoryMetadataStore) ReadMetadata(ctx context.Context, ownerID, id string) (*metadata.Record, bool, error) {
	const op = "memory.ReadMetadata"

	if err := keys.Validate(op, ownerID, id); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.begin(ctx, op); err != nil {
		return nil, false, err
	}

	od, ok := s.owners[ownerID]
	if !ok {
		return nil, false, nil
	}
	rec, ok := od.records[id]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

// ListIDs returns the owner's ids in first-write order.
func (s *MemoryMetadataStore) ListIDs(ctx context.Context, ownerID string) ([]string, error) {
	const op = "memory.ListIDs"

	if err := keys.ValidateOwner(op, ownerID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.begin(ctx, op); err != nil {
		return nil, err
	}

	od, ok := s.owners[ownerID]
	if !ok {
		return []string{}, nil
	}
	return slices.Clone(od.order), nil
}

// DeleteMetadata removes the record and reports whether it existed.
func (s *MemoryMetadataStore) DeleteMetadata(ctx context.Context, ownerID, id string) (bool, error) {
	const op = "memory.DeleteMetadata"

	if err := keys.Validate(op, ownerID, id); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(ctx, op); err != nil {
		return false, err
	}

	od, ok := s.owners[ownerID]
	if !ok {
		return false, nil
	}
	if _, exists := od.records[id]; !exists {
		return false, nil
	}

	delete(od.records, id)
	od.order = slices.DeleteFunc(od.order, func(v string) bool { return v == id })

	if len(od.records) == 0 {
		delete(s.owners, ownerID)
	}
	return true, nil
}
