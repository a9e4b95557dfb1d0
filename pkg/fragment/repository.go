// Package fragment implements the Fragment entity: owner-scoped metadata
// plus a payload, persisted through the store facade and rendered through
// the conversion engine.
//
// A Repository carries the shared collaborators (facade, registry, engine)
// and exposes the lookups that do not start from an existing Fragment.
// A Fragment carries its own field values and delegates durability to the
// Repository's facade.
//
// Example usage:
//
//	repo := fragment.NewRepository(facade, engine)
//	f, err := repo.Construct(ownerID, "text/markdown")
//	if err != nil { ... }
//	if err := f.Save(ctx); err != nil { ... }
//	if err := f.SetData(ctx, []byte("# Hello")); err != nil { ... }
//	html, mimeType, err := f.Render(ctx, ".html")
package fragment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/fragments/pkg/convert"
	"github.com/marmos91/fragments/pkg/errs"
	"github.com/marmos91/fragments/pkg/mediatype"
	"github.com/marmos91/fragments/pkg/store"
	"github.com/marmos91/fragments/pkg/store/keys"
	"github.com/marmos91/fragments/pkg/store/metadata"
)

// Repository creates, loads and deletes fragments. It is safe for
// concurrent use.
type Repository struct {
	store    *store.Store
	registry *mediatype.Registry
	engine   *convert.Engine
	now      func() time.Time
}

// NewRepository wires a repository over st. The supported-type set is the
// engine's registry.
func NewRepository(st *store.Store, engine *convert.Engine) *Repository {
	return &Repository{
		store:    st,
		registry: engine.Registry(),
		engine:   engine,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Store returns the facade the repository persists through.
func (r *Repository) Store() *store.Store {
	return r.store
}

// Option sets an optional field at construction.
type Option func(*constructOptions)

type constructOptions struct {
	id      string
	created time.Time
	updated time.Time
	size    int64
}

// WithID uses id instead of a freshly generated one.
func WithID(id string) Option {
	return func(o *constructOptions) { o.id = id }
}

// WithTimestamps sets the created and updated times. Zero values keep the
// default of now.
func WithTimestamps(created, updated time.Time) Option {
	return func(o *constructOptions) {
		o.created = created
		o.updated = updated
	}
}

// WithSize sets the initial size.
func WithSize(size int64) Option {
	return func(o *constructOptions) { o.size = size }
}

// Construct builds an unsaved fragment.
//
// Defaults: a random UUID id, created and updated set to now, size 0.
//
// Returns ErrValidation when ownerID or contentType is missing, contentType
// is not a supported ingest type, size is negative, or a supplied id is not
// a valid key.
func (r *Repository) Construct(ownerID, contentType string, opts ...Option) (*Fragment, error) {
	const op = "fragment.Construct"

	if ownerID == "" {
		return nil, errs.Validation(op, "ownerId is required")
	}
	if contentType == "" {
		return nil, errs.Validation(op, "type is required")
	}
	if !r.registry.IsSupported(contentType) {
		return nil, errs.Validation(op, "unsupported type %q", contentType)
	}

	now := r.now()
	o := constructOptions{created: now, updated: now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.created.IsZero() {
		o.created = now
	}
	if o.updated.IsZero() {
		o.updated = now
	}
	if o.size < 0 {
		return nil, errs.Validation(op, "size cannot be negative, got %d", o.size)
	}
	if err := keys.Validate(op, ownerID, o.id); err != nil {
		return nil, err
	}

	return &Fragment{
		repo:    r,
		id:      o.id,
		ownerID: ownerID,
		created: o.created,
		updated: o.updated,
		typ:     contentType,
		size:    o.size,
	}, nil
}

// IsSupportedType reports whether value, a full Content-Type header value,
// is an accepted ingest type.
func (r *Repository) IsSupportedType(value string) bool {
	return r.registry.IsSupported(value)
}

// ByID loads the fragment id owned by ownerID.
//
// Returns ErrNotFound when no such fragment exists for that owner.
func (r *Repository) ByID(ctx context.Context, ownerID, id string) (*Fragment, error) {
	const op = "fragment.ByID"

	rec, found, err := r.store.ReadMetadata(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errs.NotFound(op, "fragment %s not found", id)
	}
	return r.fromRecord(rec), nil
}

// ByUser returns ownerID's fragment ids in insertion order.
func (r *Repository) ByUser(ctx context.Context, ownerID string) ([]string, error) {
	return r.store.ListIDs(ctx, ownerID)
}

// ByUserExpanded returns ownerID's fragments in insertion order, each equal
// to what ByID would return.
func (r *Repository) ByUserExpanded(ctx context.Context, ownerID string) ([]*Fragment, error) {
	recs, err := r.store.ListRecords(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	out := make([]*Fragment, len(recs))
	for i, rec := range recs {
		out[i] = r.fromRecord(rec)
	}
	return out, nil
}

// Delete removes the fragment's metadata and payload.
//
// Returns ErrNotFound when the fragment does not exist for that owner.
func (r *Repository) Delete(ctx context.Context, ownerID, id string) error {
	return r.store.Delete(ctx, ownerID, id)
}

func (r *Repository) fromRecord(rec *metadata.Record) *Fragment {
	return &Fragment{
		repo:    r,
		id:      rec.ID,
		ownerID: rec.OwnerID,
		created: rec.Created,
		updated: rec.Updated,
		typ:     rec.Type,
		size:    rec.Size,
	}
}
