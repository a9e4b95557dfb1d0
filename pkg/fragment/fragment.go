package fragment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/marmos91/fragments/pkg/errs"
	"github.com/marmos91/fragments/pkg/mediatype"
	"github.com/marmos91/fragments/pkg/store/metadata"
)

// Fragment is a stored unit of content.
//
// ID, OwnerID, Type and Created never change after construction. Updated and
// Size change through Save and SetData.
//
// A Fragment is not safe for concurrent mutation. Separate Fragment values
// for the same id race last-write-wins at the store.
type Fragment struct {
	repo *Repository

	id      string
	ownerID string
	created time.Time
	updated time.Time
	typ     string
	size    int64
}

func (f *Fragment) ID() string         { return f.id }
func (f *Fragment) OwnerID() string    { return f.ownerID }
func (f *Fragment) Created() time.Time { return f.created }
func (f *Fragment) Updated() time.Time { return f.updated }

// Type returns the declared Content-Type, parameters included.
func (f *Fragment) Type() string { return f.typ }

// Size returns the byte length of the current payload.
func (f *Fragment) Size() int64 { return f.size }

// MimeType returns Type without parameters:
// "text/plain; charset=utf-8" yields "text/plain".
func (f *Fragment) MimeType() string {
	return mediatype.Essence(f.typ)
}

// IsText reports whether the fragment is a text/* type.
func (f *Fragment) IsText() bool {
	return strings.HasPrefix(f.MimeType(), "text/")
}

// Formats returns the types the fragment can be rendered as, starting with
// its own MimeType.
func (f *Fragment) Formats() []string {
	formats := f.repo.registry.Formats(f.MimeType())
	if len(formats) == 0 {
		return []string{f.MimeType()}
	}
	return formats
}

// Record returns the persisted form of the fragment.
func (f *Fragment) Record() *metadata.Record {
	return &metadata.Record{
		ID:      f.id,
		OwnerID: f.ownerID,
		Created: f.created,
		Updated: f.updated,
		Type:    f.typ,
		Size:    f.size,
	}
}

// MarshalJSON encodes the fragment as
// {"id","ownerId","created","updated","type","size"} with RFC 3339 times.
func (f *Fragment) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Record())
}

// validate re-checks the required fields before any write.
func (f *Fragment) validate(op string) error {
	switch {
	case f.id == "":
		return errs.Validation(op, "id is missing")
	case f.ownerID == "":
		return errs.Validation(op, "ownerId is missing")
	case f.typ == "":
		return errs.Validation(op, "type is missing")
	case !f.repo.registry.IsSupported(f.typ):
		return errs.Validation(op, "unsupported type %q", f.typ)
	case f.created.IsZero():
		return errs.Validation(op, "created is missing")
	case f.size < 0:
		return errs.Validation(op, "size cannot be negative, got %d", f.size)
	}
	return nil
}

// touch advances updated to now, never moving it backwards.
func (f *Fragment) touch() {
	now := f.repo.now()
	if now.After(f.updated) {
		f.updated = now
	}
}

// Save writes the metadata snapshot and refreshes Updated.
func (f *Fragment) Save(ctx context.Context) error {
	if err := f.validate("fragment.Save"); err != nil {
		return err
	}
	f.touch()
	return f.repo.store.WriteMetadata(ctx, f.Record())
}

// SetData replaces the payload.
//
// Size is set to len(data) and Updated refreshed; the metadata is written
// first, then the blob. If the blob write fails the record describes a
// payload that is not stored; calling SetData again repairs it.
//
// Returns ErrValidation for an empty payload.
func (f *Fragment) SetData(ctx context.Context, data []byte) error {
	const op = "fragment.SetData"

	if len(data) == 0 {
		return errs.Validation(op, "data is required")
	}
	if err := f.validate(op); err != nil {
		return err
	}

	f.size = int64(len(data))
	f.touch()

	if err := f.repo.store.WriteMetadata(ctx, f.Record()); err != nil {
		return err
	}
	return f.repo.store.WriteBlob(ctx, f.ownerID, f.id, data)
}

// GetData returns the stored payload.
//
// Returns ErrNotFound when no blob is stored.
func (f *Fragment) GetData(ctx context.Context) ([]byte, error) {
	data, found, err := f.repo.store.ReadBlob(ctx, f.ownerID, f.id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errs.NotFound("fragment.GetData", "no data stored for fragment %s", f.id)
	}
	return data, nil
}

// Replace overwrites the payload of an existing fragment. contentType must
// equal Type exactly; the type of a fragment cannot change.
func (f *Fragment) Replace(ctx context.Context, contentType string, data []byte) error {
	if contentType != f.typ {
		return errs.Validation("fragment.Replace",
			"content type must match fragment type: expected %q, got %q", f.typ, contentType)
	}
	return f.SetData(ctx, data)
}

// Render returns the payload converted to the type named by ext, along with
// that type. An empty ext returns the stored bytes and MimeType unchanged.
//
// The extension is checked before the payload is read, so an unsupported
// request fails with ErrUnsupportedMediaType without touching the blob
// store.
func (f *Fragment) Render(ctx context.Context, ext string) ([]byte, string, error) {
	if _, err := f.repo.engine.Resolve(f.typ, ext); err != nil {
		return nil, "", err
	}

	data, err := f.GetData(ctx)
	if err != nil {
		return nil, "", err
	}
	return f.repo.engine.Convert(ctx, f.typ, data, ext)
}
