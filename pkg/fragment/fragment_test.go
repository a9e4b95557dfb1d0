package fragment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/fragments/pkg/convert"
	"github.com/marmos91/fragments/pkg/errs"
	"github.com/marmos91/fragments/pkg/mediatype"
	"github.com/marmos91/fragments/pkg/store"
	blobmemory "github.com/marmos91/fragments/pkg/store/blob/memory"
	"github.com/marmos91/fragments/pkg/store/metadata"
	metamemory "github.com/marmos91/fragments/pkg/store/metadata/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerA = "11111111aaaaaaaa"
	ownerB = "22222222bbbbbbbb"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()

	engine, err := convert.NewEngine(mediatype.Default())
	require.NoError(t, err)

	st := store.New(metamemory.NewMemoryMetadataStore(), blobmemory.NewMemoryBlobStore(), nil)
	t.Cleanup(func() { _ = st.Close() })

	return NewRepository(st, engine)
}

// withClock makes repo.now return successive ticks starting at base.
func withClock(repo *Repository, base time.Time) {
	tick := base
	repo.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
}

func mustCreate(t *testing.T, repo *Repository, owner, contentType string, data []byte) *Fragment {
	t.Helper()
	ctx := context.Background()

	f, err := repo.Construct(owner, contentType)
	require.NoError(t, err)
	require.NoError(t, f.Save(ctx))
	require.NoError(t, f.SetData(ctx, data))
	return f
}

func TestConstruct_Defaults(t *testing.T) {
	repo := newRepo(t)

	f, err := repo.Construct(ownerA, "text/plain")
	require.NoError(t, err)

	assert.NotEmpty(t, f.ID())
	assert.Equal(t, ownerA, f.OwnerID())
	assert.Equal(t, "text/plain", f.Type())
	assert.Equal(t, int64(0), f.Size())
	assert.False(t, f.Created().IsZero())
	assert.Equal(t, f.Created(), f.Updated())

	other, err := repo.Construct(ownerA, "text/plain")
	require.NoError(t, err)
	assert.NotEqual(t, f.ID(), other.ID())
}

func TestConstruct_Options(t *testing.T) {
	repo := newRepo(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	updated := created.Add(time.Hour)

	f, err := repo.Construct(ownerA, "text/plain; charset=utf-8",
		WithID("fixed"), WithTimestamps(created, updated), WithSize(12))
	require.NoError(t, err)

	assert.Equal(t, "fixed", f.ID())
	assert.Equal(t, created, f.Created())
	assert.Equal(t, updated, f.Updated())
	assert.Equal(t, int64(12), f.Size())
}

func TestConstruct_Validation(t *testing.T) {
	repo := newRepo(t)

	tests := []struct {
		name        string
		owner       string
		contentType string
		opts        []Option
	}{
		{"missing owner", "", "text/plain", nil},
		{"missing type", ownerA, "", nil},
		{"unsupported type", ownerA, "application/msword", nil},
		{"non-exact type", ownerA, "text/plain;charset=utf-8", nil},
		{"negative size", ownerA, "text/plain", []Option{WithSize(-1)}},
		{"bad id", ownerA, "text/plain", []Option{WithID("a/b")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Construct(tt.owner, tt.contentType, tt.opts...)
			assert.True(t, errs.Is(err, errs.ErrValidation), "got %v", err)
		})
	}
}

func TestIsSupportedType(t *testing.T) {
	repo := newRepo(t)
	assert.True(t, repo.IsSupportedType("text/plain"))
	assert.True(t, repo.IsSupportedType("text/plain; charset=utf-8"))
	assert.True(t, repo.IsSupportedType("image/avif"))
	assert.False(t, repo.IsSupportedType("text/x-unknown"))
}

func TestSetDataThenGetData(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	payloads := [][]byte{
		[]byte("a"),
		[]byte("hello, world"),
		make([]byte, 64<<10),
	}
	for i, data := range payloads {
		t.Run(fmt.Sprintf("payload-%d", i), func(t *testing.T) {
			f := mustCreate(t, repo, ownerA, "text/plain", data)
			assert.Equal(t, int64(len(data)), f.Size())

			got, err := f.GetData(ctx)
			require.NoError(t, err)
			assert.Equal(t, data, got)

			loaded, err := repo.ByID(ctx, ownerA, f.ID())
			require.NoError(t, err)
			assert.Equal(t, int64(len(data)), loaded.Size())
		})
	}
}

func TestSetData_RejectsEmpty(t *testing.T) {
	repo := newRepo(t)
	f, err := repo.Construct(ownerA, "text/plain")
	require.NoError(t, err)

	err = f.SetData(context.Background(), nil)
	assert.True(t, errs.Is(err, errs.ErrValidation))
	err = f.SetData(context.Background(), []byte{})
	assert.True(t, errs.Is(err, errs.ErrValidation))
}

func TestSaveAndSetData_AdvanceUpdatedOnly(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	withClock(repo, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	f, err := repo.Construct(ownerA, "text/plain")
	require.NoError(t, err)
	created := f.Created()

	require.NoError(t, f.Save(ctx))
	afterSave := f.Updated()
	assert.True(t, afterSave.After(created))

	require.NoError(t, f.SetData(ctx, []byte("x")))
	assert.True(t, f.Updated().After(afterSave))
	assert.Equal(t, created, f.Created())

	loaded, err := repo.ByID(ctx, ownerA, f.ID())
	require.NoError(t, err)
	assert.True(t, created.Equal(loaded.Created()))
	assert.True(t, f.Updated().Equal(loaded.Updated()))
}

// toggleBlobStore fails every write while failing is set.
type toggleBlobStore struct {
	*blobmemory.MemoryBlobStore
	failing atomic.Bool
}

var errDiskFull = errors.New("disk full")

func (s *toggleBlobStore) WriteBlob(ctx context.Context, ownerID, id string, data []byte) error {
	if s.failing.Load() {
		return errs.Storage("toggle.WriteBlob", errDiskFull)
	}
	return s.MemoryBlobStore.WriteBlob(ctx, ownerID, id, data)
}

func TestSetData_MetadataWrittenBeforeBlob(t *testing.T) {
	ctx := context.Background()

	engine, err := convert.NewEngine(mediatype.Default())
	require.NoError(t, err)
	blobs := &toggleBlobStore{MemoryBlobStore: blobmemory.NewMemoryBlobStore()}
	st := store.New(metamemory.NewMemoryMetadataStore(), blobs, nil)
	t.Cleanup(func() { _ = st.Close() })

	repo := NewRepository(st, engine)
	withClock(repo, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	f := mustCreate(t, repo, ownerA, "text/plain", []byte("first"))
	before := f.Updated()

	blobs.failing.Store(true)
	second := []byte("second, longer payload")
	err = f.SetData(ctx, second)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrStorage))
	assert.ErrorIs(t, err, errDiskFull)

	// The record already describes the new payload; the blob is stale
	loaded, err := repo.ByID(ctx, ownerA, f.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(len(second)), loaded.Size())
	assert.True(t, loaded.Updated().After(before))
	assert.True(t, loaded.Updated().Equal(f.Updated()))

	stale, err := loaded.GetData(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), stale)

	// Retrying once the blob store recovers repairs the fragment
	blobs.failing.Store(false)
	require.NoError(t, f.SetData(ctx, second))

	loaded, err = repo.ByID(ctx, ownerA, f.ID())
	require.NoError(t, err)
	got, err := loaded.GetData(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)
	assert.Equal(t, int64(len(got)), loaded.Size())
}

func TestSetData_FirstBlobWriteFails(t *testing.T) {
	ctx := context.Background()

	engine, err := convert.NewEngine(mediatype.Default())
	require.NoError(t, err)
	blobs := &toggleBlobStore{MemoryBlobStore: blobmemory.NewMemoryBlobStore()}
	blobs.failing.Store(true)
	st := store.New(metamemory.NewMemoryMetadataStore(), blobs, nil)
	t.Cleanup(func() { _ = st.Close() })
	repo := NewRepository(st, engine)

	f, err := repo.Construct(ownerA, "text/plain")
	require.NoError(t, err)
	err = f.SetData(ctx, []byte("payload"))
	assert.True(t, errs.Is(err, errs.ErrStorage))

	// Ownership is established even though no payload landed
	loaded, err := repo.ByID(ctx, ownerA, f.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(len("payload")), loaded.Size())

	_, err = loaded.GetData(ctx)
	assert.True(t, errs.Is(err, errs.ErrNotFound))
}

func TestSave_RejectsUnsupportedType(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	f := repo.fromRecord(&metadata.Record{
		ID:      "legacy",
		OwnerID: ownerA,
		Created: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Updated: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Type:    "application/x-unknown",
		Size:    3,
	})

	err := f.Save(ctx)
	assert.True(t, errs.Is(err, errs.ErrValidation))
	err = f.SetData(ctx, []byte("abc"))
	assert.True(t, errs.Is(err, errs.ErrValidation))

	_, err = repo.ByID(ctx, ownerA, "legacy")
	assert.True(t, errs.Is(err, errs.ErrNotFound))
}

func TestGetData_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	f, err := repo.Construct(ownerA, "text/plain")
	require.NoError(t, err)
	require.NoError(t, f.Save(ctx))

	_, err = f.GetData(ctx)
	assert.True(t, errs.Is(err, errs.ErrNotFound))
}

func TestMimeTypeAndIsText(t *testing.T) {
	repo := newRepo(t)

	f, err := repo.Construct(ownerA, "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", f.MimeType())
	assert.True(t, f.IsText())

	j, err := repo.Construct(ownerA, "application/json")
	require.NoError(t, err)
	assert.False(t, j.IsText())
}

func TestFormats(t *testing.T) {
	repo := newRepo(t)

	f, err := repo.Construct(ownerA, "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, []string{"text/plain"}, f.Formats())

	md, err := repo.Construct(ownerA, "text/markdown")
	require.NoError(t, err)
	assert.Equal(t, []string{"text/markdown", "text/html", "text/plain"}, md.Formats())
}

func TestByUser(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	var ids []string
	for i := 0; i < 4; i++ {
		f := mustCreate(t, repo, ownerA, "text/plain", []byte(fmt.Sprintf("payload %d", i)))
		ids = append(ids, f.ID())
	}
	mustCreate(t, repo, ownerB, "text/plain", []byte("other"))

	got, err := repo.ByUser(ctx, ownerA)
	require.NoError(t, err)
	assert.Equal(t, ids, got)

	expanded, err := repo.ByUserExpanded(ctx, ownerA)
	require.NoError(t, err)
	require.Len(t, expanded, len(ids))
	for i, f := range expanded {
		byID, err := repo.ByID(ctx, ownerA, ids[i])
		require.NoError(t, err)
		assert.Equal(t, byID.Record(), f.Record())
	}
}

func TestByUser_Empty(t *testing.T) {
	repo := newRepo(t)

	ids, err := repo.ByUser(context.Background(), ownerA)
	require.NoError(t, err)
	assert.Empty(t, ids)

	frags, err := repo.ByUserExpanded(context.Background(), ownerA)
	require.NoError(t, err)
	assert.Empty(t, frags)
}

func TestOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	f := mustCreate(t, repo, ownerA, "text/plain", []byte("secret"))

	_, err := repo.ByID(ctx, ownerB, f.ID())
	assert.True(t, errs.Is(err, errs.ErrNotFound))

	ids, err := repo.ByUser(ctx, ownerB)
	require.NoError(t, err)
	assert.NotContains(t, ids, f.ID())

	err = repo.Delete(ctx, ownerB, f.ID())
	assert.True(t, errs.Is(err, errs.ErrNotFound))

	_, err = repo.ByID(ctx, ownerA, f.ID())
	assert.NoError(t, err)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	f := mustCreate(t, repo, ownerA, "text/plain", []byte("bye"))

	require.NoError(t, repo.Delete(ctx, ownerA, f.ID()))

	_, err := repo.ByID(ctx, ownerA, f.ID())
	assert.True(t, errs.Is(err, errs.ErrNotFound))

	_, err = f.GetData(ctx)
	assert.True(t, errs.Is(err, errs.ErrNotFound))

	err = repo.Delete(ctx, ownerA, f.ID())
	assert.True(t, errs.Is(err, errs.ErrNotFound))
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	f := mustCreate(t, repo, ownerA, "text/plain; charset=utf-8", []byte("v1"))

	err := f.Replace(ctx, "text/plain", []byte("v2"))
	assert.True(t, errs.Is(err, errs.ErrValidation))

	require.NoError(t, f.Replace(ctx, "text/plain; charset=utf-8", []byte("version 2")))

	loaded, err := repo.ByID(ctx, ownerA, f.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(9), loaded.Size())
	assert.True(t, f.Created().Equal(loaded.Created()))

	data, err := loaded.GetData(ctx)
	require.NoError(t, err)
	assert.Equal(t, "version 2", string(data))
}

func TestRender(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	t.Run("no extension returns original", func(t *testing.T) {
		f := mustCreate(t, repo, ownerA, "application/json; charset=utf-8", []byte(`{"a":1}`))
		data, mt, err := f.Render(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, string(data))
		assert.Equal(t, "application/json", mt)
	})

	t.Run("json to yaml", func(t *testing.T) {
		f := mustCreate(t, repo, ownerA, "application/json", []byte(`{"name":"Alice","age":30}`))
		data, mt, err := f.Render(ctx, ".yaml")
		require.NoError(t, err)
		assert.Equal(t, "application/yaml", mt)
		assert.Contains(t, string(data), "name: Alice")
		assert.Contains(t, string(data), "age: 30")
	})

	t.Run("csv to json", func(t *testing.T) {
		f := mustCreate(t, repo, ownerA, "text/csv", []byte("name,age\nAlice,30\nBob,25"))
		data, _, err := f.Render(ctx, ".json")
		require.NoError(t, err)
		assert.Equal(t, `[{"name":"Alice","age":"30"},{"name":"Bob","age":"25"}]`, string(data))
	})

	t.Run("plain to html unsupported", func(t *testing.T) {
		f := mustCreate(t, repo, ownerA, "text/plain", []byte("hi"))
		_, _, err := f.Render(ctx, ".html")
		assert.True(t, errs.Is(err, errs.ErrUnsupportedMediaType))
	})

	t.Run("unsupported checked before reading data", func(t *testing.T) {
		f, err := repo.Construct(ownerA, "text/plain")
		require.NoError(t, err)
		_, _, err = f.Render(ctx, ".png")
		assert.True(t, errs.Is(err, errs.ErrUnsupportedMediaType))
	})

	t.Run("malformed payload", func(t *testing.T) {
		f := mustCreate(t, repo, ownerA, "application/json", []byte(`{"broken"`))
		_, _, err := f.Render(ctx, ".yaml")
		assert.True(t, errs.Is(err, errs.ErrConversionFailed))
	})
}

func TestMarshalJSON(t *testing.T) {
	repo := newRepo(t)
	created := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)

	f, err := repo.Construct(ownerA, "text/plain", WithID("frag-1"), WithTimestamps(created, created), WithSize(3))
	require.NoError(t, err)

	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "frag-1",
		"ownerId": "11111111aaaaaaaa",
		"created": "2024-05-06T07:08:09.123456789Z",
		"updated": "2024-05-06T07:08:09.123456789Z",
		"type": "text/plain",
		"size": 3
	}`, string(b))
}
