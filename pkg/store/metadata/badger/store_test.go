package badger

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/fragments/pkg/store/metadata"
	storetesting "github.com/marmos91/fragments/pkg/store/metadata/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, dir string) *BadgerMetadataStore {
	t.Helper()
	store, err := NewBadgerMetadataStore(context.Background(), BadgerMetadataStoreConfig{
		DBPath:           dir,
		BlockCacheSizeMB: 8,
		IndexCacheSizeMB: 4,
	})
	require.NoError(t, err)
	return store
}

func TestBadgerMetadataStore(t *testing.T) {
	suite := &storetesting.StoreTestSuite{
		NewStore: func(t *testing.T) metadata.MetadataStore {
			return newTestStore(t, t.TempDir())
		},
	}
	suite.Run(t)
}

func TestBadgerMetadataStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	created := time.Date(2025, 3, 14, 15, 9, 26, 535897932, time.UTC)
	rec := &metadata.Record{
		ID:      "frag-1",
		OwnerID: "owner",
		Created: created,
		Updated: created.Add(time.Minute),
		Type:    "text/markdown",
		Size:    12,
	}

	store := newTestStore(t, dir)
	require.NoError(t, store.WriteMetadata(ctx, rec))
	require.NoError(t, store.WriteMetadata(ctx, &metadata.Record{ID: "frag-2", OwnerID: "owner", Type: "text/plain"}))
	require.NoError(t, store.Close())

	reopened := newTestStore(t, dir)
	defer func() { _ = reopened.Close() }()

	got, found, err := reopened.ReadMetadata(ctx, "owner", "frag-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, created.Equal(got.Created), "nanosecond timestamps survive a restart")
	assert.Equal(t, rec.Type, got.Type)
	assert.Equal(t, rec.Size, got.Size)

	// New ids after a restart still list after the old ones
	require.NoError(t, reopened.WriteMetadata(ctx, &metadata.Record{ID: "frag-3", OwnerID: "owner", Type: "text/plain"}))
	ids, err := reopened.ListIDs(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, []string{"frag-1", "frag-2", "frag-3"}, ids)
}

func TestBadgerMetadataStore_InMemory(t *testing.T) {
	store, err := NewBadgerMetadataStore(context.Background(), BadgerMetadataStoreConfig{InMemory: true})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	assert.NoError(t, store.Healthcheck(context.Background()))
}

func TestBadgerMetadataStore_RequiresPath(t *testing.T) {
	_, err := NewBadgerMetadataStore(context.Background(), BadgerMetadataStoreConfig{})
	assert.Error(t, err)
}

func TestParseRecordKey(t *testing.T) {
	k, err := parseRecordKey(keyRecord("owner", "frag-1"))
	require.NoError(t, err)
	assert.Equal(t, "owner", k.OwnerID)
	assert.Equal(t, "frag-1", k.ID)

	_, err = parseRecordKey([]byte("o:owner"))
	assert.Error(t, err)
}
