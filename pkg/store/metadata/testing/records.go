package testing

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/fragments/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunRecordTests executes point read/write/delete tests.
func (suite *StoreTestSuite) RunRecordTests(t *testing.T) {
	t.Run("ReadMetadata_NotFound", suite.testReadNotFound)
	t.Run("WriteMetadata_ThenRead", suite.testWriteThenRead)
	t.Run("WriteMetadata_Upsert", suite.testUpsert)
	t.Run("ReadMetadata_ReturnsCopy", suite.testReadReturnsCopy)
	t.Run("DeleteMetadata_Existing", suite.testDeleteExisting)
	t.Run("DeleteMetadata_Twice", suite.testDeleteTwice)
	t.Run("OwnerIsolation", suite.testOwnerIsolation)
}

// ============================================================================
// Point operations
// ============================================================================

func (suite *StoreTestSuite) testReadNotFound(t *testing.T) {
	store := suite.newStore(t)

	rec, found, err := store.ReadMetadata(testContext(), "owner", "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, rec)
}

func (suite *StoreTestSuite) testWriteThenRead(t *testing.T) {
	store := suite.newStore(t)

	want := newRecord("owner", "frag-1")
	want.Size = 42
	mustWrite(t, store, want)

	got, found, err := store.ReadMetadata(testContext(), "owner", "frag-1")
	require.NoError(t, err)
	require.True(t, found)
	assertRecordEqual(t, want, got)
}

func (suite *StoreTestSuite) testUpsert(t *testing.T) {
	store := suite.newStore(t)

	rec := newRecord("owner", "frag-1")
	mustWrite(t, store, rec)

	updated := rec.Clone()
	updated.Size = 1024
	updated.Updated = rec.Updated.Add(time.Second)
	mustWrite(t, store, updated)

	got, found, err := store.ReadMetadata(testContext(), "owner", "frag-1")
	require.NoError(t, err)
	require.True(t, found)
	assertRecordEqual(t, updated, got)

	ids, err := store.ListIDs(testContext(), "owner")
	require.NoError(t, err)
	assert.Equal(t, []string{"frag-1"}, ids)
}

func (suite *StoreTestSuite) testReadReturnsCopy(t *testing.T) {
	store := suite.newStore(t)

	rec := newRecord("owner", "frag-1")
	mustWrite(t, store, rec)

	// Mutating the caller's record after write must not leak into the store
	rec.Size = 999

	got, _, err := store.ReadMetadata(testContext(), "owner", "frag-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Size)

	got.Size = 777
	again, _, err := store.ReadMetadata(testContext(), "owner", "frag-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.Size)
}

func (suite *StoreTestSuite) testDeleteExisting(t *testing.T) {
	store := suite.newStore(t)

	mustWrite(t, store, newRecord("owner", "frag-1"))

	existed, err := store.DeleteMetadata(testContext(), "owner", "frag-1")
	require.NoError(t, err)
	assert.True(t, existed)

	_, found, err := store.ReadMetadata(testContext(), "owner", "frag-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func (suite *StoreTestSuite) testDeleteTwice(t *testing.T) {
	store := suite.newStore(t)

	mustWrite(t, store, newRecord("owner", "frag-1"))

	existed, err := store.DeleteMetadata(testContext(), "owner", "frag-1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = store.DeleteMetadata(testContext(), "owner", "frag-1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func (suite *StoreTestSuite) testOwnerIsolation(t *testing.T) {
	store := suite.newStore(t)

	mustWrite(t, store, newRecord("alice", "shared-id"))
	mustWrite(t, store, newRecord("alice", "alice-only"))

	_, found, err := store.ReadMetadata(testContext(), "bob", "shared-id")
	require.NoError(t, err)
	assert.False(t, found)

	ids, err := store.ListIDs(testContext(), "bob")
	require.NoError(t, err)
	assert.Empty(t, ids)

	existed, err := store.DeleteMetadata(testContext(), "bob", "alice-only")
	require.NoError(t, err)
	assert.False(t, existed)

	_, found, err = store.ReadMetadata(testContext(), "alice", "alice-only")
	require.NoError(t, err)
	assert.True(t, found)
}

// ============================================================================
// Key validation
// ============================================================================

// RunKeyTests verifies malformed keys fail fast with ErrValidation.
func (suite *StoreTestSuite) RunKeyTests(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	bad := []struct{ owner, id string }{
		{"", "id"},
		{"owner", ""},
		{"owner", "../escape"},
		{"..", "id"},
		{"own:er", "id"},
	}

	for _, k := range bad {
		rec := newRecord(k.owner, k.id)
		assert.True(t, errs.Is(store.WriteMetadata(ctx, rec), errs.ErrValidation), "write %q/%q", k.owner, k.id)

		_, _, err := store.ReadMetadata(ctx, k.owner, k.id)
		assert.True(t, errs.Is(err, errs.ErrValidation), "read %q/%q", k.owner, k.id)

		_, err = store.DeleteMetadata(ctx, k.owner, k.id)
		assert.True(t, errs.Is(err, errs.ErrValidation), "delete %q/%q", k.owner, k.id)
	}

	_, err := store.ListIDs(ctx, "")
	assert.True(t, errs.Is(err, errs.ErrValidation))

	assert.True(t, errs.Is(store.WriteMetadata(ctx, nil), errs.ErrValidation))
}

// ============================================================================
// Lifecycle
// ============================================================================

// RunLifecycleTests covers health checks and context handling.
func (suite *StoreTestSuite) RunLifecycleTests(t *testing.T) {
	t.Run("Healthcheck", func(t *testing.T) {
		store := suite.newStore(t)
		assert.NoError(t, store.Healthcheck(testContext()))
	})

	t.Run("CancelledContext", func(t *testing.T) {
		store := suite.newStore(t)
		ctx, cancel := context.WithCancel(testContext())
		cancel()

		err := store.WriteMetadata(ctx, newRecord("owner", "frag-1"))
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.ErrStorage))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
