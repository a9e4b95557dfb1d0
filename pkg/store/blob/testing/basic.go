package testing

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/marmos91/fragments/pkg/errs"
	"github.com/marmos91/fragments/pkg/store/blob"
	"github.com/marmos91/fragments/pkg/store/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBasicTests executes all basic BlobStore operation tests.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("ReadBlob_NotFound", suite.testReadNotFound)
	t.Run("ReadBlob_Success", suite.testReadSuccess)
	t.Run("ReadBlob_Empty", suite.testReadEmpty)
	t.Run("ReadBlob_Large", suite.testReadLarge)
	t.Run("ReadBlob_Compressible", suite.testReadCompressible)
	t.Run("WriteBlob_Overwrite", suite.testOverwrite)
	t.Run("WriteBlob_CallerBufferIsolated", suite.testCallerBufferIsolated)
	t.Run("DeleteBlob_Existing", suite.testDeleteExisting)
	t.Run("DeleteBlob_Missing", suite.testDeleteMissing)
	t.Run("OwnerIsolation", suite.testOwnerIsolation)
	t.Run("ConcurrentWrites", suite.testConcurrentWrites)
	t.Run("CancelledContext", suite.testCancelledContext)
}

// ============================================================================
// ReadBlob / WriteBlob
// ============================================================================

func (suite *StoreTestSuite) testReadNotFound(t *testing.T) {
	store := suite.newStore(t)

	data, found, err := store.ReadBlob(testContext(), "owner", generateTestID("nonexistent"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)
}

func (suite *StoreTestSuite) testReadSuccess(t *testing.T) {
	store := suite.newStore(t)

	id := generateTestID("read-success")
	testData := []byte("Hello, World!")

	mustWriteBlob(t, store, "owner", id, testData)
	assert.Equal(t, testData, mustReadBlob(t, store, "owner", id))
}

func (suite *StoreTestSuite) testReadEmpty(t *testing.T) {
	store := suite.newStore(t)

	id := generateTestID("empty")
	mustWriteBlob(t, store, "owner", id, []byte{})

	assert.Len(t, mustReadBlob(t, store, "owner", id), 0)
}

func (suite *StoreTestSuite) testReadLarge(t *testing.T) {
	store := suite.newStore(t)

	id := generateTestID("large")
	testData := generateTestData(2 << 20) // 2MB, incompressible

	mustWriteBlob(t, store, "owner", id, testData)
	assert.True(t, bytes.Equal(testData, mustReadBlob(t, store, "owner", id)))
}

func (suite *StoreTestSuite) testReadCompressible(t *testing.T) {
	store := suite.newStore(t)

	id := generateTestID("compressible")
	testData := []byte(strings.Repeat("name,age\nAlice,30\nBob,25\n", 4096))

	mustWriteBlob(t, store, "owner", id, testData)
	assert.Equal(t, testData, mustReadBlob(t, store, "owner", id))
}

func (suite *StoreTestSuite) testOverwrite(t *testing.T) {
	store := suite.newStore(t)

	id := generateTestID("overwrite")
	mustWriteBlob(t, store, "owner", id, []byte("a much longer first version"))
	mustWriteBlob(t, store, "owner", id, []byte("short"))

	assert.Equal(t, []byte("short"), mustReadBlob(t, store, "owner", id))
}

func (suite *StoreTestSuite) testCallerBufferIsolated(t *testing.T) {
	store := suite.newStore(t)

	id := generateTestID("isolated")
	buf := []byte("original")
	mustWriteBlob(t, store, "owner", id, buf)

	copy(buf, "mutated!")

	got := mustReadBlob(t, store, "owner", id)
	assert.Equal(t, []byte("original"), got)

	got[0] = 'X'
	assert.Equal(t, []byte("original"), mustReadBlob(t, store, "owner", id))
}

// ============================================================================
// DeleteBlob
// ============================================================================

func (suite *StoreTestSuite) testDeleteExisting(t *testing.T) {
	store := suite.newStore(t)

	id := generateTestID("delete")
	mustWriteBlob(t, store, "owner", id, []byte("bye"))

	existed, err := store.DeleteBlob(testContext(), "owner", id)
	require.NoError(t, err)
	assert.True(t, existed)

	_, found, err := store.ReadBlob(testContext(), "owner", id)
	require.NoError(t, err)
	assert.False(t, found)
}

func (suite *StoreTestSuite) testDeleteMissing(t *testing.T) {
	store := suite.newStore(t)

	existed, err := store.DeleteBlob(testContext(), "owner", generateTestID("never-written"))
	require.NoError(t, err)
	assert.False(t, existed)
}

func (suite *StoreTestSuite) testOwnerIsolation(t *testing.T) {
	store := suite.newStore(t)

	id := generateTestID("shared")
	mustWriteBlob(t, store, "alice", id, []byte("alice's"))

	_, found, err := store.ReadBlob(testContext(), "bob", id)
	require.NoError(t, err)
	assert.False(t, found)

	existed, err := store.DeleteBlob(testContext(), "bob", id)
	require.NoError(t, err)
	assert.False(t, existed)

	assert.Equal(t, []byte("alice's"), mustReadBlob(t, store, "alice", id))
}

func (suite *StoreTestSuite) testConcurrentWrites(t *testing.T) {
	store := suite.newStore(t)

	id := generateTestID("race")
	payloads := [][]byte{
		bytes.Repeat([]byte("a"), 4096),
		bytes.Repeat([]byte("b"), 8192),
		bytes.Repeat([]byte("c"), 100),
	}

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(p []byte) {
			defer wg.Done()
			assert.NoError(t, store.WriteBlob(testContext(), "owner", id, p))
		}(payloads[i%len(payloads)])
	}
	wg.Wait()

	// Last write wins, but the result must be exactly one of the payloads
	got := mustReadBlob(t, store, "owner", id)
	assert.Contains(t, payloads, got)
}

func (suite *StoreTestSuite) testCancelledContext(t *testing.T) {
	store := suite.newStore(t)

	ctx, cancel := context.WithCancel(testContext())
	cancel()

	err := store.WriteBlob(ctx, "owner", generateTestID("cancelled"), []byte("x"))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrStorage))
	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================================================
// Key validation
// ============================================================================

// RunKeyTests verifies malformed keys fail fast with ErrValidation.
func (suite *StoreTestSuite) RunKeyTests(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	bad := []keys.Key{
		{OwnerID: "", ID: "id"},
		{OwnerID: "owner", ID: ""},
		{OwnerID: "owner", ID: "../../etc/passwd"},
		{OwnerID: "..", ID: "id"},
		{OwnerID: "owner", ID: `a\b`},
	}

	for _, k := range bad {
		err := store.WriteBlob(ctx, k.OwnerID, k.ID, []byte("x"))
		assert.True(t, errs.Is(err, errs.ErrValidation), "write %s: %v", k, err)

		_, _, err = store.ReadBlob(ctx, k.OwnerID, k.ID)
		assert.True(t, errs.Is(err, errs.ErrValidation), "read %s: %v", k, err)

		_, err = store.DeleteBlob(ctx, k.OwnerID, k.ID)
		assert.True(t, errs.Is(err, errs.ErrValidation), "delete %s: %v", k, err)
	}
}

// ============================================================================
// Optional interfaces
// ============================================================================

// RunListTests executes Lister tests.
func (suite *StoreTestSuite) RunListTests(t *testing.T) {
	store := suite.newStore(t)
	lister, ok := store.(blob.Lister)
	if !ok {
		t.Skip("Store does not implement Lister")
	}

	empty, err := lister.ListKeys(testContext())
	require.NoError(t, err)
	assert.Empty(t, empty)

	mustWriteBlob(t, store, "alice", "a1", []byte("1"))
	mustWriteBlob(t, store, "alice", "a2", []byte("2"))
	mustWriteBlob(t, store, "bob", "b1", []byte("3"))

	_, err = store.DeleteBlob(testContext(), "alice", "a2")
	require.NoError(t, err)

	all, err := lister.ListKeys(testContext())
	require.NoError(t, err)
	assert.ElementsMatch(t, []keys.Key{
		{OwnerID: "alice", ID: "a1"},
		{OwnerID: "bob", ID: "b1"},
	}, all)
}
