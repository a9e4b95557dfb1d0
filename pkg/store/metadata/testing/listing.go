package testing

import (
	"sync"
	"testing"

	"github.com/marmos91/fragments/pkg/store/keys"
	"github.com/marmos91/fragments/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunListingTests executes ListIDs ordering and enumeration tests.
func (suite *StoreTestSuite) RunListingTests(t *testing.T) {
	t.Run("ListIDs_Empty", suite.testListEmpty)
	t.Run("ListIDs_InsertionOrder", suite.testListInsertionOrder)
	t.Run("ListIDs_StableAcrossUpsert", suite.testListStableAcrossUpsert)
	t.Run("ListIDs_AfterDelete", suite.testListAfterDelete)
	t.Run("ListIDs_Reinsert", suite.testListReinsert)
	t.Run("ConcurrentWrites", suite.testConcurrentWrites)
	t.Run("ListAllKeys", suite.testListAllKeys)
}

func (suite *StoreTestSuite) testListEmpty(t *testing.T) {
	store := suite.newStore(t)

	ids, err := store.ListIDs(testContext(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func (suite *StoreTestSuite) testListInsertionOrder(t *testing.T) {
	store := suite.newStore(t)

	// Ids deliberately not in lexical order
	want := []string{"zeta", "alpha", "mike", "bravo"}
	for _, id := range want {
		mustWrite(t, store, newRecord("owner", id))
	}

	got, err := store.ListIDs(testContext(), "owner")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func (suite *StoreTestSuite) testListStableAcrossUpsert(t *testing.T) {
	store := suite.newStore(t)

	ids := generateIDs("frag", 5)
	for _, id := range ids {
		mustWrite(t, store, newRecord("owner", id))
	}

	rec := newRecord("owner", ids[1])
	rec.Size = 10
	mustWrite(t, store, rec)

	got, err := store.ListIDs(testContext(), "owner")
	require.NoError(t, err)
	assert.Equal(t, ids, got)
}

func (suite *StoreTestSuite) testListAfterDelete(t *testing.T) {
	store := suite.newStore(t)

	ids := generateIDs("frag", 4)
	for _, id := range ids {
		mustWrite(t, store, newRecord("owner", id))
	}

	_, err := store.DeleteMetadata(testContext(), "owner", ids[2])
	require.NoError(t, err)

	got, err := store.ListIDs(testContext(), "owner")
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[1], ids[3]}, got)
}

func (suite *StoreTestSuite) testListReinsert(t *testing.T) {
	store := suite.newStore(t)

	mustWrite(t, store, newRecord("owner", "a"))
	mustWrite(t, store, newRecord("owner", "b"))

	_, err := store.DeleteMetadata(testContext(), "owner", "a")
	require.NoError(t, err)
	mustWrite(t, store, newRecord("owner", "a"))

	got, err := store.ListIDs(testContext(), "owner")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, got)
}

func (suite *StoreTestSuite) testConcurrentWrites(t *testing.T) {
	store := suite.newStore(t)

	ids := generateIDs("concurrent", 32)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, store.WriteMetadata(testContext(), newRecord("owner", id)))
		}(id)
	}
	wg.Wait()

	got, err := store.ListIDs(testContext(), "owner")
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, got)
}

func (suite *StoreTestSuite) testListAllKeys(t *testing.T) {
	store := suite.newStore(t)
	enum, ok := store.(metadata.Enumerator)
	if !ok {
		t.Skip("Store does not implement Enumerator")
	}

	mustWrite(t, store, newRecord("alice", "a1"))
	mustWrite(t, store, newRecord("alice", "a2"))
	mustWrite(t, store, newRecord("bob", "b1"))

	all, err := enum.ListAllKeys(testContext())
	require.NoError(t, err)
	assert.ElementsMatch(t, []keys.Key{
		{OwnerID: "alice", ID: "a1"},
		{OwnerID: "alice", ID: "a2"},
		{OwnerID: "bob", ID: "b1"},
	}, all)
}
