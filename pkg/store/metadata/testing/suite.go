// Package testing provides a contract test suite shared by every
// metadata.MetadataStore implementation.
package testing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/marmos91/fragments/pkg/store/metadata"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite tests the MetadataStore interface contract, not
// implementation details, so it runs unchanged against memory, badger and
// sqlite.
//
// Usage:
//
//	func TestMyMetadataStore(t *testing.T) {
//	    suite := &storetesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) metadata.MetadataStore {
//	            return mystore.New(t.TempDir())
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test. The suite closes
	// it when the test ends.
	NewStore func(t *testing.T) metadata.MetadataStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Records", suite.RunRecordTests)
	t.Run("Listing", suite.RunListingTests)
	t.Run("Keys", suite.RunKeyTests)
	t.Run("Lifecycle", suite.RunLifecycleTests)
}

func (suite *StoreTestSuite) newStore(t *testing.T) metadata.MetadataStore {
	t.Helper()
	store := suite.NewStore(t)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}

// newRecord builds a record with millisecond-truncated UTC timestamps so
// every backend round-trips it exactly.
func newRecord(ownerID, id string) *metadata.Record {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &metadata.Record{
		ID:      id,
		OwnerID: ownerID,
		Created: now,
		Updated: now,
		Type:    "text/plain; charset=utf-8",
		Size:    0,
	}
}

func mustWrite(t *testing.T, store metadata.MetadataStore, rec *metadata.Record) {
	t.Helper()
	require.NoError(t, store.WriteMetadata(testContext(), rec))
}

func generateIDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%03d", prefix, i)
	}
	return ids
}

// assertRecordEqual compares records using time.Equal for timestamps.
func assertRecordEqual(t *testing.T, want, got *metadata.Record) {
	t.Helper()
	require.NotNil(t, got)
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.OwnerID, got.OwnerID)
	require.Equal(t, want.Type, got.Type)
	require.Equal(t, want.Size, got.Size)
	require.True(t, want.Created.Equal(got.Created), "created: want %v, got %v", want.Created, got.Created)
	require.True(t, want.Updated.Equal(got.Updated), "updated: want %v, got %v", want.Updated, got.Updated)
}
