// Package testing provides a contract test suite shared by every
// blob.BlobStore implementation.
package testing

import (
	"context"
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/marmos91/fragments/pkg/store/blob"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite tests the BlobStore interface contract, not implementation
// details, making it reusable across memory, filesystem and S3 backends.
//
// Usage:
//
//	func TestMyBlobStore(t *testing.T) {
//	    suite := &storetesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) blob.BlobStore {
//	            return mystore.New(t.TempDir())
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) blob.BlobStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("KeyValidation", suite.RunKeyTests)
	t.Run("Listing", suite.RunListTests)
	t.Run("Statistics", suite.RunStatsTests)
}

func (suite *StoreTestSuite) newStore(t *testing.T) blob.BlobStore {
	t.Helper()
	store := suite.NewStore(t)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}

// generateTestID creates a unique fragment id for a test.
func generateTestID(name string) string {
	return fmt.Sprintf("test-%s", name)
}

// generateTestData returns size random bytes.
func generateTestData(size int) []byte {
	data := make([]byte, size)
	_, _ = rand.Read(data)
	return data
}

func mustWriteBlob(t *testing.T, store blob.BlobStore, ownerID, id string, data []byte) {
	t.Helper()
	require.NoError(t, store.WriteBlob(testContext(), ownerID, id, data))
}

func mustReadBlob(t *testing.T, store blob.BlobStore, ownerID, id string) []byte {
	t.Helper()
	data, found, err := store.ReadBlob(testContext(), ownerID, id)
	require.NoError(t, err)
	require.True(t, found, "blob %s/%s not found", ownerID, id)
	return data
}
