package testing

import (
	"testing"

	"github.com/marmos91/fragments/pkg/store/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStatsTests executes all storage statistics tests.
func (suite *StoreTestSuite) RunStatsTests(t *testing.T) {
	t.Run("GetStorageStats_Empty", suite.testStatsEmpty)
	t.Run("GetStorageStats_WithContent", suite.testStatsWithContent)
	t.Run("GetStorageStats_AfterDelete", suite.testStatsAfterDelete)
}

func (suite *StoreTestSuite) statsStore(t *testing.T) (blob.BlobStore, blob.StatsProvider) {
	store := suite.newStore(t)
	provider, ok := store.(blob.StatsProvider)
	if !ok {
		t.Skip("Store does not implement StatsProvider")
	}
	return store, provider
}

func (suite *StoreTestSuite) testStatsEmpty(t *testing.T) {
	_, provider := suite.statsStore(t)

	stats, err := provider.GetStorageStats(testContext())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stats.UsedSize)
	assert.Equal(t, uint64(0), stats.BlobCount)
	assert.Equal(t, uint64(0), stats.AverageSize)
}

func (suite *StoreTestSuite) testStatsWithContent(t *testing.T) {
	store, provider := suite.statsStore(t)

	mustWriteBlob(t, store, "owner", generateTestID("stats-1"), generateTestData(100))
	mustWriteBlob(t, store, "owner", generateTestID("stats-2"), generateTestData(200))
	mustWriteBlob(t, store, "other", generateTestID("stats-3"), generateTestData(300))

	stats, err := provider.GetStorageStats(testContext())
	require.NoError(t, err)
	assert.Equal(t, uint64(600), stats.UsedSize)
	assert.Equal(t, uint64(3), stats.BlobCount)
	assert.Equal(t, uint64(200), stats.AverageSize)
}

func (suite *StoreTestSuite) testStatsAfterDelete(t *testing.T) {
	store, provider := suite.statsStore(t)

	mustWriteBlob(t, store, "owner", generateTestID("keep"), generateTestData(100))
	mustWriteBlob(t, store, "owner", generateTestID("drop"), generateTestData(300))

	_, err := store.DeleteBlob(testContext(), "owner", generateTestID("drop"))
	require.NoError(t, err)

	stats, err := provider.GetStorageStats(testContext())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), stats.UsedSize)
	assert.Equal(t, uint64(1), stats.BlobCount)
}
