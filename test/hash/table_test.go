package hash_test

import (
	"testing"

	"hashdb/pkg/hash"
	"hashdb/pkg/pager"
	"hashdb/test/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTable creates an ExtendibleHashTable over a fresh pager, bypassing
// the index layer.
func setupTable(t *testing.T) *hash.ExtendibleHashTable {
	t.Parallel()
	dbName := utils.GetTempDbFile(t)
	pgr, err := pager.New(dbName)
	require.NoError(t, err)
	utils.EnsureCleanup(t, func() {
		_ = pgr.Close()
	})
	table, err := hash.NewExtendibleHashTable(pgr, hash.XxHasher)
	require.NoError(t, err)
	return table
}

func TestTableStartsAtDepthZero(t *testing.T) {
	table := setupTable(t)
	depth, err := table.GetGlobalDepth()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), depth)
	// The file holds exactly the directory page and the starting bucket.
	assert.Equal(t, int64(2), table.GetPager().GetNumPages())
}

func TestTableInsertAndGetValue(t *testing.T) {
	table := setupTable(t)
	inserted, err := table.Insert(1, 100)
	require.NoError(t, err)
	assert.True(t, inserted)

	values, found, err := table.GetValue(1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []int64{100}, values)

	_, found, err = table.GetValue(2)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTableRejectsDuplicatePair(t *testing.T) {
	table := setupTable(t)
	inserted, err := table.Insert(1, 100)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = table.Insert(1, 100)
	require.NoError(t, err)
	assert.False(t, inserted)

	// Same key, different value is a fresh pair.
	inserted, err = table.Insert(1, 101)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestTableRemove(t *testing.T) {
	table := setupTable(t)
	inserted, err := table.Insert(1, 100)
	require.NoError(t, err)
	require.True(t, inserted)

	removed, err := table.Remove(1, 100)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = table.Remove(1, 100)
	require.NoError(t, err)
	assert.False(t, removed)
}

// Filling the starting bucket past capacity forces the first split, growing
// the directory and raising local depths.
func TestTableSplitsWhenFull(t *testing.T) {
	table := setupTable(t)
	for i := int64(0); ; i++ {
		inserted, err := table.Insert(i, i)
		require.NoError(t, err)
		require.True(t, inserted)
		depth, err := table.GetGlobalDepth()
		require.NoError(t, err)
		if depth > 0 {
			break
		}
	}
	// After the split the directory has grown and key 0's bucket is deeper.
	depth, err := table.GetGlobalDepth()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, depth, uint32(1))
	local, err := table.GetLocalDepth(0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, local, uint32(1))
}

// Draining a bucket through RemoveAllItems leaves nothing reachable under
// the keys it held.
func TestTableRemoveAllItems(t *testing.T) {
	table := setupTable(t)
	for i := int64(0); i < 10; i++ {
		inserted, err := table.Insert(i, i*10)
		require.NoError(t, err)
		require.True(t, inserted)
	}
	require.NoError(t, table.RemoveAllItems(0))
	// Depth is still 0, so every key shared the drained bucket.
	for i := int64(0); i < 10; i++ {
		_, found, err := table.GetValue(i)
		require.NoError(t, err)
		assert.False(t, found)
	}
}

// Emptying a split table merges buckets back together and the freed bucket
// pages are recycled by subsequent allocations.
func TestTableMergeRecyclesPages(t *testing.T) {
	table := setupTable(t)
	numInserts := int64(1500)
	for i := range numInserts {
		inserted, err := table.Insert(i, i)
		require.NoError(t, err)
		require.True(t, inserted)
	}
	grown := table.GetPager().GetNumPages()
	for i := range numInserts {
		removed, err := table.Remove(i, i)
		require.NoError(t, err)
		require.True(t, removed)
	}
	depth, err := table.GetGlobalDepth()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), depth)

	// Refill. The pager reuses freed page numbers, so the file must not
	// grow past its previous high-water mark.
	for i := range numInserts {
		inserted, err := table.Insert(i, i)
		require.NoError(t, err)
		require.True(t, inserted)
	}
	assert.LessOrEqual(t, table.GetPager().GetNumPages(), grown)
}
