package hash_test

import (
	"testing"

	"hashdb/test/utils"
)

func TestHashSelect(t *testing.T) {
	t.Run("Empty", testSelectEmpty)
	t.Run("Random", testSelectRandom)
	t.Run("Multimap", testSelectMultimap)
	t.Run("DuplicatePair", testDuplicatePair)
}

// Selecting from an empty index errors, since there is nothing for the
// cursor to point at.
func testSelectEmpty(t *testing.T) {
	index := setupHash(t)
	if _, err := index.Select(); err == nil {
		t.Error("Expected selecting from an empty index to error")
	}
	index.Close()
}

// Inserts random entries and checks that Select returns exactly those
// entries, visiting each bucket once despite shared directory slots.
func testSelectRandom(t *testing.T) {
	index := setupHash(t)
	numInserts := int64(1000)
	entries, answerKey := utils.GenerateRandomKeyValuePairs(numInserts)
	for _, e := range entries {
		utils.InsertEntry(t, index, e.Key, e.Val)
	}
	if t.Failed() {
		t.FailNow()
	}
	selected, err := index.Select()
	if err != nil {
		t.Fatal("Failed to select:", err)
	}
	if int64(len(selected)) != numInserts {
		t.Errorf("Expected %d entries from select, got %d", numInserts, len(selected))
	}
	for _, e := range selected {
		expectedVal, ok := answerKey[e.Key]
		if !ok {
			t.Errorf("Select returned entry with unexpected key %d", e.Key)
			continue
		}
		utils.CheckEntry(t, e, e.Key, expectedVal)
	}
	index.Close()
}

// A key may map to several values. Find surfaces one of them, Delete drops
// all of them.
func testSelectMultimap(t *testing.T) {
	index := setupHash(t)
	key := int64(7)
	for v := int64(1); v <= 3; v++ {
		utils.InsertEntry(t, index, key, v)
	}
	if t.Failed() {
		t.FailNow()
	}
	values, found, err := index.GetTable().GetValue(key)
	if err != nil {
		t.Fatal("Failed to get values:", err)
	}
	if !found || len(values) != 3 {
		t.Fatalf("Expected 3 values under key %d, got %v", key, values)
	}
	if err := index.Delete(key); err != nil {
		t.Fatal("Failed to delete key:", err)
	}
	if _, found, _ := index.GetTable().GetValue(key); found {
		t.Errorf("Found values under key %d after deleting it", key)
	}
	index.Close()
}

// Inserting the identical (key, value) pair twice is rejected.
func testDuplicatePair(t *testing.T) {
	index := setupHash(t)
	utils.InsertEntry(t, index, 5, 10)
	if err := index.Insert(5, 10); err == nil {
		t.Error("Expected inserting a duplicate pair to error")
	}
	// A same-key different-value pair is still allowed.
	utils.InsertEntry(t, index, 5, 11)
	index.Close()
}
