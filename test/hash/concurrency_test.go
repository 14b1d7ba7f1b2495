package hash_test

import (
	"testing"

	"hashdb/pkg/hash"
	"hashdb/test/utils"

	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/pkg/errors"
)

func TestHashConcurrency(t *testing.T) {
	t.Run("DisjointInserts", testConcurrentDisjointInserts)
	t.Run("MixedReadersWriters", testConcurrentMixedReadersWriters)
}

// Several writers insert disjoint key ranges at once. Every entry must be
// present afterwards and the routing must still verify.
func testConcurrentDisjointInserts(t *testing.T) {
	index := setupHash(t)
	numWriters := int64(4)
	insertsPerWriter := int64(2500)

	var eg errgroup.Group
	for w := range numWriters {
		eg.Go(func() error {
			base := w * insertsPerWriter
			for i := range insertsPerWriter {
				key := base + i
				if err := index.Insert(key, key%hashSalt); err != nil {
					return pkgerrors.Wrapf(err, "failed to insert key %d", key)
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}

	for i := range numWriters * insertsPerWriter {
		utils.CheckFindEntry(t, index, i, i%hashSalt)
	}
	if ok, err := hash.IsHash(index); err != nil || !ok {
		t.Errorf("Index failed verification after concurrent inserts: ok=%v, err=%v", ok, err)
	}
	index.Close()
}

// Readers sweep the table while writers insert and delete. The test only
// requires that nothing deadlocks or corrupts routing; interleaved results
// are inherently racy.
func testConcurrentMixedReadersWriters(t *testing.T) {
	index := setupHash(t)
	numKeys := int64(2000)
	for i := range numKeys {
		utils.InsertEntry(t, index, i, i%hashSalt)
	}
	if t.Failed() {
		t.FailNow()
	}

	var eg errgroup.Group
	// Writer churns the upper key range.
	eg.Go(func() error {
		for i := numKeys; i < 2*numKeys; i++ {
			if err := index.Insert(i, i%hashSalt); err != nil {
				return pkgerrors.Wrapf(err, "failed to insert key %d", i)
			}
		}
		for i := numKeys; i < 2*numKeys; i++ {
			if err := index.Delete(i); err != nil {
				return pkgerrors.Wrapf(err, "failed to delete key %d", i)
			}
		}
		return nil
	})
	// Readers repeatedly probe the stable lower key range.
	for r := 0; r < 2; r++ {
		eg.Go(func() error {
			for round := 0; round < 3; round++ {
				for i := range numKeys {
					if _, err := index.Find(i); err != nil {
						return pkgerrors.Wrapf(err, "failed to find key %d", i)
					}
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}

	for i := range numKeys {
		utils.CheckFindEntry(t, index, i, i%hashSalt)
	}
	if ok, err := hash.IsHash(index); err != nil || !ok {
		t.Errorf("Index failed verification after mixed workload: ok=%v, err=%v", ok, err)
	}
	index.Close()
}
