package hash

import (
	"github.com/bits-and-blooms/bitset"
)

// distinctBucketPNs returns the page number of every distinct bucket the
// directory references, in first-slot order.
func (table *ExtendibleHashTable) distinctBucketPNs() ([]int64, error) {
	table.rwlock.RLock()
	defer table.rwlock.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return nil, err
	}
	dir.GetPage().RLock()
	seen := bitset.New(uint(table.pager.GetNumPages()))
	pns := make([]int64, 0)
	for i := int64(0); i < int64(dir.Size()); i++ {
		pn := dir.GetBucketPageId(i)
		if seen.Test(uint(pn)) {
			continue
		}
		seen.Set(uint(pn))
		pns = append(pns, pn)
	}
	dir.GetPage().RUnlock()
	table.pager.PutPage(dir.GetPage())
	return pns, nil
}

// IsHash audits the index's routing: the directory must satisfy its
// structural invariants and every live entry must hash back to the bucket
// that holds it under that bucket's local depth.
func IsHash(index *HashIndex) (bool, error) {
	table := index.GetTable()
	table.rwlock.RLock()
	defer table.rwlock.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return false, err
	}
	defer table.pager.PutPage(dir.GetPage())
	dir.GetPage().RLock()
	defer dir.GetPage().RUnlock()
	dir.VerifyIntegrity()
	checked := bitset.New(uint(table.pager.GetNumPages()))
	for i := int64(0); i < int64(dir.Size()); i++ {
		pn := dir.GetBucketPageId(i)
		if checked.Test(uint(pn)) {
			continue
		}
		checked.Set(uint(pn))
		bucket, err := table.fetchBucket(pn)
		if err != nil {
			return false, err
		}
		mask := int64(dir.GetLocalDepthMask(i))
		ok := true
		bucket.GetPage().RLock()
		for _, e := range bucket.GetAllItems() {
			// Every entry must route to one of the slots sharing this bucket.
			if int64(table.hash(e.Key))&mask != i&mask {
				ok = false
				break
			}
		}
		bucket.GetPage().RUnlock()
		table.pager.PutPage(bucket.GetPage())
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
