package hash

import (
	"fmt"
	"io"
	"sync"

	"hashdb/pkg/pager"

	"github.com/bits-and-blooms/bitset"
	pkgerrors "github.com/pkg/errors"
)

// ExtendibleHashTable is a disk-backed extendible hash table. The directory
// lives on a fixed page of the backing file and every bucket lives on its
// own page, so the table's only in-memory state is the pager it pulls those
// pages through and the hash function it routes with.
//
// Latching is two-level: the table-wide rwlock is held shared by operations
// that touch only bucket contents and exclusively by operations that
// restructure the directory. Underneath it, page latches order concurrent
// readers and writers on individual buckets.
type ExtendibleHashTable struct {
	pager  *pager.Pager
	hash   HashFunc
	rwlock sync.RWMutex
}

// NewExtendibleHashTable initializes a table in the pager's backing file,
// writing a depth-0 directory page and its single starting bucket.
// The file must be empty.
func NewExtendibleHashTable(pgr *pager.Pager, hash HashFunc) (*ExtendibleHashTable, error) {
	dirPage, err := pgr.GetNewPage()
	if err != nil {
		return nil, err
	}
	defer pgr.PutPage(dirPage)
	if dirPage.GetPageNum() != DIRECTORY_PN {
		return nil, pkgerrors.Errorf("directory allocated at page %d, not %d; file is not empty",
			dirPage.GetPageNum(), DIRECTORY_PN)
	}
	bucketPage, err := pgr.GetNewPage()
	if err != nil {
		return nil, err
	}
	defer pgr.PutPage(bucketPage)
	dir := toDirectoryPage(dirPage)
	dir.SetGlobalDepth(0)
	dir.SetLocalDepth(0, 0)
	dir.SetBucketPageId(0, bucketPage.GetPageNum())
	return &ExtendibleHashTable{pager: pgr, hash: hash}, nil
}

// LoadExtendibleHashTable wraps a pager whose backing file already holds a
// table written by NewExtendibleHashTable.
func LoadExtendibleHashTable(pgr *pager.Pager, hash HashFunc) (*ExtendibleHashTable, error) {
	if pgr.GetNumPages() < 2 {
		return nil, pkgerrors.New("file does not contain a hash table")
	}
	return &ExtendibleHashTable{pager: pgr, hash: hash}, nil
}

// GetPager returns the pager backing this table.
func (table *ExtendibleHashTable) GetPager() *pager.Pager {
	return table.pager
}

// fetchDirectory pins the directory page and wraps it. The caller must
// PutPage the returned page.
func (table *ExtendibleHashTable) fetchDirectory() (*DirectoryPage, error) {
	page, err := table.pager.GetPage(DIRECTORY_PN)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to fetch directory page")
	}
	return toDirectoryPage(page), nil
}

// fetchBucket pins the given bucket page and wraps it. The caller must
// PutPage the returned page.
func (table *ExtendibleHashTable) fetchBucket(pagenum int64) (*BucketPage, error) {
	page, err := table.pager.GetPage(pagenum)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to fetch bucket page %d", pagenum)
	}
	return toBucketPage(page), nil
}

// keyToDirectoryIndex returns the directory slot the key routes to.
func (table *ExtendibleHashTable) keyToDirectoryIndex(dir *DirectoryPage, key int64) int64 {
	return int64(table.hash(key) & dir.GetGlobalDepthMask())
}

// GetGlobalDepth returns the directory's current global depth.
func (table *ExtendibleHashTable) GetGlobalDepth() (uint32, error) {
	table.rwlock.RLock()
	defer table.rwlock.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return 0, err
	}
	dir.GetPage().RLock()
	depth := dir.GetGlobalDepth()
	dir.GetPage().RUnlock()
	table.pager.PutPage(dir.GetPage())
	return depth, nil
}

// GetLocalDepth returns the local depth of the bucket the key routes to.
func (table *ExtendibleHashTable) GetLocalDepth(key int64) (uint32, error) {
	table.rwlock.RLock()
	defer table.rwlock.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return 0, err
	}
	dir.GetPage().RLock()
	depth := dir.GetLocalDepth(table.keyToDirectoryIndex(dir, key))
	dir.GetPage().RUnlock()
	table.pager.PutPage(dir.GetPage())
	return depth, nil
}

// GetValue collects every live value stored under the given key.
// Returns whether at least one match was found.
func (table *ExtendibleHashTable) GetValue(key int64) (result []int64, found bool, err error) {
	table.rwlock.RLock()
	defer table.rwlock.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return nil, false, err
	}
	dir.GetPage().RLock()
	bucketPN := dir.GetBucketPageId(table.keyToDirectoryIndex(dir, key))
	bucket, err := table.fetchBucket(bucketPN)
	if err != nil {
		dir.GetPage().RUnlock()
		table.pager.PutPage(dir.GetPage())
		return nil, false, err
	}
	bucket.GetPage().RLock()
	dir.GetPage().RUnlock()
	table.pager.PutPage(dir.GetPage())
	result, found = bucket.GetValue(key)
	bucket.GetPage().RUnlock()
	table.pager.PutPage(bucket.GetPage())
	return result, found, nil
}

// Insert adds the (key, value) pair to the table, splitting buckets and
// growing the directory as needed. Returns false if the identical pair is
// already present.
func (table *ExtendibleHashTable) Insert(key int64, value int64) (bool, error) {
	table.rwlock.RLock()
	dir, err := table.fetchDirectory()
	if err != nil {
		table.rwlock.RUnlock()
		return false, err
	}
	dir.GetPage().RLock()
	bucketPN := dir.GetBucketPageId(table.keyToDirectoryIndex(dir, key))
	bucket, err := table.fetchBucket(bucketPN)
	if err != nil {
		dir.GetPage().RUnlock()
		table.pager.PutPage(dir.GetPage())
		table.rwlock.RUnlock()
		return false, err
	}
	bucket.GetPage().WLock()
	dir.GetPage().RUnlock()
	table.pager.PutPage(dir.GetPage())
	if !bucket.IsFull() {
		inserted := bucket.Insert(key, value)
		bucket.GetPage().WUnlock()
		table.pager.PutPage(bucket.GetPage())
		table.rwlock.RUnlock()
		return inserted, nil
	}
	// The bucket is full. Drop everything and retry with the table held
	// exclusively so the directory can be restructured.
	bucket.GetPage().WUnlock()
	table.pager.PutPage(bucket.GetPage())
	table.rwlock.RUnlock()
	return table.splitInsert(key, value)
}

// splitInsert inserts under the exclusive table lock, splitting the target
// bucket as many times as it takes until the pair fits. Multiple rounds are
// needed when every entry in a full bucket shares more low hash bits than
// one extra depth bit can separate.
func (table *ExtendibleHashTable) splitInsert(key int64, value int64) (bool, error) {
	table.rwlock.Lock()
	defer table.rwlock.Unlock()
	for {
		inserted, retry, err := table.splitOnce(key, value)
		if err != nil || !retry {
			return inserted, err
		}
	}
}

// splitOnce re-checks the key's bucket under the exclusive table lock and
// either inserts into it or performs one split round. Returns retry=true
// when a split happened and the insert must be re-attempted against the
// restructured directory.
func (table *ExtendibleHashTable) splitOnce(key int64, value int64) (inserted bool, retry bool, err error) {
	dir, err := table.fetchDirectory()
	if err != nil {
		return false, false, err
	}
	defer table.pager.PutPage(dir.GetPage())
	dir.GetPage().WLock()
	defer dir.GetPage().WUnlock()
	idx := table.keyToDirectoryIndex(dir, key)
	bucketPN := dir.GetBucketPageId(idx)
	bucket, err := table.fetchBucket(bucketPN)
	if err != nil {
		return false, false, err
	}
	defer table.pager.PutPage(bucket.GetPage())
	bucket.GetPage().WLock()
	defer bucket.GetPage().WUnlock()
	if !bucket.IsFull() {
		// Another writer split this bucket before we got the exclusive lock.
		return bucket.Insert(key, value), false, nil
	}
	localDepth := dir.GetLocalDepth(idx)
	if localDepth >= MAX_DEPTH {
		return false, false, pkgerrors.Errorf("bucket at max depth %d is full", MAX_DEPTH)
	}
	if localDepth == dir.GetGlobalDepth() {
		dir.IncrGlobalDepth()
	}
	newMask := int64(dir.GetLocalDepthMask(idx))<<1 | 1
	newPage, err := table.pager.GetNewPage()
	if err != nil {
		return false, false, err
	}
	defer table.pager.PutPage(newPage)
	newPage.WLock()
	defer newPage.WUnlock()
	newPN := newPage.GetPageNum()
	newBucket := toBucketPage(newPage)
	// Deepen every slot sharing the full bucket, then peel off the half
	// whose new routing bit differs from the probed slot's.
	for i := int64(0); i < int64(dir.Size()); i++ {
		if dir.GetBucketPageId(i) != bucketPN {
			continue
		}
		dir.IncrLocalDepth(i)
		if i&newMask != idx&newMask {
			dir.SetBucketPageId(i, newPN)
		}
	}
	// Rehash the full bucket's entries into the pair of buckets.
	for i := int64(0); i < BUCKET_ARRAY_SIZE; i++ {
		if !bucket.IsOccupied(i) {
			break
		}
		if !bucket.IsReadable(i) {
			continue
		}
		e := bucket.EntryAt(i)
		if int64(table.hash(e.Key))&newMask != idx&newMask {
			newBucket.Insert(e.Key, e.Value)
			bucket.RemoveAt(i)
		}
	}
	return false, true, nil
}

// Remove tombstones the first slot holding exactly (key, value), merging the
// bucket with its split image and shrinking the directory when the removal
// leaves the bucket empty. Returns whether the pair was found.
func (table *ExtendibleHashTable) Remove(key int64, value int64) (bool, error) {
	table.rwlock.RLock()
	dir, err := table.fetchDirectory()
	if err != nil {
		table.rwlock.RUnlock()
		return false, err
	}
	dir.GetPage().RLock()
	bucketPN := dir.GetBucketPageId(table.keyToDirectoryIndex(dir, key))
	bucket, err := table.fetchBucket(bucketPN)
	if err != nil {
		dir.GetPage().RUnlock()
		table.pager.PutPage(dir.GetPage())
		table.rwlock.RUnlock()
		return false, err
	}
	bucket.GetPage().WLock()
	dir.GetPage().RUnlock()
	table.pager.PutPage(dir.GetPage())
	removed := bucket.Remove(key, value)
	empty := bucket.IsEmpty()
	bucket.GetPage().WUnlock()
	table.pager.PutPage(bucket.GetPage())
	table.rwlock.RUnlock()
	if removed && empty {
		if err := table.mergeAndShrink(key); err != nil {
			return true, err
		}
	}
	return removed, nil
}

// RemoveAllItems drains the bucket the key routes to, removing every live
// pair it holds through Remove so the emptied bucket merges away.
func (table *ExtendibleHashTable) RemoveAllItems(key int64) error {
	table.rwlock.RLock()
	dir, err := table.fetchDirectory()
	if err != nil {
		table.rwlock.RUnlock()
		return err
	}
	dir.GetPage().RLock()
	bucketPN := dir.GetBucketPageId(table.keyToDirectoryIndex(dir, key))
	bucket, err := table.fetchBucket(bucketPN)
	if err != nil {
		dir.GetPage().RUnlock()
		table.pager.PutPage(dir.GetPage())
		table.rwlock.RUnlock()
		return err
	}
	bucket.GetPage().RLock()
	dir.GetPage().RUnlock()
	table.pager.PutPage(dir.GetPage())
	items := bucket.GetAllItems()
	bucket.GetPage().RUnlock()
	table.pager.PutPage(bucket.GetPage())
	table.rwlock.RUnlock()
	for _, e := range items {
		if _, err := table.Remove(e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// mergeAndShrink folds the key's now-empty bucket into its split image under
// the exclusive table lock, then keeps folding any further buckets the
// first merge emptied out, shrinking the directory as depths drop.
func (table *ExtendibleHashTable) mergeAndShrink(key int64) error {
	table.rwlock.Lock()
	defer table.rwlock.Unlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return err
	}
	defer table.pager.PutPage(dir.GetPage())
	dir.GetPage().WLock()
	defer dir.GetPage().WUnlock()
	if _, err := table.mergeAt(dir, table.keyToDirectoryIndex(dir, key)); err != nil {
		return err
	}
	for {
		merged, err := table.extraMerge(dir)
		if err != nil {
			return err
		}
		if !merged {
			return nil
		}
	}
}

// mergeAt folds the bucket at directory slot idx into its split image if the
// bucket is empty and the pair share a local depth. The emptied bucket's
// page is deallocated and the directory shrinks while every local depth
// sits strictly below the global depth.
// The caller holds the exclusive table lock and the directory page latch.
func (table *ExtendibleHashTable) mergeAt(dir *DirectoryPage, idx int64) (bool, error) {
	localDepth := dir.GetLocalDepth(idx)
	if localDepth == 0 {
		return false, nil
	}
	imageIdx := dir.GetSplitImageIndex(idx)
	if dir.GetLocalDepth(imageIdx) != localDepth {
		return false, nil
	}
	bucketPN := dir.GetBucketPageId(idx)
	imagePN := dir.GetBucketPageId(imageIdx)
	if bucketPN == imagePN {
		return false, nil
	}
	bucket, err := table.fetchBucket(bucketPN)
	if err != nil {
		return false, err
	}
	bucket.GetPage().RLock()
	empty := bucket.IsEmpty()
	bucket.GetPage().RUnlock()
	table.pager.PutPage(bucket.GetPage())
	if !empty {
		return false, nil
	}
	for i := int64(0); i < int64(dir.Size()); i++ {
		if dir.GetBucketPageId(i) == bucketPN {
			dir.SetBucketPageId(i, imagePN)
		}
		if dir.GetBucketPageId(i) == imagePN {
			dir.SetLocalDepth(i, localDepth-1)
		}
	}
	if err := table.pager.DeletePage(bucketPN); err != nil {
		return false, err
	}
	for dir.CanShrink() {
		dir.DecrGlobalDepth()
	}
	return true, nil
}

// extraMerge scans the directory for any remaining empty bucket whose split
// image shares its depth and folds the first one it finds. A merge that
// shrinks the directory can expose new candidates, so the caller loops
// until a full scan folds nothing.
// The caller holds the exclusive table lock and the directory page latch.
func (table *ExtendibleHashTable) extraMerge(dir *DirectoryPage) (bool, error) {
	seen := bitset.New(uint(dir.Size()))
	for i := int64(0); i < int64(dir.Size()); i++ {
		if seen.Test(uint(i)) {
			continue
		}
		seen.Set(uint(i))
		merged, err := table.mergeAt(dir, i)
		if err != nil {
			return false, err
		}
		if merged {
			return true, nil
		}
	}
	return false, nil
}

// Print writes a string-representation of the table and each of its distinct
// buckets to the specified writer.
func (table *ExtendibleHashTable) Print(w io.Writer) {
	table.rwlock.RLock()
	defer table.rwlock.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		io.WriteString(w, fmt.Sprintf("error fetching directory: %v\n", err))
		return
	}
	dir.GetPage().RLock()
	dir.Print(w)
	printed := make(map[int64]bool)
	for i := int64(0); i < int64(dir.Size()); i++ {
		bucketPN := dir.GetBucketPageId(i)
		if printed[bucketPN] {
			continue
		}
		printed[bucketPN] = true
		bucket, err := table.fetchBucket(bucketPN)
		if err != nil {
			io.WriteString(w, fmt.Sprintf("error fetching bucket page %d: %v\n", bucketPN, err))
			continue
		}
		bucket.GetPage().RLock()
		io.WriteString(w, fmt.Sprintf("bucket page %d\n", bucketPN))
		bucket.Print(w)
		bucket.GetPage().RUnlock()
		table.pager.PutPage(bucket.GetPage())
	}
	dir.GetPage().RUnlock()
	table.pager.PutPage(dir.GetPage())
}

// PrintPN writes a string-representation of the bucket on the given page.
func (table *ExtendibleHashTable) PrintPN(pagenum int64, w io.Writer) {
	table.rwlock.RLock()
	defer table.rwlock.RUnlock()
	bucket, err := table.fetchBucket(pagenum)
	if err != nil {
		io.WriteString(w, fmt.Sprintf("error fetching bucket page %d: %v\n", pagenum, err))
		return
	}
	bucket.GetPage().RLock()
	bucket.Print(w)
	bucket.GetPage().RUnlock()
	table.pager.PutPage(bucket.GetPage())
}
