package hash

import (
	"errors"

	"hashdb/pkg/cursor"
	"hashdb/pkg/entry"
)

// HashCursor points to a spot in the hash table. It walks the distinct
// buckets referenced by the directory in slot order, visiting each bucket
// exactly once even when several directory slots share it.
type HashCursor struct {
	table     *HashIndex
	pns       []int64
	bucketIdx int
	slot      int64
	curBucket *BucketPage
}

// CursorAtStart returns a cursor to the first entry in the hash table.
func (index *HashIndex) CursorAtStart() (cursor.Cursor, error) {
	pns, err := index.table.distinctBucketPNs()
	if err != nil {
		return nil, err
	}
	c := &HashCursor{table: index, pns: pns, bucketIdx: 0, slot: 0}
	bucket, err := index.table.fetchBucket(pns[0])
	if err != nil {
		return nil, err
	}
	c.curBucket = bucket
	// If the cursor did not land on a live entry, move to the first one.
	if !bucket.IsReadable(0) {
		if noEntries := c.Next(); noEntries {
			c.Close()
			return nil, errors.New("all buckets are empty")
		}
	}
	return c, nil
}

// Next moves the cursor ahead by one live entry.
// Returns true if we reach the end of our index.
func (c *HashCursor) Next() bool {
	for {
		c.slot++
		if c.slot >= BUCKET_ARRAY_SIZE || !c.curBucket.IsOccupied(c.slot) {
			// This bucket is exhausted, try visiting the next one.
			c.table.pager.PutPage(c.curBucket.GetPage())
			c.curBucket = nil
			c.bucketIdx++
			if c.bucketIdx >= len(c.pns) {
				return true
			}
			bucket, err := c.table.table.fetchBucket(c.pns[c.bucketIdx])
			if err != nil {
				return true
			}
			c.curBucket = bucket
			c.slot = -1
			continue
		}
		if c.curBucket.IsReadable(c.slot) {
			return false
		}
	}
}

// GetEntry returns the entry currently pointed to by the cursor.
func (c *HashCursor) GetEntry() (entry.Entry, error) {
	if c.curBucket == nil || !c.curBucket.IsReadable(c.slot) {
		return entry.Entry{}, errors.New("getEntry: cursor is not pointing at a valid entry")
	}
	return c.curBucket.EntryAt(c.slot), nil
}

// Close is called when we no longer need to use the cursor anymore.
func (c *HashCursor) Close() {
	if c.curBucket != nil {
		c.table.pager.PutPage(c.curBucket.GetPage())
		c.curBucket = nil
	}
}
