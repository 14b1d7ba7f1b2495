package hash

import (
	"fmt"
	"io"
	"math/bits"

	"hashdb/pkg/entry"
	"hashdb/pkg/pager"
)

// BucketPage is a typed view over a pager frame laid out as two parallel
// bitmaps (occupied, readable) followed by a fixed array of entry slots.
//
// An occupied bit marks a slot that has held an entry at some point in the
// page's lifetime and is never cleared; linear scans stop at the first
// never-occupied slot. A readable bit marks a live entry. A slot with
// occupied=1 and readable=0 is a tombstone that may be reused by Insert.
type BucketPage struct {
	page *pager.Page
}

// toBucketPage wraps a pager frame as a BucketPage.
func toBucketPage(page *pager.Page) *BucketPage {
	return &BucketPage{page: page}
}

// GetPage returns the pager frame backing this bucket.
func (bucket *BucketPage) GetPage() *pager.Page {
	return bucket.page
}

// IsOccupied reports whether slot i has ever held an entry.
func (bucket *BucketPage) IsOccupied(i int64) bool {
	return bucket.page.GetData()[OCCUPIED_OFFSET+i/8]&(1<<(i%8)) != 0
}

// SetOccupied sets the occupied bit of slot i. Occupied bits are never cleared.
func (bucket *BucketPage) SetOccupied(i int64) {
	b := bucket.page.GetData()[OCCUPIED_OFFSET+i/8] | 1<<(i%8)
	bucket.page.Update([]byte{b}, OCCUPIED_OFFSET+i/8, 1)
}

// IsReadable reports whether slot i holds a live entry.
func (bucket *BucketPage) IsReadable(i int64) bool {
	return bucket.page.GetData()[READABLE_OFFSET+i/8]&(1<<(i%8)) != 0
}

// SetReadable sets the readable bit of slot i.
func (bucket *BucketPage) SetReadable(i int64) {
	b := bucket.page.GetData()[READABLE_OFFSET+i/8] | 1<<(i%8)
	bucket.page.Update([]byte{b}, READABLE_OFFSET+i/8, 1)
}

// SetUnreadable clears the readable bit of slot i, leaving the occupied bit
// set so probe chains through this slot stay intact.
func (bucket *BucketPage) SetUnreadable(i int64) {
	b := bucket.page.GetData()[READABLE_OFFSET+i/8] &^ (1 << (i % 8))
	bucket.page.Update([]byte{b}, READABLE_OFFSET+i/8, 1)
}

// slotPos gets the byte-position of the slot with the given index.
func slotPos(i int64) int64 {
	return BUCKET_ARRAY_OFFSET + i*entry.Size
}

// EntryAt returns the raw contents of slot i, regardless of its bits.
func (bucket *BucketPage) EntryAt(i int64) entry.Entry {
	startPos := slotPos(i)
	return entry.Unmarshal(bucket.page.GetData()[startPos : startPos+entry.Size])
}

// KeyAt returns the key stored in slot i when it is readable,
// and the zero key otherwise.
func (bucket *BucketPage) KeyAt(i int64) int64 {
	if !bucket.IsReadable(i) {
		return 0
	}
	return bucket.EntryAt(i).Key
}

// ValueAt returns the value stored in slot i when it is readable,
// and the zero value otherwise.
func (bucket *BucketPage) ValueAt(i int64) int64 {
	if !bucket.IsReadable(i) {
		return 0
	}
	return bucket.EntryAt(i).Value
}

// RemoveAt tombstones slot i unconditionally.
func (bucket *BucketPage) RemoveAt(i int64) {
	bucket.SetUnreadable(i)
}

// GetValue collects every live value stored under the given key.
// Returns whether at least one match was found.
func (bucket *BucketPage) GetValue(key int64) (result []int64, found bool) {
	for i := int64(0); i < BUCKET_ARRAY_SIZE; i++ {
		if bucket.IsReadable(i) && bucket.EntryAt(i).Key == key {
			result = append(result, bucket.EntryAt(i).Value)
			found = true
		} else if !bucket.IsOccupied(i) {
			break
		}
	}
	return result, found
}

// Insert writes the (key, value) pair into the earliest tombstoned or
// never-used slot. Returns false if an identical pair already lives in the
// bucket, or if no free slot exists. The scan keeps going past the chosen
// slot until a never-occupied slot so duplicates further down the probe
// chain are still rejected.
func (bucket *BucketPage) Insert(key int64, value int64) bool {
	insertIndex := BUCKET_ARRAY_SIZE
	for i := int64(0); i < BUCKET_ARRAY_SIZE; i++ {
		if bucket.IsReadable(i) {
			if e := bucket.EntryAt(i); e.Key == key && e.Value == value {
				return false
			}
		} else {
			if insertIndex == BUCKET_ARRAY_SIZE {
				insertIndex = i
			}
			if !bucket.IsOccupied(i) {
				break
			}
		}
	}
	if insertIndex == BUCKET_ARRAY_SIZE {
		return false
	}
	bucket.page.Update(entry.New(key, value).Marshal(), slotPos(insertIndex), entry.Size)
	bucket.SetOccupied(insertIndex)
	bucket.SetReadable(insertIndex)
	return true
}

// Remove tombstones the first slot holding exactly (key, value).
// Returns whether such a slot was found.
func (bucket *BucketPage) Remove(key int64, value int64) bool {
	for i := int64(0); i < BUCKET_ARRAY_SIZE; i++ {
		if bucket.IsReadable(i) {
			if e := bucket.EntryAt(i); e.Key == key && e.Value == value {
				bucket.SetUnreadable(i)
				return true
			}
		}
		if !bucket.IsOccupied(i) {
			break
		}
	}
	return false
}

// IsFull reports whether every slot holds a live entry.
func (bucket *BucketPage) IsFull() bool {
	data := bucket.page.GetData()
	for i := int64(0); i < BUCKET_ARRAY_SIZE/8; i++ {
		if data[READABLE_OFFSET+i] != 0xff {
			return false
		}
	}
	// The trailing byte only covers BUCKET_ARRAY_SIZE mod 8 slots.
	rest := BUCKET_ARRAY_SIZE % 8
	if rest != 0 && data[READABLE_OFFSET+(BUCKET_ARRAY_SIZE-1)/8] != byte(1<<rest)-1 {
		return false
	}
	return true
}

// IsEmpty reports whether no slot holds a live entry.
func (bucket *BucketPage) IsEmpty() bool {
	data := bucket.page.GetData()
	for i := int64(0); i < BITMAP_SIZE; i++ {
		if data[READABLE_OFFSET+i] != 0 {
			return false
		}
	}
	return true
}

// NumReadable counts the live entries in the bucket.
func (bucket *BucketPage) NumReadable() int64 {
	data := bucket.page.GetData()
	count := 0
	for i := int64(0); i < BITMAP_SIZE; i++ {
		count += bits.OnesCount8(data[READABLE_OFFSET+i])
	}
	return int64(count)
}

// Size returns the bucket's slot capacity.
func (bucket *BucketPage) Size() int64 {
	return BUCKET_ARRAY_SIZE
}

// GetAllItems returns every live (key, value) pair in the bucket.
func (bucket *BucketPage) GetAllItems() []entry.Entry {
	items := make([]entry.Entry, 0, BUCKET_ARRAY_SIZE)
	for i := int64(0); i < BUCKET_ARRAY_SIZE; i++ {
		if bucket.IsReadable(i) {
			items = append(items, bucket.EntryAt(i))
		}
	}
	return items
}

// Print writes a string-representation of this bucket and its entries to the specified writer.
func (bucket *BucketPage) Print(w io.Writer) {
	occupied := int64(0)
	for i := int64(0); i < BUCKET_ARRAY_SIZE && bucket.IsOccupied(i); i++ {
		occupied++
	}
	io.WriteString(w, fmt.Sprintf("capacity: %d, occupied: %d, live: %d\n",
		BUCKET_ARRAY_SIZE, occupied, bucket.NumReadable()))
	io.WriteString(w, "entries:")
	for i := int64(0); i < BUCKET_ARRAY_SIZE; i++ {
		if bucket.IsReadable(i) {
			bucket.EntryAt(i).Print(w)
		}
	}
	io.WriteString(w, "\n")
}
