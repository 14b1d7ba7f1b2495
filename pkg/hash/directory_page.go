package hash

import (
	"encoding/binary"
	"fmt"
	"io"

	"hashdb/pkg/pager"
)

// DirectoryPage is a typed view over the frame holding the table's directory.
// The layout is a 4-byte global depth, then one local depth byte per slot,
// then one 4-byte bucket page number per slot. Only the first 1<<globalDepth
// slots of each array are meaningful at any point in time.
type DirectoryPage struct {
	page *pager.Page
}

// toDirectoryPage wraps a pager frame as a DirectoryPage.
func toDirectoryPage(page *pager.Page) *DirectoryPage {
	return &DirectoryPage{page: page}
}

// GetPage returns the pager frame backing this directory.
func (dir *DirectoryPage) GetPage() *pager.Page {
	return dir.page
}

// GetGlobalDepth returns the number of hash bits the directory routes on.
func (dir *DirectoryPage) GetGlobalDepth() uint32 {
	return binary.LittleEndian.Uint32(dir.page.GetData()[GLOBAL_DEPTH_OFFSET:])
}

// SetGlobalDepth overwrites the directory's global depth.
func (dir *DirectoryPage) SetGlobalDepth(depth uint32) {
	buf := make([]byte, GLOBAL_DEPTH_SIZE)
	binary.LittleEndian.PutUint32(buf, depth)
	dir.page.Update(buf, GLOBAL_DEPTH_OFFSET, GLOBAL_DEPTH_SIZE)
}

// GetGlobalDepthMask returns the low-bit mask that maps a hash to a slot.
func (dir *DirectoryPage) GetGlobalDepthMask() uint32 {
	return (1 << dir.GetGlobalDepth()) - 1
}

// IncrGlobalDepth grows the directory by one bit, mirroring the existing
// half into the new upper half so every old slot i and its new image
// i + oldSize point at the same bucket with the same local depth.
func (dir *DirectoryPage) IncrGlobalDepth() {
	oldSize := int64(dir.Size())
	for i := int64(0); i < oldSize; i++ {
		dir.SetLocalDepth(oldSize+i, dir.GetLocalDepth(i))
		dir.SetBucketPageId(oldSize+i, dir.GetBucketPageId(i))
	}
	dir.SetGlobalDepth(dir.GetGlobalDepth() + 1)
}

// DecrGlobalDepth shrinks the directory by one bit. The caller must have
// checked CanShrink first; the upper half is left as garbage.
func (dir *DirectoryPage) DecrGlobalDepth() {
	dir.SetGlobalDepth(dir.GetGlobalDepth() - 1)
}

// Size returns the number of live directory slots, 1<<globalDepth.
func (dir *DirectoryPage) Size() uint32 {
	return 1 << dir.GetGlobalDepth()
}

// GetLocalDepth returns the local depth of the bucket referenced by slot i.
func (dir *DirectoryPage) GetLocalDepth(i int64) uint32 {
	return uint32(dir.page.GetData()[LOCAL_DEPTHS_OFFSET+i])
}

// SetLocalDepth overwrites the local depth recorded at slot i.
func (dir *DirectoryPage) SetLocalDepth(i int64, depth uint32) {
	dir.page.Update([]byte{byte(depth)}, LOCAL_DEPTHS_OFFSET+i, 1)
}

// IncrLocalDepth bumps the local depth recorded at slot i by one.
func (dir *DirectoryPage) IncrLocalDepth(i int64) {
	dir.SetLocalDepth(i, dir.GetLocalDepth(i)+1)
}

// DecrLocalDepth drops the local depth recorded at slot i by one.
func (dir *DirectoryPage) DecrLocalDepth(i int64) {
	dir.SetLocalDepth(i, dir.GetLocalDepth(i)-1)
}

// GetLocalDepthMask returns the low-bit mask a bucket's local depth implies
// for the bucket referenced by slot i.
func (dir *DirectoryPage) GetLocalDepthMask(i int64) uint32 {
	return (1 << dir.GetLocalDepth(i)) - 1
}

// GetBucketPageId returns the page number of the bucket referenced by slot i.
func (dir *DirectoryPage) GetBucketPageId(i int64) int64 {
	pos := BUCKET_PNS_OFFSET + i*BUCKET_PN_SIZE
	return int64(binary.LittleEndian.Uint32(dir.page.GetData()[pos:]))
}

// SetBucketPageId points slot i at the bucket on the given page.
func (dir *DirectoryPage) SetBucketPageId(i int64, pagenum int64) {
	buf := make([]byte, BUCKET_PN_SIZE)
	binary.LittleEndian.PutUint32(buf, uint32(pagenum))
	dir.page.Update(buf, BUCKET_PNS_OFFSET+i*BUCKET_PN_SIZE, BUCKET_PN_SIZE)
}

// GetSplitImageIndex returns the slot whose bucket slot i's bucket last split
// from, the slot differing from i only in the local depth's top bit.
func (dir *DirectoryPage) GetSplitImageIndex(i int64) int64 {
	d := dir.GetLocalDepth(i)
	return i ^ (1 << (d - 1))
}

// CanShrink reports whether every bucket's local depth is strictly below the
// global depth, so halving the directory loses no routing information.
func (dir *DirectoryPage) CanShrink() bool {
	globalDepth := dir.GetGlobalDepth()
	if globalDepth == 0 {
		return false
	}
	for i := int64(0); i < int64(dir.Size()); i++ {
		if dir.GetLocalDepth(i) == globalDepth {
			return false
		}
	}
	return true
}

// VerifyIntegrity panics if the directory violates any of its structural
// invariants: every local depth is at most the global depth, every bucket
// page appears under exactly 2^(globalDepth-localDepth) slots, all slots
// sharing a bucket agree on its local depth, and slots with the same local
// depth whose low localDepth bits match reference the same bucket.
func (dir *DirectoryPage) VerifyIntegrity() {
	globalDepth := dir.GetGlobalDepth()
	size := int64(dir.Size())
	refCounts := make(map[int64]uint32)
	depths := make(map[int64]uint32)
	for i := int64(0); i < size; i++ {
		localDepth := dir.GetLocalDepth(i)
		if localDepth > globalDepth {
			panic(fmt.Sprintf("slot %d: local depth %d exceeds global depth %d",
				i, localDepth, globalDepth))
		}
		pagenum := dir.GetBucketPageId(i)
		refCounts[pagenum]++
		if prev, seen := depths[pagenum]; seen {
			if prev != localDepth {
				panic(fmt.Sprintf("bucket page %d: inconsistent local depths %d and %d",
					pagenum, prev, localDepth))
			}
		} else {
			depths[pagenum] = localDepth
		}
	}
	for pagenum, count := range refCounts {
		want := uint32(1) << (globalDepth - depths[pagenum])
		if count != want {
			panic(fmt.Sprintf("bucket page %d: referenced by %d slots, want %d",
				pagenum, count, want))
		}
	}
	for i := int64(0); i < size; i++ {
		mask := int64(dir.GetLocalDepthMask(i))
		for j := i + 1; j < size; j++ {
			if dir.GetLocalDepth(j) == dir.GetLocalDepth(i) && j&mask == i&mask &&
				dir.GetBucketPageId(j) != dir.GetBucketPageId(i) {
				panic(fmt.Sprintf("slots %d and %d: same local depth and low bits but buckets %d and %d",
					i, j, dir.GetBucketPageId(i), dir.GetBucketPageId(j)))
			}
		}
	}
}

// Print writes a string-representation of this directory to the specified writer.
func (dir *DirectoryPage) Print(w io.Writer) {
	io.WriteString(w, fmt.Sprintf("global depth: %d\n", dir.GetGlobalDepth()))
	for i := int64(0); i < int64(dir.Size()); i++ {
		io.WriteString(w, fmt.Sprintf("slot %d: bucket page %d, local depth %d\n",
			i, dir.GetBucketPageId(i), dir.GetLocalDepth(i)))
	}
}
