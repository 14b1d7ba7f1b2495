package hash

import (
	"hashdb/pkg/entry"
	"hashdb/pkg/pager"
)

/////////////////////////////////////////////////////////////////////////////
////////////////////////// Low-level Constants //////////////////////////////
/////////////////////////////////////////////////////////////////////////////

const PAGESIZE int64 = pager.Pagesize

// DIRECTORY_PN is the page number of the directory page within an index file.
const DIRECTORY_PN int64 = 0

// MAX_DEPTH bounds the global depth so the directory fits in a single page.
const MAX_DEPTH uint32 = 9
const DIRECTORY_MAX_SIZE uint32 = 1 << MAX_DEPTH

// Directory page layout: global depth, then one local depth byte and one
// 4-byte bucket page number per directory slot.
const GLOBAL_DEPTH_OFFSET int64 = 0
const GLOBAL_DEPTH_SIZE int64 = 4
const LOCAL_DEPTHS_OFFSET int64 = GLOBAL_DEPTH_OFFSET + GLOBAL_DEPTH_SIZE
const LOCAL_DEPTHS_SIZE int64 = int64(DIRECTORY_MAX_SIZE)
const BUCKET_PNS_OFFSET int64 = LOCAL_DEPTHS_OFFSET + LOCAL_DEPTHS_SIZE
const BUCKET_PN_SIZE int64 = 4

// BUCKET_ARRAY_SIZE is the number of slots in a bucket page, chosen so the
// two bitmaps and the slot array fill the page: n/8 + n/8 + 16n <= PAGESIZE.
const BUCKET_ARRAY_SIZE int64 = 4 * PAGESIZE / (4*entry.Size + 1)

// Bucket page layout: occupied bitmap, readable bitmap, slot array.
const BITMAP_SIZE int64 = (BUCKET_ARRAY_SIZE + 7) / 8
const OCCUPIED_OFFSET int64 = 0
const READABLE_OFFSET int64 = OCCUPIED_OFFSET + BITMAP_SIZE
const BUCKET_ARRAY_OFFSET int64 = READABLE_OFFSET + BITMAP_SIZE
