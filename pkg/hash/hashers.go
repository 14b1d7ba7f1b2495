package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
	"github.com/spaolacci/murmur3"
)

// HashFunc maps a key to the 32-bit hash the directory routes on.
type HashFunc func(key int64) uint32

// hash64 runs the given 64-bit hasher over the key's fixed-width encoding
// and truncates the result to the 32 bits extendible hashing indexes on.
func hash64(hasher func(b []byte) uint64, key int64) uint32 {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(key))
	return uint32(hasher(buf))
}

// XxHasher returns the truncated xxHash hash of the given key.
func XxHasher(key int64) uint32 {
	return hash64(xxhash.Sum64, key)
}

// MurmurHasher returns the truncated MurmurHash3 hash of the given key.
func MurmurHasher(key int64) uint32 {
	return hash64(murmur3.Sum64, key)
}

// Hasher returns the directory slot that key routes to at the given depth.
func Hasher(key int64, depth uint32) uint32 {
	return XxHasher(key) & ((1 << depth) - 1)
}
