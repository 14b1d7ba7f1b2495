package entry

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Size is the number of bytes an entry occupies inside a page slot.
const Size int64 = 16

// Entry is a key-value pair stored in an index slot.
type Entry struct {
	Key   int64
	Value int64
}

// New constructs and returns a new Entry with the specified key and value.
func New(key int64, value int64) Entry {
	return Entry{Key: key, Value: value}
}

// Marshal serializes an entry into a fixed-width 16-byte slot image.
func (entry Entry) Marshal() []byte {
	data := make([]byte, Size)
	binary.LittleEndian.PutUint64(data[:8], uint64(entry.Key))
	binary.LittleEndian.PutUint64(data[8:], uint64(entry.Value))
	return data
}

// Unmarshal deserializes a 16-byte slot image into an entry.
func Unmarshal(data []byte) Entry {
	return Entry{
		Key:   int64(binary.LittleEndian.Uint64(data[:8])),
		Value: int64(binary.LittleEndian.Uint64(data[8:16])),
	}
}

// Print writes the entry to the specified writer in the following format: (<key>, <value>),
func (entry Entry) Print(w io.Writer) {
	fmt.Fprintf(w, "(%d, %d), ", entry.Key, entry.Value)
}
