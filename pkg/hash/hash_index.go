package hash

import (
	"io"
	"path/filepath"

	"hashdb/pkg/entry"
	"hashdb/pkg/pager"

	pkgerrors "github.com/pkg/errors"
)

// HashIndex is an index that uses an ExtendibleHashTable as its underlying
// datastructure.
type HashIndex struct {
	table *ExtendibleHashTable
	pager *pager.Pager
}

// OpenTable opens the index backed by the file at the given path, creating
// a fresh table if the file is empty.
func OpenTable(filename string) (*HashIndex, error) {
	// Create a pager for the table.
	pgr, err := pager.New(filename)
	if err != nil {
		return nil, err
	}
	var table *ExtendibleHashTable
	if pgr.GetNumPages() == 0 {
		table, err = NewExtendibleHashTable(pgr, XxHasher)
	} else {
		table, err = LoadExtendibleHashTable(pgr, XxHasher)
	}
	if err != nil {
		return nil, err
	}
	return &HashIndex{table: table, pager: pgr}, nil
}

// GetName returns the base file name of the file backing this index's pager.
func (index *HashIndex) GetName() string {
	return filepath.Base(index.pager.GetFileName())
}

// GetPager returns the pager backing this index.
func (index *HashIndex) GetPager() *pager.Pager {
	return index.pager
}

// GetTable returns the underlying table.
func (index *HashIndex) GetTable() *ExtendibleHashTable {
	return index.table
}

// Close flushes the index and closes its backing file.
func (index *HashIndex) Close() error {
	return index.pager.Close()
}

// Find returns an entry holding the first value stored under the key.
func (index *HashIndex) Find(key int64) (entry.Entry, error) {
	values, found, err := index.table.GetValue(key)
	if err != nil {
		return entry.Entry{}, err
	}
	if !found {
		return entry.Entry{}, pkgerrors.Errorf("no entry with key %d was found", key)
	}
	return entry.New(key, values[0]), nil
}

// Insert adds the (key, value) pair to the index. Keys may map to several
// values, but inserting the identical pair twice is an error.
func (index *HashIndex) Insert(key int64, value int64) error {
	inserted, err := index.table.Insert(key, value)
	if err != nil {
		return err
	}
	if !inserted {
		return pkgerrors.Errorf("entry (%d, %d) already exists", key, value)
	}
	return nil
}

// Update replaces every value stored under the key with the given value.
func (index *HashIndex) Update(key int64, value int64) error {
	values, found, err := index.table.GetValue(key)
	if err != nil {
		return err
	}
	if !found {
		return pkgerrors.Errorf("no entry with key %d was found", key)
	}
	for _, v := range values {
		if _, err := index.table.Remove(key, v); err != nil {
			return err
		}
	}
	_, err = index.table.Insert(key, value)
	return err
}

// Delete removes every value stored under the key.
func (index *HashIndex) Delete(key int64) error {
	values, found, err := index.table.GetValue(key)
	if err != nil {
		return err
	}
	if !found {
		return pkgerrors.Errorf("no entry with key %d was found", key)
	}
	for _, v := range values {
		if _, err := index.table.Remove(key, v); err != nil {
			return err
		}
	}
	return nil
}

// Select returns every entry in the index.
func (index *HashIndex) Select() ([]entry.Entry, error) {
	c, err := index.CursorAtStart()
	if err != nil {
		return nil, err
	}
	defer c.Close()
	var entries []entry.Entry
	for {
		e, err := c.GetEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		if c.Next() {
			return entries, nil
		}
	}
}

// Print writes a string-representation of the index to the specified writer.
func (index *HashIndex) Print(w io.Writer) {
	index.table.Print(w)
}

// PrintPN writes a string-representation of the bucket on the given page.
func (index *HashIndex) PrintPN(pn int, w io.Writer) {
	index.table.PrintPN(int64(pn), w)
}
