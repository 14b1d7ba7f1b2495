package database

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"hashdb/pkg/hash"

	"github.com/otiai10/copy"
	pkgerrors "github.com/pkg/errors"
)

// Database is a named collection of hash indexes, each backed by a file in
// the database's data folder.
type Database struct {
	basepath string
	tables   map[string]Index
}

// Opens a database given a data folder.
func Open(folder string) (*Database, error) {
	// Ensure folder is of the form */
	if !strings.HasSuffix(folder, "/") {
		folder += "/"
	}
	// Make the data directory.
	err := os.MkdirAll(folder, 0775)
	if err != nil {
		return nil, err
	}
	// Return an empty database.
	return &Database{
		basepath: folder,
		tables:   make(map[string]Index),
	}, nil
}

// Close each table in the database, then close the database.
func (db *Database) Close() (err error) {
	for _, table := range db.tables {
		curErr := table.Close()
		if err == nil {
			err = curErr
		}
	}
	return err
}

// Create a table with the given name.
func (db *Database) CreateTable(name string) (index Index, err error) {
	// Ensure the db name is alphanumeric.
	alphanumeric, _ := regexp.Compile(`\W`)
	if alphanumeric.MatchString(name) {
		return nil, errors.New("table name must be alphanumeric")
	}
	// Create the file, if not exists.
	path := filepath.Join(db.basepath, name)
	if _, err := os.Stat(path); err == nil {
		return nil, errors.New("table already exists")
	}
	index, err = hash.OpenTable(path)
	if err != nil {
		return nil, err
	}
	db.tables[name] = index
	return index, nil
}

// Get a table by its name, either from existing tables, or by opening its
// backing file from disk.
func (db *Database) GetTable(name string) (index Index, err error) {
	// Check existing set of tables.
	if idx, ok := db.tables[name]; ok {
		return idx, nil
	}
	// Check if file exists; if not, error.
	path := filepath.Join(db.basepath, name)
	if _, err := os.Stat(path); err != nil {
		return nil, errors.New("table not found")
	}
	// Else, open from disk.
	index, err = hash.OpenTable(path)
	if err != nil {
		return nil, err
	}
	db.tables[name] = index
	return index, nil
}

// Snapshot writes a consistent copy of the database's data folder to the
// given destination folder. Every table's buffer is frozen and flushed
// before the files are copied, so the snapshot reflects a single point in
// time across all tables.
func (db *Database) Snapshot(folder string) error {
	if filepath.Clean(folder) == filepath.Clean(db.basepath) {
		return errors.New("snapshot folder cannot be the data folder")
	}
	for _, table := range db.tables {
		pager := table.GetPager()
		pager.LockAllPages()
		pager.FlushAllPages()
		defer pager.UnlockAllPages()
	}
	return pkgerrors.Wrap(copy.Copy(db.basepath, folder), "failed to copy data folder")
}

// Get a database's tables.
func (db *Database) GetTables() map[string]Index {
	return db.tables
}

// Returns the basepath of the database.
func (db *Database) GetBasePath() string {
	return db.basepath
}
