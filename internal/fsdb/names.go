// Validates names before they are joined into filesystem paths.

package fsdb

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// indexPrefix marks an index directory inside a table.
	indexPrefix = "@"
	// linkSep separates the two primary keys of a link record.
	linkSep = ":"
)

// ValidateName returns ErrUnsafeName if name cannot safely be used as a table,
// key, field or index value.
//
// It rejects "..", "/", "\" and NUL anywhere in the name, the empty name, and
// names starting with "." which are reserved for the engine.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrUnsafeName)
	case strings.Contains(name, ".."), strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q", ErrUnsafeName, name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q is hidden", ErrUnsafeName, name)
	}
	return nil
}

// validateKey checks a primary key written through Insert, Update or Upsert.
func validateKey(pk string) error {
	if err := ValidateName(pk); err != nil {
		return err
	}
	if strings.HasPrefix(pk, indexPrefix) {
		return fmt.Errorf("%w: %q starts with %q", ErrReservedName, pk, indexPrefix)
	}
	if strings.Contains(pk, linkSep) {
		return fmt.Errorf("%w: %q contains %q", ErrReservedName, pk, linkSep)
	}
	return nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// tableDir returns the directory of a validated table name.
func (db *DB) tableDir(table string) (string, error) {
	if err := ValidateName(table); err != nil {
		return "", err
	}
	return filepath.Join(db.root, table), nil
}

// recordPath returns the file of a record. pk is only checked for safety, so
// link keys are accepted.
func (db *DB) recordPath(table, pk string) (string, error) {
	dir, err := db.tableDir(table)
	if err != nil {
		return "", err
	}
	if err := ValidateName(pk); err != nil {
		return "", err
	}
	return filepath.Join(dir, pk), nil
}

// indexDir returns the directory holding the entries of one index.
func (db *DB) indexDir(table, field string) (string, error) {
	dir, err := db.tableDir(table)
	if err != nil {
		return "", err
	}
	if err := ValidateName(field); err != nil {
		return "", err
	}
	return filepath.Join(dir, indexPrefix+field), nil
}
