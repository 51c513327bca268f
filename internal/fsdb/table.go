package fsdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/maruel/fsdb/internal/metrics"
)

// CreateTable creates the table directory. It is not an error if the table
// already exists.
func (db *DB) CreateTable(ctx context.Context, table string) error {
	err := db.createTable(table)
	metrics.Observe("create_table", err)
	if err == nil {
		slog.DebugContext(ctx, "fsdb: table ready", "table", table)
	}
	return err
}

func (db *DB) createTable(table string) error {
	dir, err := db.tableDir(table)
	if err != nil {
		return err
	}
	if err := os.Mkdir(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		if errors.Is(err, fs.ErrExist) && isDir(dir) {
			return nil
		}
		return ioErr("create table "+table, err)
	}
	return nil
}

// DropTable recursively removes a table with its records, indexes and links.
// It returns false if the table does not exist.
//
// Removal is not atomic: a concurrent reader may observe a partially removed
// table.
func (db *DB) DropTable(ctx context.Context, table string) (bool, error) {
	dir, err := db.tableDir(table)
	if err != nil {
		return false, err
	}
	if !isDir(dir) {
		metrics.Observe("drop_table", nil)
		return false, nil
	}
	dropped := false
	err = db.mutate(ctx, "drop_table", table, func() (string, error) {
		if err := os.RemoveAll(dir); err != nil {
			return "", ioErr("remove table "+table, err)
		}
		dropped = true
		return "drop " + table, nil
	})
	if errors.Is(err, ErrTableNotFound) {
		// Dropped concurrently between the check and the lock.
		return false, nil
	}
	return dropped, err
}

// ListTables returns the name of every table, sorted.
func (db *DB) ListTables() ([]string, error) {
	entries, err := os.ReadDir(db.root)
	if err != nil {
		return nil, ioErr("list tables", err)
	}
	var tables []string
	for _, e := range entries {
		if e.IsDir() && !isHidden(e.Name()) {
			tables = append(tables, e.Name())
		}
	}
	return tables, nil
}

// ListKeys returns the primary key of every plain record of a table, sorted.
// Link records are excluded.
func (db *DB) ListKeys(table string) ([]string, error) {
	entries, err := db.readTable(table)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if isPlainRecord(e) {
			keys = append(keys, e.Name())
		}
	}
	return keys, nil
}

// readTable lists the directory of an existing table.
func (db *DB) readTable(table string) ([]fs.DirEntry, error) {
	dir, err := db.tableDir(table)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
		}
		return nil, ioErr("list table "+table, err)
	}
	return entries, nil
}

// isRecord reports whether a table entry is a record file, link or not.
func isRecord(e fs.DirEntry) bool {
	return e.Type().IsRegular() && !isHidden(e.Name())
}

// isPlainRecord reports whether a table entry is a record that is not a link.
func isPlainRecord(e fs.DirEntry) bool {
	return isRecord(e) && !strings.Contains(e.Name(), linkSep)
}
