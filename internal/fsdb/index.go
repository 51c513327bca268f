// Maintains per-field secondary indexes as directories of symbolic links.

package fsdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/maruel/fsdb/internal/metrics"
	"github.com/maruel/ksid"
)

// HasIndex reports whether table has an index on field.
func (db *DB) HasIndex(table, field string) (bool, error) {
	dir, err := db.indexDir(table, field)
	if err != nil {
		return false, err
	}
	return isDir(dir), nil
}

// CreateIndex creates an index on field and backfills it from every record
// currently in the table. Records without the field are left out. Creating an
// index that exists refreshes its entries.
func (db *DB) CreateIndex(ctx context.Context, table, field string) error {
	dir, err := db.indexDir(table, field)
	if err != nil {
		return err
	}
	return db.mutate(ctx, "create_index", table, func() (string, error) {
		if err := os.Mkdir(dir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) { //nolint:gosec // G301: 0o755 is intentional for data directories
			return "", ioErr("create index "+field, err)
		}
		n, err := db.backfill(table, field)
		if err != nil {
			return "", err
		}
		slog.DebugContext(ctx, "fsdb: indexed", "table", table, "field", field, "entries", n)
		return "index " + table + " on " + field, nil
	})
}

// DropIndex removes the index on field. It returns false if there was none.
func (db *DB) DropIndex(ctx context.Context, table, field string) (bool, error) {
	dir, err := db.indexDir(table, field)
	if err != nil {
		return false, err
	}
	dropped := false
	err = db.mutate(ctx, "drop_index", table, func() (string, error) {
		if !isDir(dir) {
			return "", nil
		}
		if err := os.RemoveAll(dir); err != nil {
			return "", ioErr("remove index "+field, err)
		}
		dropped = true
		return "unindex " + table + " on " + field, nil
	})
	return dropped, err
}

// Reindex rebuilds every index of a table from the records on disk, removing
// entries left behind by an interrupted write.
func (db *DB) Reindex(ctx context.Context, table string) error {
	return db.mutate(ctx, "reindex", table, func() (string, error) {
		fields, err := db.indexedFields(table)
		if err != nil {
			return "", err
		}
		for _, field := range fields {
			dir := filepath.Join(db.root, table, indexPrefix+field)
			entries, err := os.ReadDir(dir)
			if err != nil {
				return "", ioErr("list index "+field, err)
			}
			for _, e := range entries {
				if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return "", ioErr("remove index entry", err)
				}
			}
			n, err := db.backfill(table, field)
			if err != nil {
				return "", err
			}
			slog.DebugContext(ctx, "fsdb: reindexed", "table", table, "field", field, "entries", n)
		}
		return "reindex " + table, nil
	})
}

// Find returns the record referenced by the index entry field=value, or nil
// if the index, the entry or the record is missing or malformed.
//
// value is the entry name: a string field is matched by its text, any other
// scalar by its JSON encoding. Pass "true", "null" or "30", never "True" or
// "30.0".
func (db *DB) Find(table, field, value string) (Document, error) {
	dir, err := db.indexDir(table, field)
	if err != nil {
		return nil, err
	}
	if err := ValidateName(value); err != nil {
		return nil, err
	}
	doc, _ := db.readDocument(filepath.Join(dir, value))
	return doc, nil
}

// backfill adds an index entry for every record of the table having field.
// Link records are records too and are indexed alike.
func (db *DB) backfill(table, field string) (int, error) {
	entries, err := db.readTable(table)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !isRecord(e) {
			continue
		}
		doc, ok := db.readDocument(filepath.Join(db.root, table, e.Name()))
		if !ok {
			continue
		}
		v, ok := doc[field]
		if !ok {
			continue
		}
		if err := db.setIndexEntry(table, field, e.Name(), v); err != nil {
			if isUnindexable(err) {
				slog.Warn("fsdb: value not indexable", "table", table, "field", field, "pk", e.Name(), "err", err)
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// indexedFields returns the field of every index directory of a table.
func (db *DB) indexedFields(table string) ([]string, error) {
	entries, err := db.readTable(table)
	if err != nil {
		return nil, err
	}
	var fields []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), indexPrefix) {
			fields = append(fields, strings.TrimPrefix(e.Name(), indexPrefix))
		}
	}
	return fields, nil
}

// setIndexEntry points @field/<value> at the record pk, replacing whatever
// entry had that name. The replacement is atomic.
func (db *DB) setIndexEntry(table, field, pk string, value any) error {
	name, err := indexValue(value)
	if err != nil {
		return err
	}
	dir := filepath.Join(db.root, table, indexPrefix+field)
	tmp := filepath.Join(dir, "."+tempName(name, ksid.NewID().String()))
	if err := os.Symlink(linkTarget(pk), tmp); err != nil {
		return ioErr("create index entry", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		return errors.Join(ioErr("replace index entry", err), os.Remove(tmp))
	}
	metrics.IndexUpdates.WithLabelValues("set").Inc()
	return nil
}

// removeIndexEntry removes @field/<value> only if it still points at pk, so
// an entry taken over by another record is left alone.
func (db *DB) removeIndexEntry(table, field, pk string, value any) error {
	name, err := indexValue(value)
	if err != nil {
		return nil // never indexed
	}
	path := filepath.Join(db.root, table, indexPrefix+field, name)
	target, err := os.Readlink(path)
	if err != nil || target != linkTarget(pk) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ioErr("remove index entry", err)
	}
	metrics.IndexUpdates.WithLabelValues("remove").Inc()
	return nil
}

// syncIndexes brings every index of a table in line with a record going from
// prev to curr. Either may be nil for a record being created or deleted.
//
// An unchanged value is removed and set again.
func (db *DB) syncIndexes(table, pk string, prev, curr Document) error {
	fields, err := db.indexedFields(table)
	if err != nil {
		return err
	}
	var errs []error
	for _, field := range fields {
		if v, ok := prev[field]; ok {
			if err := db.removeIndexEntry(table, field, pk, v); err != nil {
				errs = append(errs, err)
			}
		}
		if v, ok := curr[field]; ok {
			if err := db.setIndexEntry(table, field, pk, v); err != nil {
				if isUnindexable(err) {
					slog.Warn("fsdb: value not indexable", "table", table, "field", field, "pk", pk, "err", err)
					continue
				}
				errs = append(errs, err)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("record %s/%s written but indexes are out of sync: %w", table, pk, err)
	}
	return nil
}

// linkTarget is the symlink target of an index entry for pk, relative to the
// index directory.
func linkTarget(pk string) string {
	return filepath.Join("..", pk)
}

// isUnindexable reports whether a value has no representation as an entry
// name. Such records stay out of the index.
func isUnindexable(err error) bool {
	return errors.Is(err, ErrUnsafeName) || errors.Is(err, errUnindexable)
}
