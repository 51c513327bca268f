package fsdb

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/maruel/fsdb/internal/metrics"
)

// Scan returns the plain records of table whose key matches the glob
// pattern, in key order. An empty pattern matches everything.
//
// The directory is listed when Scan is called; documents are read as the
// sequence is consumed. Records that fail to parse, or vanish in between, are
// skipped. Link records are never returned. A missing table yields an empty
// sequence, as Get does.
func (db *DB) Scan(table, pattern string) (iter.Seq2[string, Document], error) {
	if pattern == "" {
		pattern = "*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}
	entries, err := db.readTable(table)
	if err != nil && !errors.Is(err, ErrTableNotFound) {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if !isPlainRecord(e) {
			continue
		}
		if ok, _ := doublestar.Match(pattern, e.Name()); ok {
			keys = append(keys, e.Name())
		}
	}
	dir := filepath.Join(db.root, table)
	return func(yield func(string, Document) bool) {
		for _, pk := range keys {
			doc, ok := db.readDocument(filepath.Join(dir, pk))
			if !ok {
				continue
			}
			if !yield(pk, doc) {
				return
			}
		}
	}, nil
}

// noteCorrupt accounts for an unparsable record. Reads report such records as
// absent; the warning is rate limited so that a scan over many broken files
// does not flood the log.
func (db *DB) noteCorrupt(path string, err error) {
	metrics.CorruptRecords.Inc()
	db.corruptLog.Do(func() {
		slog.Warn("fsdb: skipping malformed record", "path", path, "err", err)
	})
}
