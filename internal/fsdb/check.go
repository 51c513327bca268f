// Verifies the on-disk layout and reports inconsistencies without repairing them.

package fsdb

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/maruel/fsdb/internal/metrics"
)

// staleTempAge is how old a temporary file must be to be reported as an orphan
// rather than an in-flight write.
const staleTempAge = time.Minute

// IssueKind classifies a problem found by Check.
type IssueKind string

// Issue kinds reported by Check.
const (
	// IssueCorruptRecord is a record file that does not parse.
	IssueCorruptRecord IssueKind = "corrupt-record"
	// IssueDanglingIndex is an index entry whose record is missing.
	IssueDanglingIndex IssueKind = "dangling-index"
	// IssueStaleIndex is an index entry whose record no longer has the value.
	IssueStaleIndex IssueKind = "stale-index"
	// IssueDanglingLink is a link record whose source record is missing.
	IssueDanglingLink IssueKind = "dangling-link"
	// IssueOrphanTemp is a temporary file left behind by an interrupted write.
	IssueOrphanTemp IssueKind = "orphan-temp"
)

// Issue is one problem found by Check. Path is relative to the root, or
// absolute for files in the scratch directory.
type Issue struct {
	Kind IssueKind `json:"kind"`
	Path string    `json:"path"`
}

// Report summarizes a Check run.
type Report struct {
	Tables       int `json:"tables"`
	Records      int `json:"records"`
	Links        int `json:"links"`
	Indexes      int `json:"indexes"`
	IndexEntries int `json:"index_entries"`
	// Commits is the number of commits of a versioned database.
	Commits int     `json:"commits,omitempty"`
	Issues  []Issue `json:"issues,omitempty"`
}

// Check walks the whole database and reports records that do not parse,
// index entries out of sync with their records, links whose source is gone
// and orphan temporary files. Links to another table cannot be verified since
// the link key does not name the destination table.
//
// Reindex repairs index issues. Check itself never modifies anything.
func (db *DB) Check(ctx context.Context) (*Report, error) {
	c := &checker{db: db}
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, db.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Entries removed while walking are not issues.
			return nil
		}
		return c.visit(path, d)
	})
	if err != nil {
		metrics.Observe("check", err)
		return nil, ioErr("walk "+db.root, err)
	}
	temps, err := db.orphanTemps()
	if err != nil {
		metrics.Observe("check", err)
		return nil, err
	}
	for _, p := range temps {
		c.issue(IssueOrphanTemp, p)
	}
	if db.repo != nil {
		if c.r.Commits, err = db.repo.CommitCount(ctx); err != nil {
			metrics.Observe("check", err)
			return nil, err
		}
	}
	slices.SortFunc(c.r.Issues, func(a, b Issue) int {
		return strings.Compare(a.Path, b.Path)
	})
	metrics.Observe("check", nil)
	return &c.r, nil
}

// checker accumulates a Report. fastwalk calls visit concurrently.
type checker struct {
	db *DB
	mu sync.Mutex
	r  Report
}

func (c *checker) issue(kind IssueKind, path string) {
	c.mu.Lock()
	c.r.Issues = append(c.r.Issues, Issue{Kind: kind, Path: path})
	c.mu.Unlock()
}

func (c *checker) inc(field *int) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

func (c *checker) visit(path string, d fs.DirEntry) error {
	rel, err := filepath.Rel(c.db.root, path)
	if err != nil || rel == "." {
		return nil
	}
	parts := strings.Split(rel, string(filepath.Separator))
	name := d.Name()
	if isHidden(name) {
		if d.IsDir() {
			return filepath.SkipDir
		}
		if strings.HasSuffix(name, tempSuffix) && isStale(d) {
			c.issue(IssueOrphanTemp, rel)
		}
		return nil
	}
	switch len(parts) {
	case 1:
		if d.IsDir() {
			c.inc(&c.r.Tables)
		}
	case 2:
		switch {
		case d.IsDir() && strings.HasPrefix(name, indexPrefix):
			c.inc(&c.r.Indexes)
		case d.IsDir():
			return filepath.SkipDir
		case d.Type().IsRegular():
			c.record(path, rel, parts[0], name)
		}
	case 3:
		if d.Type()&fs.ModeSymlink != 0 && strings.HasPrefix(parts[1], indexPrefix) {
			c.inc(&c.r.IndexEntries)
			if kind, ok := c.db.checkIndexEntry(path, strings.TrimPrefix(parts[1], indexPrefix), name); !ok {
				c.issue(kind, rel)
			}
		}
	default:
		if d.IsDir() {
			return filepath.SkipDir
		}
	}
	return nil
}

func (c *checker) record(path, rel, table, name string) {
	if src, _, isLink := strings.Cut(name, linkSep); isLink {
		c.inc(&c.r.Links)
		if !isFile(filepath.Join(c.db.root, table, src)) {
			c.issue(IssueDanglingLink, rel)
		}
	} else {
		c.inc(&c.r.Records)
	}
	if _, err := c.db.loadDocument(path); err != nil {
		c.issue(IssueCorruptRecord, rel)
	}
}

// checkIndexEntry verifies that the entry value of field resolves to a
// record holding that value.
func (db *DB) checkIndexEntry(path, field, value string) (IssueKind, bool) {
	doc, err := db.loadDocument(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return IssueDanglingIndex, false
		}
		// The record itself is reported as corrupt.
		return "", true
	}
	v, ok := doc[field]
	if !ok {
		return IssueStaleIndex, false
	}
	if s, err := indexValue(v); err != nil || s != value {
		return IssueStaleIndex, false
	}
	return "", true
}

// orphanTemps lists stale scratch files.
func (db *DB) orphanTemps() ([]string, error) {
	entries, err := os.ReadDir(db.workDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, ioErr("list scratch directory", err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), tempSuffix) && isStale(e) {
			out = append(out, filepath.Join(db.workDir, e.Name()))
		}
	}
	return out, nil
}

// isStale reports whether a temporary entry is older than staleTempAge, and
// so left behind rather than part of a write in flight. Symlinks are judged
// by their own time.
func isStale(d fs.DirEntry) bool {
	fi, err := d.Info()
	return err == nil && time.Since(fi.ModTime()) > staleTempAge
}
