package fsdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/maruel/fsdb/internal/git"
	"github.com/maruel/fsdb/internal/metrics"
	"golang.org/x/time/rate"
)

// Options configures Open. The zero value is usable.
type Options struct {
	// WorkDir is the scratch directory for temporary files. Defaults to
	// $TMPDIR/fsdb. It is created if missing.
	WorkDir string
	// Codec serializes documents. Defaults to JSONCodec.
	Codec Codec
	// Repo, when set, receives one commit per successful mutation. Its working
	// tree must be the database root.
	Repo *git.Repo
	// Author is recorded on commits made to Repo.
	Author git.Author
}

// DB is a record store rooted at a directory.
//
// It is safe for concurrent use by multiple goroutines and processes sharing
// the same root.
type DB struct {
	root    string
	workDir string
	codec   Codec
	repo    *git.Repo
	author  git.Author

	// corruptLog throttles warnings about unparsable records.
	corruptLog rate.Sometimes
}

// Open returns a DB rooted at root. The root and scratch directories are
// created if absent.
func Open(root string, opts *Options) (*DB, error) {
	if root == "" {
		return nil, errors.New("root directory is required")
	}
	if opts == nil {
		opts = &Options{}
	}
	db := &DB{
		root:       filepath.Clean(root),
		workDir:    opts.WorkDir,
		codec:      opts.Codec,
		repo:       opts.Repo,
		author:     opts.Author,
		corruptLog: rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	if db.workDir == "" {
		db.workDir = filepath.Join(os.TempDir(), "fsdb")
	}
	if db.codec == nil {
		db.codec = JSONCodec{}
	}
	if db.repo != nil && filepath.Clean(db.repo.Dir()) != db.root {
		return nil, fmt.Errorf("repository %s is not rooted at %s", db.repo.Dir(), db.root)
	}
	if err := os.MkdirAll(db.root, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, ioErr("create root directory", err)
	}
	if err := os.MkdirAll(db.workDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, ioErr("create scratch directory", err)
	}
	return db, nil
}

// Root returns the database root directory.
func (db *DB) Root() string {
	return db.root
}

// WorkDir returns the scratch directory.
func (db *DB) WorkDir() string {
	return db.workDir
}

// Versioned reports whether mutations are committed to a repository.
func (db *DB) Versioned() bool {
	return db.repo != nil
}

// mutate runs fn while holding the table lock and, on a versioned database,
// commits the result with the message fn returns.
func (db *DB) mutate(ctx context.Context, op, table string, fn func() (string, error)) error {
	locked := func() (string, error) {
		unlock, err := db.lockTable(table)
		if err != nil {
			return "", err
		}
		defer unlock()
		return fn()
	}
	var err error
	if db.repo == nil {
		_, err = locked()
	} else {
		err = db.repo.CommitTx(ctx, db.author, locked)
	}
	metrics.Observe(op, err)
	if err != nil {
		slog.DebugContext(ctx, "fsdb: mutation failed", "op", op, "table", table, "err", err)
	}
	return err
}

// lockTable takes the advisory lock of an existing table.
func (db *DB) lockTable(table string) (func(), error) {
	dir, err := db.tableDir(table)
	if err != nil {
		return nil, err
	}
	unlock, err := lockDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
		}
		return nil, ioErr("lock table "+table, err)
	}
	return func() {
		if err := unlock(); err != nil {
			slog.Warn("fsdb: failed to unlock table", "table", table, "err", err)
		}
	}, nil
}

// isDir reports whether path is an existing directory, not following symlinks.
func isDir(path string) bool {
	fi, err := os.Lstat(path)
	return err == nil && fi.IsDir()
}

// isFile reports whether path is an existing regular file, not following
// symlinks.
func isFile(path string) bool {
	fi, err := os.Lstat(path)
	return err == nil && fi.Mode().IsRegular()
}
