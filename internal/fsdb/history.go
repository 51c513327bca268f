package fsdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/maruel/fsdb/internal/git"
)

// History returns up to n commits that changed a record, newest first.
func (db *DB) History(ctx context.Context, table, pk string, n int) ([]*git.Commit, error) {
	if db.repo == nil {
		return nil, ErrNotVersioned
	}
	if _, err := db.recordPath(table, pk); err != nil {
		return nil, err
	}
	return db.repo.GetHistory(ctx, table+"/"+pk, n)
}

// GetAt returns a record as it was at revision rev. Unlike Get, a malformed
// document is reported with ErrParse and a record absent at rev with
// ErrRecordNotFound.
func (db *DB) GetAt(ctx context.Context, table, pk, rev string) (Document, error) {
	if db.repo == nil {
		return nil, ErrNotVersioned
	}
	if _, err := db.recordPath(table, pk); err != nil {
		return nil, err
	}
	data, err := db.repo.GetFileAtCommit(ctx, rev, table+"/"+pk)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s at %s", ErrRecordNotFound, table, pk, rev)
		}
		return nil, err
	}
	return db.codec.Unmarshal(data)
}
