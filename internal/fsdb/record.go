package fsdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Insert writes a new record. It fails with ErrAlreadyExists if pk is
// present, leaving the existing record untouched.
func (db *DB) Insert(ctx context.Context, table, pk string, doc Document) error {
	if err := validateKey(pk); err != nil {
		return err
	}
	return db.mutate(ctx, "insert", table, func() (string, error) {
		path, err := db.recordPath(table, pk)
		if err != nil {
			return "", err
		}
		if _, err := os.Lstat(path); err == nil {
			return "", fmt.Errorf("%w: %s/%s", ErrAlreadyExists, table, pk)
		}
		if err := db.writeRecord(table, pk, doc); err != nil {
			return "", err
		}
		return "insert " + table + "/" + pk, db.syncIndexes(table, pk, nil, doc)
	})
}

// Update replaces an existing record. It fails with ErrRecordNotFound if no
// readable record is present at pk, and creates nothing.
func (db *DB) Update(ctx context.Context, table, pk string, doc Document) error {
	if err := validateKey(pk); err != nil {
		return err
	}
	return db.mutate(ctx, "update", table, func() (string, error) {
		path, err := db.recordPath(table, pk)
		if err != nil {
			return "", err
		}
		old, ok := db.readDocument(path)
		if !ok {
			return "", fmt.Errorf("%w: %s/%s", ErrRecordNotFound, table, pk)
		}
		if err := db.writeRecord(table, pk, doc); err != nil {
			return "", err
		}
		return "update " + table + "/" + pk, db.syncIndexes(table, pk, old, doc)
	})
}

// Upsert writes a record whether or not it exists.
func (db *DB) Upsert(ctx context.Context, table, pk string, doc Document) error {
	if err := validateKey(pk); err != nil {
		return err
	}
	return db.mutate(ctx, "upsert", table, func() (string, error) {
		if err := db.upsertLocked(table, pk, doc); err != nil {
			return "", err
		}
		return "upsert " + table + "/" + pk, nil
	})
}

// upsertLocked writes a record and synchronizes indexes. The caller holds the
// table lock.
func (db *DB) upsertLocked(table, pk string, doc Document) error {
	path, err := db.recordPath(table, pk)
	if err != nil {
		return err
	}
	old, _ := db.readDocument(path)
	if err := db.writeRecord(table, pk, doc); err != nil {
		return err
	}
	return db.syncIndexes(table, pk, old, doc)
}

// Get returns the document at pk, or nil if the record is missing, unreadable
// or malformed. Only unsafe names are reported as errors.
func (db *DB) Get(table, pk string) (Document, error) {
	path, err := db.recordPath(table, pk)
	if err != nil {
		return nil, err
	}
	doc, _ := db.readDocument(path)
	return doc, nil
}

// Delete removes a record and its index entries. It returns false if there
// was no record at pk.
func (db *DB) Delete(ctx context.Context, table, pk string) (bool, error) {
	if _, err := db.recordPath(table, pk); err != nil {
		return false, err
	}
	deleted := false
	err := db.mutate(ctx, "delete", table, func() (string, error) {
		var err error
		deleted, err = db.deleteLocked(table, pk)
		if !deleted || err != nil {
			return "", err
		}
		return "delete " + table + "/" + pk, nil
	})
	return deleted, err
}

// deleteLocked removes a record file. The caller holds the table lock.
func (db *DB) deleteLocked(table, pk string) (bool, error) {
	path, err := db.recordPath(table, pk)
	if err != nil {
		return false, err
	}
	if !isFile(path) {
		return false, nil
	}
	// A malformed record is still removed; its index entries, if any, are
	// left for Reindex.
	old, _ := db.readDocument(path)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, ioErr("remove record", err)
	}
	return true, db.syncIndexes(table, pk, old, nil)
}
