// Writes record files atomically through a scratch directory.

package fsdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/maruel/ksid"
)

const tempSuffix = ".tmp"

// renameFile is os.Rename, replaced in tests to simulate a cross-device
// scratch directory.
var renameFile = os.Rename

// writeRecord replaces the record at pk with doc. The table must exist.
//
// The document goes to a fresh file in the scratch directory which is then
// renamed over the target, so the record is never observed partially
// written. On failure the temporary file is removed and the original error is
// returned.
func (db *DB) writeRecord(table, pk string, doc Document) error {
	target, err := db.recordPath(table, pk)
	if err != nil {
		return err
	}
	if !isDir(filepath.Dir(target)) {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	data, err := db.codec.Marshal(doc)
	if err != nil {
		return err
	}

	id := ksid.NewID().String()
	tmp, err := writeTemp(filepath.Join(db.workDir, tempName(table+"-"+pk, id)), data)
	if err != nil {
		return err
	}
	err = renameFile(tmp, target)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return errors.Join(ioErr("rename record into place", err), os.Remove(tmp))
	}

	// The scratch directory is on another filesystem: stage next to the
	// target instead. Hidden names are never listed as records.
	if err := os.Remove(tmp); err != nil {
		return ioErr("remove temp file", err)
	}
	staged, err := writeTemp(filepath.Join(filepath.Dir(target), "."+tempName(pk, id)), data)
	if err != nil {
		return err
	}
	if err := renameFile(staged, target); err != nil {
		return errors.Join(ioErr("rename record into place", err), os.Remove(staged))
	}
	return nil
}

// tempName returns "<hint>-<id>.tmp", dropping the hint when the result would
// not fit in a file name.
func tempName(hint, id string) string {
	const maxName = 250
	if name := hint + "-" + id + tempSuffix; len(name) <= maxName {
		return name
	}
	return id + tempSuffix
}

// writeTemp creates path exclusively, writes data and syncs it to disk.
func writeTemp(path string, data []byte) (string, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // G302: records are world readable like the directories holding them
	if err != nil {
		return "", ioErr("create temp file", err)
	}
	if _, err := f.Write(data); err != nil {
		return "", errors.Join(ioErr("write temp file", err), f.Close(), os.Remove(path))
	}
	if err := f.Sync(); err != nil {
		return "", errors.Join(ioErr("sync temp file", err), f.Close(), os.Remove(path))
	}
	if err := f.Close(); err != nil {
		return "", errors.Join(ioErr("close temp file", err), os.Remove(path))
	}
	return path, nil
}

// readDocument returns the parsed document at path. Missing, unreadable and
// unparsable files all report false.
func (db *DB) readDocument(path string) (Document, bool) {
	doc, err := db.loadDocument(path)
	if err != nil {
		if errors.Is(err, ErrParse) {
			db.noteCorrupt(path, err)
		}
		return nil, false
	}
	return doc, true
}

// loadDocument reads and parses the document at path, following symlinks.
func (db *DB) loadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is built from validated names
	if err != nil {
		return nil, err
	}
	return db.codec.Unmarshal(data)
}
