package fsdb

import (
	"errors"
	"fmt"
)

// Errors returned by DB operations. Callers match them with errors.Is.
var (
	// ErrUnsafeName is returned when a table, key, field or value would escape
	// its directory or is otherwise not representable as a file name.
	ErrUnsafeName = errors.New("unsafe name")
	// ErrReservedName is returned when a primary key uses the link delimiter or
	// the index prefix. It also matches ErrUnsafeName.
	ErrReservedName = fmt.Errorf("%w: reserved", ErrUnsafeName)
	// ErrTableNotFound is returned when the table directory does not exist.
	ErrTableNotFound = errors.New("table not found")
	// ErrAlreadyExists is returned by Insert when the record is present.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrRecordNotFound is returned by Update and Link when a record is absent.
	ErrRecordNotFound = errors.New("record not found")
	// ErrParse is returned when bytes are not a valid document.
	ErrParse = errors.New("malformed document")
	// ErrIO wraps failures of the underlying filesystem.
	ErrIO = errors.New("i/o failure")
	// ErrInvalidPattern is returned when a scan or link pattern is malformed.
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrNotVersioned is returned by history operations on a database opened
	// without a repository.
	ErrNotVersioned = errors.New("database is not versioned")
)

// ioErr tags a filesystem error with ErrIO while keeping the original error
// reachable through errors.Is and errors.As.
func ioErr(what string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", ErrIO, what, err)
}
