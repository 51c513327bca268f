package fsdb

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// EventOp is the kind of change reported by Watch.
type EventOp int

const (
	// EventPut is a record created or replaced.
	EventPut EventOp = iota + 1
	// EventDelete is a record removed.
	EventDelete
)

func (o EventOp) String() string {
	switch o {
	case EventPut:
		return "put"
	case EventDelete:
		return "delete"
	default:
		return fmt.Sprintf("EventOp(%d)", int(o))
	}
}

// Event is a change to one record of a watched table.
type Event struct {
	Table string
	Key   string
	Op    EventOp
}

// Watch reports changes to the records of table, links included, until ctx
// is done. The channel is closed when watching stops.
//
// Events come from filesystem notifications: writes by any process are
// seen, and a burst of changes may be coalesced or reordered by the kernel.
func (db *DB) Watch(ctx context.Context, table string) (<-chan Event, error) {
	dir, err := db.tableDir(table)
	if err != nil {
		return nil, err
	}
	if !isDir(dir) {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ioErr("create watcher", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, ioErr("watch "+table, err)
	}
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				name := filepath.Base(ev.Name)
				if isHidden(name) || strings.HasPrefix(name, indexPrefix) {
					continue
				}
				var op EventOp
				switch {
				case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
					op = EventDelete
				case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
					op = EventPut
				default:
					continue
				}
				select {
				case ch <- Event{Table: table, Key: name, Op: op}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "fsdb: error watching table", "table", table, "err", err)
			}
		}
	}()
	return ch, nil
}
