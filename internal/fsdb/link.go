// Encodes directed relations as records keyed "<src>:<dest>" in the source table.

package fsdb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// LinkRef is a link found by QueryLinks.
type LinkRef struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// linkKey returns the primary key of the link record from src to dest.
func linkKey(src, dest string) string {
	return src + linkSep + dest
}

// Link records a relation from srcTable/srcPK to destTable/destPK, with an
// optional document payload. Both records must exist; ErrRecordNotFound is
// returned otherwise, including when an endpoint's table is missing. A
// missing source table also matches ErrTableNotFound.
//
// The link is an upsert of the record "<srcPK>:<destPK>" in srcTable, so it
// is written atomically and indexed like any other record. Nothing keeps it
// consistent once either endpoint is deleted.
func (db *DB) Link(ctx context.Context, srcTable, srcPK, destTable, destPK string, doc Document) error {
	if err := validateKey(srcPK); err != nil {
		return err
	}
	if err := validateKey(destPK); err != nil {
		return err
	}
	destPath, err := db.recordPath(destTable, destPK)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = Document{}
	}
	key := linkKey(srcPK, destPK)
	err = db.mutate(ctx, "link", srcTable, func() (string, error) {
		srcPath, err := db.recordPath(srcTable, srcPK)
		if err != nil {
			return "", err
		}
		if !isFile(srcPath) {
			return "", fmt.Errorf("%w: %s/%s", ErrRecordNotFound, srcTable, srcPK)
		}
		if !isFile(destPath) {
			return "", fmt.Errorf("%w: %s/%s", ErrRecordNotFound, destTable, destPK)
		}
		if err := db.upsertLocked(srcTable, key, doc); err != nil {
			return "", err
		}
		return "link " + srcTable + "/" + srcPK + " -> " + destTable + "/" + destPK, nil
	})
	if errors.Is(err, ErrTableNotFound) {
		return fmt.Errorf("%w: %s/%s: %w", ErrRecordNotFound, srcTable, srcPK, err)
	}
	return err
}

// Unlink removes the link record from srcPK to destPK in table. It returns
// false if there was none.
func (db *DB) Unlink(ctx context.Context, table, srcPK, destPK string) (bool, error) {
	if err := validateKey(srcPK); err != nil {
		return false, err
	}
	if err := validateKey(destPK); err != nil {
		return false, err
	}
	key := linkKey(srcPK, destPK)
	deleted := false
	err := db.mutate(ctx, "unlink", table, func() (string, error) {
		var err error
		deleted, err = db.deleteLocked(table, key)
		if !deleted || err != nil {
			return "", err
		}
		return "unlink " + table + "/" + key, nil
	})
	return deleted, err
}

// QueryLinks returns the links of table whose keys match the glob
// "<left>:<right>", in key order. An empty left or right matches anything.
// A missing table has no links.
func (db *DB) QueryLinks(table, left, right string) ([]LinkRef, error) {
	if left == "" {
		left = "*"
	}
	if right == "" {
		right = "*"
	}
	pattern := linkKey(left, right)
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}
	entries, err := db.readTable(table)
	if err != nil {
		if errors.Is(err, ErrTableNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var links []LinkRef
	for _, e := range entries {
		name := e.Name()
		if !isRecord(e) || !strings.Contains(name, linkSep) {
			continue
		}
		if ok, _ := doublestar.Match(pattern, name); !ok {
			continue
		}
		l, r, _ := strings.Cut(name, linkSep)
		links = append(links, LinkRef{Left: l, Right: r})
	}
	return links, nil
}
