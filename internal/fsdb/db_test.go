package fsdb

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/maruel/fsdb/internal/git"
)

// newTestDB returns a database with its own root and scratch directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), &Options{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return db
}

// newTestTable returns a database with one empty table.
func newTestTable(t *testing.T, table string) *DB {
	t.Helper()
	db := newTestDB(t)
	if err := db.CreateTable(t.Context(), table); err != nil {
		t.Fatalf("CreateTable(%s) failed: %v", table, err)
	}
	return db
}

func mustGet(t *testing.T, db *DB, table, pk string) Document {
	t.Helper()
	doc, err := db.Get(table, pk)
	if err != nil {
		t.Fatalf("Get(%s, %s) failed: %v", table, pk, err)
	}
	return doc
}

// readLink returns the target of an index entry, or "" if it is absent.
func readLink(t *testing.T, db *DB, table, field, value string) string {
	t.Helper()
	target, err := os.Readlink(filepath.Join(db.Root(), table, indexPrefix+field, value))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ""
		}
		t.Fatal(err)
	}
	return target
}

// snapshot returns every path under dir with the content of regular files and
// the target of symlinks.
func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		switch {
		case d.Type()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			out[rel] = "-> " + target
		case d.Type().IsRegular():
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			out[rel] = string(data)
		default:
			out[rel] = "dir"
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestOpen(t *testing.T) {
	t.Run("CreatesDirectories", func(t *testing.T) {
		base := t.TempDir()
		root := filepath.Join(base, "a", "b")
		work := filepath.Join(base, "scratch")
		db, err := Open(root, &Options{WorkDir: work})
		if err != nil {
			t.Fatal(err)
		}
		if !isDir(root) || !isDir(work) {
			t.Error("directories not created")
		}
		if db.Root() != root || db.WorkDir() != work || db.Versioned() {
			t.Errorf("unexpected accessors: %s %s %v", db.Root(), db.WorkDir(), db.Versioned())
		}
	})

	t.Run("DefaultWorkDir", func(t *testing.T) {
		db, err := Open(t.TempDir(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join(os.TempDir(), "fsdb"); db.WorkDir() != want {
			t.Errorf("WorkDir() = %s, want %s", db.WorkDir(), want)
		}
	})

	t.Run("EmptyRoot", func(t *testing.T) {
		if _, err := Open("", nil); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("RepoElsewhere", func(t *testing.T) {
		repo, err := git.Open(t.TempDir(), "", "")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := Open(t.TempDir(), &Options{Repo: repo}); err == nil {
			t.Error("expected error for a repository outside the root")
		}
	})
}

func TestSafety(t *testing.T) {
	ctx := t.Context()
	db := newTestTable(t, "users")
	if err := db.Insert(ctx, "users", "alice", Document{"city": "NYC"}); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateIndex(ctx, "users", "city"); err != nil {
		t.Fatal(err)
	}
	before := snapshot(t, db.Root())

	bad := []string{"..", "../x", "a/b", "", ".git", "x\x00"}
	for _, n := range bad {
		checks := []struct {
			op  string
			err error
		}{
			{"CreateTable", db.CreateTable(ctx, n)},
			{"Insert table", db.Insert(ctx, n, "pk", Document{})},
			{"Insert pk", db.Insert(ctx, "users", n, Document{})},
			{"Upsert pk", db.Upsert(ctx, "users", n, Document{})},
			{"Update pk", db.Update(ctx, "users", n, Document{})},
			{"CreateIndex", db.CreateIndex(ctx, "users", n)},
			{"Link src", db.Link(ctx, "users", n, "users", "alice", nil)},
			{"Link dest table", db.Link(ctx, "users", "alice", n, "alice", nil)},
		}
		for _, c := range checks {
			if !errors.Is(c.err, ErrUnsafeName) {
				t.Errorf("%s(%q) = %v, want ErrUnsafeName", c.op, n, c.err)
			}
		}
		if _, err := db.Get("users", n); !errors.Is(err, ErrUnsafeName) {
			t.Errorf("Get(%q) = %v", n, err)
		}
		if _, err := db.Delete(ctx, "users", n); !errors.Is(err, ErrUnsafeName) {
			t.Errorf("Delete(%q) = %v", n, err)
		}
		if _, err := db.DropTable(ctx, n); !errors.Is(err, ErrUnsafeName) {
			t.Errorf("DropTable(%q) = %v", n, err)
		}
		if _, err := db.Find("users", "city", n); !errors.Is(err, ErrUnsafeName) {
			t.Errorf("Find(%q) = %v", n, err)
		}
		if _, err := db.Scan(n, ""); !errors.Is(err, ErrUnsafeName) {
			t.Errorf("Scan(%q) = %v", n, err)
		}
	}
	if after := snapshot(t, db.Root()); !reflect.DeepEqual(before, after) {
		t.Errorf("unsafe names modified the database:\nbefore %v\nafter  %v", before, after)
	}
}
