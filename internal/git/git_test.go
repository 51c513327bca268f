package git

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestRepo(t *testing.T) {
	t.Parallel()

	t.Run("Init", func(t *testing.T) {
		t.Parallel()
		tmpDir := t.TempDir()

		repo, err := Open(tmpDir, "Test User", "test@example.com")
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		if _, err := os.Stat(filepath.Join(tmpDir, ".git")); err != nil {
			t.Errorf(".git directory not created: %v", err)
		}
		cfg, err := repo.repo.Config()
		if err != nil {
			t.Fatal(err)
		}
		if cfg.User.Name != "Test User" || cfg.User.Email != "test@example.com" {
			t.Errorf("unexpected user config: %q <%q>", cfg.User.Name, cfg.User.Email)
		}

		// Reopening keeps the repository.
		if _, err := Open(tmpDir, "", ""); err != nil {
			t.Fatalf("reopen failed: %v", err)
		}
	})

	t.Run("Commit", func(t *testing.T) {
		t.Parallel()
		tmpDir := t.TempDir()
		ctx := t.Context()
		repo, err := Open(tmpDir, "Test User", "test@example.com")
		if err != nil {
			t.Fatal(err)
		}

		author := Author{Name: "Author", Email: "author@example.com"}
		err = repo.CommitTx(ctx, author, func() (string, error) {
			return "Initial commit", os.WriteFile(filepath.Join(tmpDir, "test.txt"), []byte("hello"), 0o600)
		})
		if err != nil {
			t.Fatalf("CommitTx() failed: %v", err)
		}

		history, err := repo.GetHistory(ctx, "test.txt", 1)
		if err != nil {
			t.Fatalf("GetHistory() failed: %v", err)
		}
		if len(history) != 1 {
			t.Fatalf("expected 1 commit, got %d", len(history))
		}
		if history[0].Message != "Initial commit" {
			t.Errorf("expected message 'Initial commit', got '%s'", history[0].Message)
		}
		if history[0].Author != "Author" {
			t.Errorf("expected author 'Author', got '%s'", history[0].Author)
		}
	})

	t.Run("NoCommit", func(t *testing.T) {
		t.Parallel()
		tmpDir := t.TempDir()
		ctx := t.Context()
		repo, err := Open(tmpDir, "", "")
		if err != nil {
			t.Fatal(err)
		}

		// An empty message commits nothing.
		if err := repo.CommitTx(ctx, Author{}, func() (string, error) {
			return "", os.WriteFile(filepath.Join(tmpDir, "a"), []byte("a"), 0o600)
		}); err != nil {
			t.Fatal(err)
		}
		// An error is returned as is.
		errBoom := errors.New("boom")
		if err := repo.CommitTx(ctx, Author{}, func() (string, error) {
			return "never", errBoom
		}); !errors.Is(err, errBoom) {
			t.Fatalf("expected errBoom, got %v", err)
		}
		if n, err := repo.CommitCount(ctx); err != nil || n != 0 {
			t.Fatalf("CommitCount() = %d, %v; want 0", n, err)
		}

		// A clean tree after staging is not an error and makes no commit.
		if err := repo.CommitTx(ctx, Author{}, func() (string, error) { return "add a", nil }); err != nil {
			t.Fatal(err)
		}
		if err := repo.CommitTx(ctx, Author{}, func() (string, error) { return "nothing", nil }); err != nil {
			t.Fatal(err)
		}
		if n, err := repo.CommitCount(ctx); err != nil || n != 1 {
			t.Fatalf("CommitCount() = %d, %v; want 1", n, err)
		}
	})

	t.Run("History", func(t *testing.T) {
		t.Parallel()
		tmpDir := t.TempDir()
		ctx := t.Context()
		repo, err := Open(tmpDir, "", "")
		if err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(tmpDir, "t", "pk")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		steps := []struct {
			msg string
			fn  func() error
		}{
			{"v1", func() error { return os.WriteFile(path, []byte("v1"), 0o600) }},
			{"v2", func() error { return os.WriteFile(path, []byte("v2"), 0o600) }},
			{"rm", func() error { return os.Remove(path) }},
		}
		for _, s := range steps {
			if err := repo.CommitTx(ctx, Author{}, func() (string, error) { return s.msg, s.fn() }); err != nil {
				t.Fatalf("%s: %v", s.msg, err)
			}
		}

		history, err := repo.GetHistory(ctx, "t/pk", 0)
		if err != nil {
			t.Fatal(err)
		}
		var msgs []string
		for _, c := range history {
			msgs = append(msgs, c.Message)
		}
		if len(msgs) != 3 || msgs[0] != "rm" || msgs[2] != "v1" {
			t.Fatalf("unexpected history: %v", msgs)
		}

		got, err := repo.GetFileAtCommit(ctx, "HEAD~1", "t/pk")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "v2" {
			t.Errorf("HEAD~1: got %q, want v2", got)
		}
		got, err = repo.GetFileAtCommit(ctx, history[2].Hash, "t/pk")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "v1" {
			t.Errorf("first commit: got %q, want v1", got)
		}
		if _, err := repo.GetFileAtCommit(ctx, "HEAD", "t/pk"); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("deleted file: expected fs.ErrNotExist, got %v", err)
		}
		if _, err := repo.GetFileAtCommit(ctx, "nope", "t/pk"); err == nil {
			t.Error("expected error for unknown revision")
		}
	})

	t.Run("EmptyHistory", func(t *testing.T) {
		t.Parallel()
		repo, err := Open(t.TempDir(), "", "")
		if err != nil {
			t.Fatal(err)
		}
		history, err := repo.GetHistory(t.Context(), "x", 10)
		if err != nil || len(history) != 0 {
			t.Fatalf("GetHistory() = %v, %v; want empty", history, err)
		}
	})
}
