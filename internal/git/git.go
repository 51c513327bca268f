// Package git versions a database root in a git repository using go-git, so
// no git binary is needed.
package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// maxHistory caps the number of commits returned by GetHistory.
const maxHistory = 1000

// Author identifies who made a change.
type Author struct {
	Name  string
	Email string
}

// Commit is one entry of a file's history.
type Commit struct {
	Hash        string    `json:"hash"`
	Message     string    `json:"message"`
	Body        string    `json:"body,omitempty"`
	Author      string    `json:"author"`
	AuthorEmail string    `json:"author_email"`
	AuthorDate  time.Time `json:"author_date"`
}

// Repo is a git repository whose working tree is the database root.
//
// All commits go through CommitTx which serializes them within the process.
type Repo struct {
	dir          string
	defaultName  string
	defaultEmail string
	repo         *gogit.Repository
	mu           sync.Mutex
}

// Open opens the repository at dir, initializing it if needed.
func Open(dir, defaultName, defaultEmail string) (*Repo, error) {
	if defaultName == "" {
		defaultName = "fsdb"
	}
	if defaultEmail == "" {
		defaultEmail = "fsdb@localhost"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}

	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		if !errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("failed to open git repo: %w", err)
		}
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = defaultName
		cfg.User.Email = defaultEmail
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}

	return &Repo{
		dir:          dir,
		defaultName:  defaultName,
		defaultEmail: defaultEmail,
		repo:         repo,
	}, nil
}

// Dir returns the working tree directory.
func (r *Repo) Dir() string {
	return r.dir
}

// CommitTx executes fn while holding the repository lock and commits every
// change in the working tree, deletions included, with the returned message.
//
// If fn returns an error or an empty message, nothing is committed. A clean
// working tree is not an error.
func (r *Repo) CommitTx(_ context.Context, author Author, fn func() (msg string, err error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, err := fn()
	if err != nil {
		return err
	}
	if msg == "" {
		return nil
	}

	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := w.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	if author.Name == "" {
		author.Name = r.defaultName
	}
	if author.Email == "" {
		author.Email = r.defaultEmail
	}
	now := time.Now()
	_, err = w.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  author.Name,
			Email: author.Email,
			When:  now,
		},
		Committer: &object.Signature{
			Name:  r.defaultName,
			Email: r.defaultEmail,
			When:  now,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// CommitCount returns the number of commits reachable from HEAD. A
// repository without commits has none.
func (r *Repo) CommitCount(_ context.Context) (int, error) {
	commits, err := r.repo.Log(&gogit.LogOptions{})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read log: %w", err)
	}
	n := 0
	err = commits.ForEach(func(*object.Commit) error {
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count commits: %w", err)
	}
	return n, nil
}

// GetHistory returns the commits touching path, newest first, limited to n.
// n is capped at 1000. If n <= 0, defaults to 1000.
func (r *Repo) GetHistory(_ context.Context, path string, n int) ([]*Commit, error) {
	if n <= 0 || n > maxHistory {
		n = maxHistory
	}

	opts := &gogit.LogOptions{}
	if path != "" && path != "." {
		opts.FileName = &path
	}

	iter, err := r.repo.Log(opts)
	if err != nil {
		return nil, nil // no commits yet is not an error
	}
	defer iter.Close()

	var commits []*Commit
	for range n {
		c, err := iter.Next()
		if err != nil {
			break
		}
		subject, body, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, &Commit{
			Hash:        c.Hash.String(),
			Message:     subject,
			Body:        strings.TrimSpace(body),
			Author:      c.Author.Name,
			AuthorEmail: c.Author.Email,
			AuthorDate:  c.Author.When,
		})
	}
	return commits, nil
}

// GetFileAtCommit returns the content of path at revision rev. rev accepts
// anything go-git resolves: "HEAD", "HEAD~2", a branch or a hash.
func (r *Repo) GetFileAtCommit(_ context.Context, rev, path string) ([]byte, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", rev, err)
	}
	c, err := r.repo.CommitObject(*h)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	f, err := c.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%s at %s: %w", path, rev, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to get file at commit: %w", err)
	}
	reader, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = reader.Close() }()
	return io.ReadAll(reader)
}
