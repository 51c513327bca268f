package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maruel/fsdb/internal/fsdb"
)

// cli runs the tool against one database root.
type cli struct {
	t     *testing.T
	flags []string
}

func newCLI(t *testing.T, extra ...string) *cli {
	t.Helper()
	return &cli{t: t, flags: append([]string{"-root", t.TempDir(), "-workdir", t.TempDir(), "-log-level", "error"}, extra...)}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(c.t.Context(), append(append([]string{}, c.flags...), args...), &stdout, &stderr)
	return stdout.String(), err
}

func (c *cli) must(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("%v: %v", args, err)
	}
	return out
}

func TestRun(t *testing.T) {
	t.Run("Records", func(t *testing.T) {
		c := newCLI(t)
		c.must("create", "users")
		c.must("insert", "users", "alice", `{"name":"Alice","city":"NYC"}`)
		c.must("upsert", "users", "bob", `{"name":"Bob","city":"LA"}`)
		c.must("update", "users", "bob", `{"name":"Bob","city":"SF"}`)

		var doc map[string]any
		if err := json.Unmarshal([]byte(c.must("get", "users", "bob")), &doc); err != nil {
			t.Fatal(err)
		}
		if doc["city"] != "SF" {
			t.Errorf("get = %v", doc)
		}
		if got := c.must("list"); got != "users\n" {
			t.Errorf("list = %q", got)
		}
		if got := c.must("show", "users"); got != "alice\nbob\n" {
			t.Errorf("show = %q", got)
		}

		var all map[string]map[string]any
		if err := json.Unmarshal([]byte(c.must("scan", "users", "a*")), &all); err != nil {
			t.Fatal(err)
		}
		if len(all) != 1 || all["alice"]["name"] != "Alice" {
			t.Errorf("scan = %v", all)
		}

		c.must("delete", "users", "alice")
		if _, err := c.run("delete", "users", "alice"); !errors.Is(err, errNoResult) {
			t.Errorf("second delete = %v", err)
		}
		if _, err := c.run("get", "users", "alice"); !errors.Is(err, errNoResult) {
			t.Errorf("get deleted = %v", err)
		}
		if _, err := c.run("insert", "users", "x", `{bad`); !errors.Is(err, fsdb.ErrParse) {
			t.Errorf("insert malformed = %v", err)
		}
		c.must("drop", "users")
		if _, err := c.run("drop", "users"); !errors.Is(err, errNoResult) {
			t.Errorf("second drop = %v", err)
		}
	})

	t.Run("Index", func(t *testing.T) {
		c := newCLI(t)
		c.must("create", "users")
		c.must("insert", "users", "alice", `{"city":"NYC"}`)
		c.must("index", "users", "city")
		if out := c.must("find", "users", "city", "NYC"); !strings.Contains(out, `"NYC"`) {
			t.Errorf("find = %q", out)
		}
		if _, err := c.run("find", "users", "city", "LA"); !errors.Is(err, errNoResult) {
			t.Errorf("find missing = %v", err)
		}
		c.must("reindex", "users")
		c.must("unindex", "users", "city")
		if _, err := c.run("unindex", "users", "city"); !errors.Is(err, errNoResult) {
			t.Errorf("second unindex = %v", err)
		}
	})

	t.Run("Links", func(t *testing.T) {
		c := newCLI(t)
		c.must("create", "users")
		c.must("create", "posts")
		c.must("insert", "users", "alice", `{}`)
		c.must("insert", "posts", "p1", `{}`)
		c.must("link", "users", "alice", "posts", "p1", `{"role":"author"}`)
		var links []fsdb.LinkRef
		if err := json.Unmarshal([]byte(c.must("links", "users", "alice")), &links); err != nil {
			t.Fatal(err)
		}
		if len(links) != 1 || links[0] != (fsdb.LinkRef{Left: "alice", Right: "p1"}) {
			t.Errorf("links = %v", links)
		}
		c.must("unlink", "users", "alice", "p1")
		if out := c.must("links", "users"); strings.TrimSpace(out) != "[]" {
			t.Errorf("links after unlink = %q", out)
		}
		if _, err := c.run("link", "users", "alice", "posts", "p9"); !errors.Is(err, fsdb.ErrRecordNotFound) {
			t.Errorf("link missing = %v", err)
		}
		if out := c.must("links", "nope"); strings.TrimSpace(out) != "[]" {
			t.Errorf("links on missing table = %q", out)
		}
		if out := c.must("scan", "nope"); strings.TrimSpace(out) != "{}" {
			t.Errorf("scan on missing table = %q", out)
		}
	})

	t.Run("Check", func(t *testing.T) {
		c := newCLI(t)
		c.must("create", "users")
		c.must("insert", "users", "alice", `{}`)
		var r fsdb.Report
		if err := json.Unmarshal([]byte(c.must("check")), &r); err != nil {
			t.Fatal(err)
		}
		if r.Tables != 1 || r.Records != 1 {
			t.Errorf("check = %+v", r)
		}
		root := c.flags[1]
		if err := os.WriteFile(filepath.Join(root, "users", "bad"), []byte("{"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := c.run("check"); err == nil {
			t.Error("expected check to fail")
		}
	})

	t.Run("Versioned", func(t *testing.T) {
		c := newCLI(t, "-versioned")
		c.must("create", "users")
		c.must("insert", "users", "alice", `{"v":"1"}`)
		c.must("update", "users", "alice", `{"v":"2"}`)
		var commits []struct {
			Hash    string `json:"hash"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(c.must("history", "users", "alice")), &commits); err != nil {
			t.Fatal(err)
		}
		if len(commits) != 2 || commits[0].Message != "update users/alice" {
			t.Fatalf("history = %+v", commits)
		}
		if out := c.must("get", "users", "alice", commits[1].Hash); !strings.Contains(out, `"1"`) {
			t.Errorf("get at = %q", out)
		}
		if _, err := c.run("history", "users", "alice", "zero"); err == nil {
			t.Error("expected error for invalid count")
		}
	})

	t.Run("MetricsFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fsdb.prom")
		c := newCLI(t, "-metrics-file", path)
		c.must("create", "users")
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "fsdb_operations_total") {
			t.Errorf("metrics file:\n%s", data)
		}
	})

	t.Run("ConfigFile", func(t *testing.T) {
		root := t.TempDir()
		cfgPath := filepath.Join(t.TempDir(), "fsdb.yaml")
		if err := os.WriteFile(cfgPath, []byte("root: "+root+"\nlog_level: error\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		var stdout, stderr bytes.Buffer
		if err := run(t.Context(), []string{"-config", cfgPath, "-workdir", t.TempDir(), "create", "users"}, &stdout, &stderr); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(filepath.Join(root, "users")); err != nil {
			t.Errorf("config root not used: %v", err)
		}
	})

	t.Run("Usage", func(t *testing.T) {
		c := newCLI(t)
		tests := [][]string{
			{},
			{"frobnicate"},
			{"get", "users"},
			{"create", "a", "b"},
		}
		for _, args := range tests {
			if _, err := c.run(args...); err == nil {
				t.Errorf("%v: expected error", args)
			}
		}
		var stdout, stderr bytes.Buffer
		if err := run(t.Context(), []string{"-h"}, &stdout, &stderr); err != nil {
			t.Errorf("-h = %v", err)
		}
		if !strings.Contains(stderr.String(), "config-schema") {
			t.Errorf("usage does not list commands:\n%s", stderr.String())
		}
		if err := run(t.Context(), []string{"-log-level", "loud", "list"}, &stdout, &stderr); err == nil {
			t.Error("expected invalid log level to fail")
		}
	})

	t.Run("Version", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		if err := run(t.Context(), []string{"-version"}, &stdout, &stderr); err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(stdout.String(), "fsdb ") {
			t.Errorf("version = %q", stdout.String())
		}
	})

	t.Run("ConfigSchema", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		if err := run(t.Context(), []string{"config-schema"}, &stdout, &stderr); err != nil {
			t.Fatal(err)
		}
		if !json.Valid(stdout.Bytes()) {
			t.Errorf("schema is not JSON: %s", stdout.String())
		}
	})
}
