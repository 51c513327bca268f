package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/maruel/fsdb/internal/config"
	"github.com/maruel/fsdb/internal/fsdb"
)

// errNoResult is returned when the target of a command is absent.
var errNoResult = errors.New("not found")

// env is what a command runs against.
type env struct {
	cfg *config.Config
	db  *fsdb.DB
	out io.Writer
}

// command is one verb of the tool. The set is closed: every verb is bound to
// its handler here.
type command struct {
	name    string
	args    string
	minArgs int
	maxArgs int
	// noDB commands run without opening the database.
	noDB bool
	run  func(ctx context.Context, e *env, args []string) error
}

var commands = []command{
	{name: "list", run: cmdList},
	{name: "show", args: "<table>", minArgs: 1, maxArgs: 1, run: cmdShow},
	{name: "create", args: "<table>", minArgs: 1, maxArgs: 1, run: cmdCreate},
	{name: "drop", args: "<table>", minArgs: 1, maxArgs: 1, run: cmdDrop},
	{name: "get", args: "<table> <pk> [rev]", minArgs: 2, maxArgs: 3, run: cmdGet},
	{name: "delete", args: "<table> <pk>", minArgs: 2, maxArgs: 2, run: cmdDelete},
	{name: "insert", args: "<table> <pk> <json>", minArgs: 3, maxArgs: 3, run: writeCmd((*fsdb.DB).Insert)},
	{name: "update", args: "<table> <pk> <json>", minArgs: 3, maxArgs: 3, run: writeCmd((*fsdb.DB).Update)},
	{name: "upsert", args: "<table> <pk> <json>", minArgs: 3, maxArgs: 3, run: writeCmd((*fsdb.DB).Upsert)},
	{name: "scan", args: "<table> [pattern]", minArgs: 1, maxArgs: 2, run: cmdScan},
	{name: "index", args: "<table> <field>", minArgs: 2, maxArgs: 2, run: cmdIndex},
	{name: "unindex", args: "<table> <field>", minArgs: 2, maxArgs: 2, run: cmdUnindex},
	{name: "find", args: "<table> <field> <value>", minArgs: 3, maxArgs: 3, run: cmdFind},
	{name: "link", args: "<src-table> <src-pk> <dest-table> <dest-pk> [json]", minArgs: 4, maxArgs: 5, run: cmdLink},
	{name: "unlink", args: "<table> <src-pk> <dest-pk>", minArgs: 3, maxArgs: 3, run: cmdUnlink},
	{name: "links", args: "<table> [left] [right]", minArgs: 1, maxArgs: 3, run: cmdLinks},
	{name: "reindex", args: "<table>", minArgs: 1, maxArgs: 1, run: cmdReindex},
	{name: "check", run: cmdCheck},
	{name: "watch", args: "<table>", minArgs: 1, maxArgs: 1, run: cmdWatch},
	{name: "history", args: "<table> <pk> [n]", minArgs: 2, maxArgs: 3, run: cmdHistory},
	{name: "config-schema", noDB: true, run: cmdConfigSchema},
}

func lookup(name string) (*command, error) {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i], nil
		}
	}
	return nil, fmt.Errorf("unknown command %q", name)
}

func cmdList(_ context.Context, e *env, _ []string) error {
	tables, err := e.db.ListTables()
	if err != nil {
		return err
	}
	return printLines(e.out, tables)
}

func cmdShow(_ context.Context, e *env, args []string) error {
	keys, err := e.db.ListKeys(args[0])
	if err != nil {
		return err
	}
	return printLines(e.out, keys)
}

func cmdCreate(ctx context.Context, e *env, args []string) error {
	return e.db.CreateTable(ctx, args[0])
}

func cmdDrop(ctx context.Context, e *env, args []string) error {
	ok, err := e.db.DropTable(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: table %s", errNoResult, args[0])
	}
	return nil
}

func cmdGet(ctx context.Context, e *env, args []string) error {
	var doc fsdb.Document
	var err error
	if len(args) == 3 {
		doc, err = e.db.GetAt(ctx, args[0], args[1], args[2])
	} else {
		doc, err = e.db.Get(args[0], args[1])
	}
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: %s/%s", errNoResult, args[0], args[1])
	}
	return printJSON(e.out, doc)
}

func cmdDelete(ctx context.Context, e *env, args []string) error {
	ok, err := e.db.Delete(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s", errNoResult, args[0], args[1])
	}
	return nil
}

// writeCmd adapts Insert, Update and Upsert, which share a signature.
func writeCmd(fn func(db *fsdb.DB, ctx context.Context, table, pk string, doc fsdb.Document) error) func(context.Context, *env, []string) error {
	return func(ctx context.Context, e *env, args []string) error {
		doc, err := parseDocument(args[2])
		if err != nil {
			return err
		}
		return fn(e.db, ctx, args[0], args[1], doc)
	}
}

func cmdScan(_ context.Context, e *env, args []string) error {
	pattern := ""
	if len(args) == 2 {
		pattern = args[1]
	}
	seq, err := e.db.Scan(args[0], pattern)
	if err != nil {
		return err
	}
	out := map[string]fsdb.Document{}
	for pk, doc := range seq {
		out[pk] = doc
	}
	return printJSON(e.out, out)
}

func cmdIndex(ctx context.Context, e *env, args []string) error {
	return e.db.CreateIndex(ctx, args[0], args[1])
}

func cmdUnindex(ctx context.Context, e *env, args []string) error {
	ok, err := e.db.DropIndex(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: index %s on %s", errNoResult, args[1], args[0])
	}
	return nil
}

func cmdFind(_ context.Context, e *env, args []string) error {
	doc, err := e.db.Find(args[0], args[1], args[2])
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: %s where %s = %s", errNoResult, args[0], args[1], args[2])
	}
	return printJSON(e.out, doc)
}

func cmdLink(ctx context.Context, e *env, args []string) error {
	var doc fsdb.Document
	if len(args) == 5 {
		var err error
		if doc, err = parseDocument(args[4]); err != nil {
			return err
		}
	}
	return e.db.Link(ctx, args[0], args[1], args[2], args[3], doc)
}

func cmdUnlink(ctx context.Context, e *env, args []string) error {
	ok, err := e.db.Unlink(ctx, args[0], args[1], args[2])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: link %s:%s in %s", errNoResult, args[1], args[2], args[0])
	}
	return nil
}

func cmdLinks(_ context.Context, e *env, args []string) error {
	var left, right string
	if len(args) > 1 {
		left = args[1]
	}
	if len(args) > 2 {
		right = args[2]
	}
	links, err := e.db.QueryLinks(args[0], left, right)
	if err != nil {
		return err
	}
	if links == nil {
		links = []fsdb.LinkRef{}
	}
	return printJSON(e.out, links)
}

func cmdReindex(ctx context.Context, e *env, args []string) error {
	return e.db.Reindex(ctx, args[0])
}

func cmdCheck(ctx context.Context, e *env, _ []string) error {
	r, err := e.db.Check(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(e.out, r); err != nil {
		return err
	}
	if n := len(r.Issues); n != 0 {
		return fmt.Errorf("%d issue(s) found", n)
	}
	return nil
}

func cmdWatch(ctx context.Context, e *env, args []string) error {
	ch, err := e.db.Watch(ctx, args[0])
	if err != nil {
		return err
	}
	for ev := range ch {
		if _, err := fmt.Fprintf(e.out, "%s\t%s\n", ev.Op, ev.Key); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func cmdHistory(ctx context.Context, e *env, args []string) error {
	n := 0
	if len(args) == 3 {
		var err error
		if n, err = strconv.Atoi(args[2]); err != nil || n <= 0 {
			return fmt.Errorf("invalid count %q", args[2])
		}
	}
	commits, err := e.db.History(ctx, args[0], args[1], n)
	if err != nil {
		return err
	}
	return printJSON(e.out, commits)
}

func cmdConfigSchema(_ context.Context, e *env, _ []string) error {
	data, err := config.Schema()
	if err != nil {
		return err
	}
	_, err = e.out.Write(data)
	return err
}

// parseDocument decodes a JSON object given on the command line.
func parseDocument(s string) (fsdb.Document, error) {
	return fsdb.JSONCodec{}.Unmarshal([]byte(s))
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func printLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
