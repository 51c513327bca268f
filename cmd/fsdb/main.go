// Package main is the entry point for the fsdb command line tool.
//
// fsdb manipulates a record store laid out as plain files: tables are
// directories, records are files, indexes are directories of symlinks and
// links are records keyed "<src>:<dest>". Configuration is read from an
// optional YAML file, FSDB_* environment variables and flags, in increasing
// order of precedence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/maruel/fsdb/internal/config"
	"github.com/maruel/fsdb/internal/fsdb"
	"github.com/maruel/fsdb/internal/git"
	"github.com/maruel/fsdb/internal/metrics"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "fsdb: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fl := flag.NewFlagSet("fsdb", flag.ContinueOnError)
	fl.SetOutput(stderr)
	version := fl.Bool("version", false, "Print version and exit")
	configPath := fl.String("config", "", "YAML configuration file")
	root := fl.String("root", config.DefaultRoot, "Database root directory")
	workDir := fl.String("workdir", "", "Scratch directory for temporary files (default $TMPDIR/fsdb)")
	logLevel := fl.String("log-level", "info", "Log level (debug, info, warn, error)")
	versioned := fl.Bool("versioned", false, "Commit every mutation to a git repository at the root")
	metricsFile := fl.String("metrics-file", "", "Write Prometheus metrics to this file on exit")
	fl.Usage = func() { usage(fl) }
	if err := fl.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *version {
		printVersion(stdout)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	// Flags explicitly set win over the file and the environment.
	fl.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "root":
			cfg.Root = *root
		case "workdir":
			cfg.WorkDir = *workDir
		case "log-level":
			cfg.LogLevel = *logLevel
		case "versioned":
			cfg.Versioned = *versioned
		case "metrics-file":
			cfg.MetricsFile = *metricsFile
		}
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	slog.SetDefault(newLogger(stderr, level))

	if fl.NArg() == 0 {
		fl.Usage()
		return errors.New("missing command")
	}
	cmd, err := lookup(fl.Arg(0))
	if err != nil {
		return err
	}
	rest := fl.Args()[1:]
	if len(rest) < cmd.minArgs || len(rest) > cmd.maxArgs {
		return fmt.Errorf("usage: fsdb %s %s", cmd.name, cmd.args)
	}

	e := &env{cfg: cfg, out: stdout}
	if !cmd.noDB {
		if e.db, err = openDB(cfg); err != nil {
			return err
		}
	}
	start := time.Now()
	err = cmd.run(ctx, e, rest)
	slog.DebugContext(ctx, "fsdb: done", "cmd", cmd.name, "dur", time.Since(start), "err", err)
	if cfg.MetricsFile != "" {
		if werr := metrics.WriteTextfile(cfg.MetricsFile); werr != nil {
			err = errors.Join(err, werr)
		}
	}
	return err
}

// openDB opens the database described by cfg, with its repository when
// versioned.
func openDB(cfg *config.Config) (*fsdb.DB, error) {
	opts := &fsdb.Options{
		WorkDir: cfg.WorkDir,
		Author:  git.Author{Name: cfg.AuthorName, Email: cfg.AuthorEmail},
	}
	if cfg.Versioned {
		repo, err := git.Open(cfg.Root, cfg.AuthorName, cfg.AuthorEmail)
		if err != nil {
			return nil, err
		}
		opts.Repo = repo
	}
	db, err := fsdb.Open(cfg.Root, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// newLogger returns a tint logger writing to w, colored only on a terminal.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	ll := &slog.LevelVar{}
	ll.Set(level)
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			if a.Key == "err" && a.Value.Any() == nil {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func usage(fl *flag.FlagSet) {
	w := fl.Output()
	fmt.Fprintf(w, "usage: fsdb [flags] <command> [args]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-14s %s\n", c.name, c.args)
	}
	fmt.Fprintf(w, "\nflags:\n")
	fl.PrintDefaults()
}

func printVersion(w io.Writer) {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Fprintf(w, "fsdb %s\n", version)
	fmt.Fprintf(w, "  Go version: %s\n", goVersion)
	fmt.Fprintf(w, "  Revision:   %s\n", revision)
	if dirty {
		fmt.Fprintf(w, "  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
