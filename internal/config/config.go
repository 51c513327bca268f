// Package config loads the settings of the fsdb command.
//
// Values come, in increasing precedence, from defaults, an optional YAML
// file, FSDB_* environment variables and command line flags. Flags are
// applied by the caller.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultRoot is the database root used when nothing else is configured.
const DefaultRoot = "/var/lib/fsdb"

// envPrefix prefixes every environment variable, e.g. FSDB_ROOT.
const envPrefix = "fsdb"

// Config holds the settings of the fsdb command.
type Config struct {
	// Root is the database root directory.
	Root string `yaml:"root" json:"root" envconfig:"ROOT" jsonschema:"description=Database root directory"`
	// WorkDir is the scratch directory for temporary files.
	WorkDir string `yaml:"workdir,omitempty" json:"workdir,omitempty" envconfig:"WORKDIR" jsonschema:"description=Scratch directory for temporary files"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level,omitempty" json:"log_level,omitempty" envconfig:"LOG_LEVEL" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	// Versioned commits every mutation to a git repository at Root.
	Versioned bool `yaml:"versioned,omitempty" json:"versioned,omitempty" envconfig:"VERSIONED" jsonschema:"description=Commit every mutation to a git repository at the root"`
	// AuthorName and AuthorEmail sign the commits of a versioned database.
	AuthorName  string `yaml:"author_name,omitempty" json:"author_name,omitempty" envconfig:"AUTHOR_NAME"`
	AuthorEmail string `yaml:"author_email,omitempty" json:"author_email,omitempty" envconfig:"AUTHOR_EMAIL"`
	// MetricsFile receives Prometheus metrics in text format on exit.
	MetricsFile string `yaml:"metrics_file,omitempty" json:"metrics_file,omitempty" envconfig:"METRICS_FILE" jsonschema:"description=Path of a node exporter textfile written on exit"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Root:     DefaultRoot,
		LogLevel: "info",
	}
}

// Load returns the defaults overridden by the YAML file at path, if path is
// not empty, then by the environment. A missing file is an error since the
// caller asked for it explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path is provided by the operator
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("root is required")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel converts a log level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", s)
	}
}

// Schema returns the JSON Schema of the configuration file, for editors.
func Schema() ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	s := r.Reflect(&Config{})
	s.Title = "fsdb configuration"
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return append(data, '\n'), nil
}
