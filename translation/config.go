package translation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/manualtr/dbopen"
	"github.com/hazyhaar/manualtr/observability"
)

// Config holds all manualtr configuration.
type Config struct {
	Listen string `yaml:"listen" toml:"listen"`
	DBPath string `yaml:"db_path" toml:"db_path"`
	// Driver is the database/sql driver name: "sqlite" or "pgx". With pgx,
	// DBPath is a connection string.
	Driver string `yaml:"driver" toml:"driver"`
	// BusyTimeout is how long SQLite waits on a locked database ("10s").
	BusyTimeout string `yaml:"busy_timeout" toml:"busy_timeout"`

	// MaxImportSize bounds an uploaded exchange file, in human units ("20MB").
	MaxImportSize string `yaml:"max_import_size" toml:"max_import_size"`
	// MarkdownPreview adds the originalMarkdown column to exports by default.
	MarkdownPreview bool `yaml:"markdown_preview" toml:"markdown_preview"`
	// RunRetention is how long the run log keeps entries ("720h"). Empty
	// keeps them forever.
	RunRetention string `yaml:"run_retention" toml:"run_retention"`

	Log       LogConfig        `yaml:"log" toml:"log"`
	Languages []LanguageConfig `yaml:"languages" toml:"languages"`

	maxImportBytes int64
	runRetention   time.Duration
	busyTimeout    time.Duration
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // json | text
}

// LanguageConfig seeds one catalog entry at startup.
type LanguageConfig struct {
	ID     int64  `yaml:"id" toml:"id"`
	Name   string `yaml:"name" toml:"name"`
	Active *bool  `yaml:"active" toml:"active"`
}

func (c *Config) defaults() {
	if c.Listen == "" {
		c.Listen = ":8087"
	}
	if c.DBPath == "" {
		c.DBPath = "manualtr.db"
	}
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.MaxImportSize == "" {
		c.MaxImportSize = "20MB"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// applyEnv overrides file values with MANUALTR_* variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("MANUALTR_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("MANUALTR_DRIVER"); v != "" {
		c.Driver = v
	}
	if v := os.Getenv("MANUALTR_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("MANUALTR_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate fills defaults and checks every value. It must be called before
// the config is used.
func (c *Config) Validate() error {
	c.defaults()
	var errs []error

	switch c.Driver {
	case "postgres":
		c.Driver = "pgx"
	case "sqlite", "pgx":
	default:
		errs = append(errs, fmt.Errorf("driver %q: want sqlite or pgx", c.Driver))
	}

	n, err := units.FromHumanSize(c.MaxImportSize)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("max_import_size: %w", err))
	case n <= 0:
		errs = append(errs, fmt.Errorf("max_import_size %q: must be positive", c.MaxImportSize))
	default:
		c.maxImportBytes = n
	}

	if c.BusyTimeout != "" {
		d, err := time.ParseDuration(c.BusyTimeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("busy_timeout: %w", err))
		}
		c.busyTimeout = d
	}

	if c.RunRetention != "" {
		d, err := time.ParseDuration(c.RunRetention)
		if err != nil {
			errs = append(errs, fmt.Errorf("run_retention: %w", err))
		}
		c.runRetention = d
	}

	if _, err := observability.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format %q: want json or text", c.Log.Format))
	}

	seen := make(map[int64]bool)
	for _, l := range c.Languages {
		if l.ID <= 0 {
			errs = append(errs, fmt.Errorf("language %q: id must be positive, 0 is the original", l.Name))
		}
		if seen[l.ID] {
			errs = append(errs, fmt.Errorf("language %d: listed twice", l.ID))
		}
		seen[l.ID] = true
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("translation: config: %w", err)
	}
	return nil
}

// MaxImportBytes is MaxImportSize in bytes. Valid after Validate.
func (c *Config) MaxImportBytes() int64 { return c.maxImportBytes }

// Dialect is the SQL dialect of Driver.
func (c *Config) Dialect() dbopen.Dialect { return dbopen.DialectOf(c.Driver) }

// LoadConfigFile reads a YAML or TOML config file, chosen by extension, then
// applies environment overrides and validates. An empty path yields the
// defaults plus environment.
func LoadConfigFile(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			err = toml.Unmarshal(data, cfg)
		case ".yaml", ".yml", "":
			err = yaml.Unmarshal(data, cfg)
		default:
			return nil, fmt.Errorf("translation: config %s: unsupported format", path)
		}
		if err != nil {
			return nil, fmt.Errorf("translation: config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
