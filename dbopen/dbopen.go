// Package dbopen opens the manualtr database. SQLite (modernc) gets the
// production pragmas applied via EXEC; postgres (pgx stdlib) is opened as is.
//
// SQLite pragmas:
//
//	PRAGMA foreign_keys = ON
//	PRAGMA journal_mode = WAL
//	PRAGMA busy_timeout = 10000
//	PRAGMA synchronous = NORMAL
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("manualtr.db", dbopen.WithSchema(overlay.SchemaSQLite))
//
// Postgres:
//
//	import _ "github.com/jackc/pgx/v5/stdlib"
//	db, err := dbopen.Open(dsn, dbopen.WithDriver("pgx"))
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type config struct {
	driver      string
	busyTimeout time.Duration
	mkdirAll    bool
	schemas     []string
}

func defaults() config {
	return config{
		driver:      "sqlite",
		busyTimeout: 10 * time.Second,
	}
}

// Option customises Open behaviour.
type Option func(*config)

// WithDriver sets the database/sql driver name. Default: "sqlite".
func WithDriver(name string) Option { return func(c *config) { c.driver = name } }

// WithBusyTimeout sets PRAGMA busy_timeout. Ignored for postgres. Values of
// zero or less keep the default.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.busyTimeout = d
		}
	}
}

// WithMkdirAll creates parent directories of the database path before opening.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues SQL to execute after pragmas are applied. Statements must
// be idempotent (CREATE ... IF NOT EXISTS).
func WithSchema(s string) Option { return func(c *config) { c.schemas = append(c.schemas, s) } }

// Open opens the database at path (a file path for SQLite, a DSN for
// postgres), applies pragmas and schemas, and pings it. The caller must
// blank-import the driver.
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}
	dialect := DialectOf(cfg.driver)

	if cfg.mkdirAll && dialect == SQLite && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(cfg.driver, path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}
	fail := func(err error) (*sql.DB, error) {
		db.Close()
		return nil, err
	}

	if dialect == SQLite {
		if err := applyPragmas(db, &cfg); err != nil {
			return fail(err)
		}
	}
	for _, s := range cfg.schemas {
		if _, err := db.Exec(s); err != nil {
			return fail(fmt.Errorf("dbopen: exec schema: %w", err))
		}
	}
	if err := db.Ping(); err != nil {
		return fail(fmt.Errorf("dbopen: ping: %w", err))
	}
	return db, nil
}

// OpenMemory opens an in-memory SQLite database for testing.
// It sets MaxOpenConns(1) so all queries hit the same in-memory database
// (each connection to ":memory:" creates a separate one) and registers
// t.Cleanup to close it.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func applyPragmas(db *sql.DB, cfg *config) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("dbopen: %s: %w", p, err)
		}
	}
	return nil
}
