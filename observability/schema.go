package observability

import (
	"database/sql"

	"github.com/hazyhaar/manualtr/dbopen"
)

// SchemaSQLite holds the run log. One row per export or import, written
// after the run ends.
const SchemaSQLite = `
CREATE TABLE IF NOT EXISTS runs (
    id           TEXT PRIMARY KEY,
    kind         TEXT NOT NULL CHECK(kind IN ('export','import')),
    document_id  INTEGER NOT NULL,
    request_id   TEXT NOT NULL DEFAULT '',
    transport    TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL CHECK(status IN ('ok','error')),
    row_count    INTEGER NOT NULL DEFAULT 0,
    applied      INTEGER NOT NULL DEFAULT 0,
    skipped      INTEGER NOT NULL DEFAULT 0,
    duration_ms  INTEGER NOT NULL DEFAULT 0,
    error        TEXT NOT NULL DEFAULT '',
    started_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_document ON runs(document_id, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// SchemaPostgres is SchemaSQLite for postgres.
const SchemaPostgres = `
CREATE TABLE IF NOT EXISTS runs (
    id           TEXT PRIMARY KEY,
    kind         TEXT NOT NULL CHECK(kind IN ('export','import')),
    document_id  BIGINT NOT NULL,
    request_id   TEXT NOT NULL DEFAULT '',
    transport    TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL CHECK(status IN ('ok','error')),
    row_count    INTEGER NOT NULL DEFAULT 0,
    applied      INTEGER NOT NULL DEFAULT 0,
    skipped      INTEGER NOT NULL DEFAULT 0,
    duration_ms  BIGINT NOT NULL DEFAULT 0,
    error        TEXT NOT NULL DEFAULT '',
    started_at   BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_document ON runs(document_id, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// Schema returns the run-log DDL for d.
func Schema(d dbopen.Dialect) string {
	if d == dbopen.Postgres {
		return SchemaPostgres
	}
	return SchemaSQLite
}

// Init applies the run-log schema to the given database.
func Init(db *sql.DB, d dbopen.Dialect) error {
	_, err := db.Exec(Schema(d))
	return err
}
