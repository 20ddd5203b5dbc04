package treestore

import (
	"database/sql"

	"github.com/hazyhaar/manualtr/dbopen"
)

// SchemaSQLite mirrors the editor's document tables. Positions carry sibling
// order; content_json holds the module payload keyed by type.
const SchemaSQLite = `
CREATE TABLE IF NOT EXISTS documents (
    id          INTEGER PRIMARY KEY,
    title       TEXT NOT NULL DEFAULT '',
    updated_at  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sections (
    id           INTEGER PRIMARY KEY,
    document_id  INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    position     INTEGER NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    level        INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_sections_document ON sections(document_id, position);

CREATE TABLE IF NOT EXISTS modules (
    id            INTEGER PRIMARY KEY,
    section_id    INTEGER NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
    position      INTEGER NOT NULL,
    type          TEXT NOT NULL,
    content_json  TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_modules_section ON modules(section_id, position);

CREATE TABLE IF NOT EXISTS components (
    id           INTEGER PRIMARY KEY,
    section_id   INTEGER NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
    position     INTEGER NOT NULL,
    level        INTEGER NOT NULL DEFAULT 0,
    code         TEXT NOT NULL DEFAULT '',
    description  TEXT NOT NULL DEFAULT '',
    quantity     REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_components_section ON components(section_id, position);
`

// SchemaPostgres is SchemaSQLite for postgres.
const SchemaPostgres = `
CREATE TABLE IF NOT EXISTS documents (
    id          BIGINT PRIMARY KEY,
    title       TEXT NOT NULL DEFAULT '',
    updated_at  BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sections (
    id           BIGINT PRIMARY KEY,
    document_id  BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    position     INTEGER NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    level        INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_sections_document ON sections(document_id, position);

CREATE TABLE IF NOT EXISTS modules (
    id            BIGINT PRIMARY KEY,
    section_id    BIGINT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
    position      INTEGER NOT NULL,
    type          TEXT NOT NULL,
    content_json  TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_modules_section ON modules(section_id, position);

CREATE TABLE IF NOT EXISTS components (
    id           BIGINT PRIMARY KEY,
    section_id   BIGINT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
    position     INTEGER NOT NULL,
    level        INTEGER NOT NULL DEFAULT 0,
    code         TEXT NOT NULL DEFAULT '',
    description  TEXT NOT NULL DEFAULT '',
    quantity     DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_components_section ON components(section_id, position);
`

// Schema returns the document-table DDL for d.
func Schema(d dbopen.Dialect) string {
	if d == dbopen.Postgres {
		return SchemaPostgres
	}
	return SchemaSQLite
}

// ApplySchema creates the document tables if they do not exist.
func ApplySchema(db *sql.DB, d dbopen.Dialect) error {
	_, err := db.Exec(Schema(d))
	return err
}
