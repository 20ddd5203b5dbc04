package overlay

import (
	"database/sql"

	"github.com/hazyhaar/manualtr/dbopen"
)

// SchemaSQLite is the overlay schema for SQLite.
const SchemaSQLite = `
CREATE TABLE IF NOT EXISTS languages (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL,
    is_active   INTEGER NOT NULL DEFAULT 1,
    CHECK (id > 0)
);

-- One row per (address, language). sub_id 0 means "no sub element".
CREATE TABLE IF NOT EXISTS translations (
    entity_type  TEXT NOT NULL,
    entity_id    INTEGER NOT NULL,
    field_name   TEXT NOT NULL,
    sub_id       INTEGER NOT NULL DEFAULT 0,
    language_id  INTEGER NOT NULL REFERENCES languages(id),
    document_id  INTEGER NOT NULL,
    value        TEXT NOT NULL,
    updated_at   INTEGER NOT NULL,
    PRIMARY KEY (entity_type, entity_id, field_name, sub_id, language_id)
);
CREATE INDEX IF NOT EXISTS idx_translations_document ON translations(document_id, language_id);
`

// SchemaPostgres is the overlay schema for postgres.
const SchemaPostgres = `
CREATE TABLE IF NOT EXISTS languages (
    id          BIGINT PRIMARY KEY CHECK (id > 0),
    name        TEXT NOT NULL,
    is_active   BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS translations (
    entity_type  TEXT NOT NULL,
    entity_id    BIGINT NOT NULL,
    field_name   TEXT NOT NULL,
    sub_id       BIGINT NOT NULL DEFAULT 0,
    language_id  BIGINT NOT NULL REFERENCES languages(id),
    document_id  BIGINT NOT NULL,
    value        TEXT NOT NULL,
    updated_at   BIGINT NOT NULL,
    PRIMARY KEY (entity_type, entity_id, field_name, sub_id, language_id)
);
CREATE INDEX IF NOT EXISTS idx_translations_document ON translations(document_id, language_id);
`

// Schema returns the overlay DDL for d.
func Schema(d dbopen.Dialect) string {
	if d == dbopen.Postgres {
		return SchemaPostgres
	}
	return SchemaSQLite
}

// ApplySchema creates the overlay tables if they do not exist.
func ApplySchema(db *sql.DB, d dbopen.Dialect) error {
	_, err := db.Exec(Schema(d))
	return err
}
