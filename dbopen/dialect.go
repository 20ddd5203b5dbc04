package dbopen

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// Dialect is the SQL flavour behind a driver name.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DialectOf maps a database/sql driver name to its dialect.
func DialectOf(driver string) Dialect {
	switch driver {
	case "pgx", "postgres", "pgx/v5":
		return Postgres
	}
	return SQLite
}

// Wrap returns db as an sqlx handle whose Rebind matches d.
func (d Dialect) Wrap(db *sql.DB) *sqlx.DB {
	if d == Postgres {
		return sqlx.NewDb(db, "pgx")
	}
	return sqlx.NewDb(db, "sqlite3")
}

// Builder returns a squirrel statement builder with d's placeholders.
func (d Dialect) Builder() sq.StatementBuilderType {
	if d == Postgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}
