// Package overlay stores translated values keyed by (address, language).
//
// A translation shadows the original value of one field for one language.
// Absence of an entry means "use the original". Writes are idempotent upserts:
// writing the same value twice changes nothing, writing a different value
// overwrites. Entries are never deleted implicitly.
//
// Writers of the same document are serialized by an in-process mutex plus the
// database transaction (and a transaction-scoped advisory lock on postgres).
// Readers take a transactional snapshot and never observe a partial batch.
package overlay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/hazyhaar/manualtr/address"
	"github.com/hazyhaar/manualtr/dbopen"
)

// Entry is one translation to write.
type Entry struct {
	Address    address.Address `json:"address"`
	LanguageID int64           `json:"language_id"`
	Value      string          `json:"value"`
}

// Store is the SQL-backed overlay.
type Store struct {
	DB      *sqlx.DB
	dialect dbopen.Dialect
	sq      sq.StatementBuilderType
	locks   *docLocks
	now     func() time.Time

	upsertSQL string
}

// New wraps an opened database. The schema must already be applied.
func New(db *sql.DB, d dbopen.Dialect) *Store {
	s := &Store{
		DB:      d.Wrap(db),
		dialect: d,
		sq:      d.Builder(),
		locks:   newDocLocks(),
		now:     time.Now,
	}
	// Only the SQL text is kept; arguments are bound per entry.
	s.upsertSQL, _, _ = s.sq.Insert("translations").
		Columns("entity_type", "entity_id", "field_name", "sub_id", "language_id", "document_id", "value", "updated_at").
		Values("", 0, "", 0, 0, 0, "", 0).
		Suffix(`ON CONFLICT (entity_type, entity_id, field_name, sub_id, language_id) DO UPDATE
		SET value = excluded.value, document_id = excluded.document_id, updated_at = excluded.updated_at
		WHERE translations.value <> excluded.value`).
		ToSql()
	return s
}

// Dialect reports the SQL flavour of the underlying database.
func (s *Store) Dialect() dbopen.Dialect { return s.dialect }

// Get returns the translated value of addr in lang. ok is false when no
// translation exists and the caller must fall back to the original.
func (s *Store) Get(ctx context.Context, addr address.Address, lang int64) (value string, ok bool, err error) {
	if err := addr.Validate(); err != nil {
		return "", false, err
	}
	if _, err := s.requireActive(ctx, s.DB, []int64{lang}); err != nil {
		return "", false, err
	}
	query, args, err := s.sq.Select("value").From("translations").
		Where(pkEq(addr, lang)).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("overlay: build get: %w", err)
	}
	if err := sqlx.GetContext(ctx, s.DB, &value, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("overlay: get %s/%d: %w", addr.Key(), lang, err)
	}
	return value, true, nil
}

// Upsert writes one translation. changed is false when the stored value was
// already identical.
func (s *Store) Upsert(ctx context.Context, docID int64, addr address.Address, lang int64, value string) (changed bool, err error) {
	n, err := s.BulkUpsert(ctx, docID, []Entry{{Address: addr, LanguageID: lang, Value: value}})
	return n == 1, err
}

// BulkUpsert writes entries in one transaction: all commit or none do. It
// returns how many stored values actually changed.
func (s *Store) BulkUpsert(ctx context.Context, docID int64, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	if docID <= 0 {
		return 0, fmt.Errorf("overlay: bulk upsert: invalid document id %d", docID)
	}
	langSet := make(map[int64]bool)
	for i, e := range entries {
		if err := e.Address.Validate(); err != nil {
			return 0, fmt.Errorf("overlay: entry %d: %w", i, err)
		}
		if e.Value == "" {
			return 0, fmt.Errorf("overlay: entry %d %s: %w", i, e.Address.Key(), ErrEmptyValue)
		}
		langSet[e.LanguageID] = true
	}
	langs := make([]int64, 0, len(langSet))
	for id := range langSet {
		langs = append(langs, id)
	}
	slices.Sort(langs)

	unlock := s.locks.lock(docID)
	defer unlock()

	var changed int
	err := dbopen.RunTx(ctx, s.DB, nil, func(tx *sqlx.Tx) error {
		changed = 0
		if s.dialect == dbopen.Postgres {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, docID); err != nil {
				return fmt.Errorf("overlay: advisory lock: %w", err)
			}
		}
		if _, err := s.requireActive(ctx, tx, langs); err != nil {
			return err
		}
		now := s.now().UnixMilli()
		for _, e := range entries {
			a := e.Address
			res, err := tx.ExecContext(ctx, s.upsertSQL,
				a.EntityType, a.EntityID, a.FieldName, a.SubID, e.LanguageID, docID, e.Value, now)
			if err != nil {
				return fmt.Errorf("overlay: upsert %s/%d: %w", a.Key(), e.LanguageID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("overlay: rows affected: %w", err)
			}
			changed += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// Snapshot reads every translation of docID together with the active
// languages inside one read transaction.
func (s *Store) Snapshot(ctx context.Context, docID int64) (*Snapshot, error) {
	snap := &Snapshot{DocumentID: docID, values: make(map[valueKey]string)}
	err := dbopen.RunTx(ctx, s.DB, s.dialect.ReadOptions(), func(tx *sqlx.Tx) error {
		langs, err := s.selectLanguages(ctx, tx, sq.Eq{"is_active": true})
		if err != nil {
			return err
		}
		query, args, err := s.sq.
			Select("entity_type", "entity_id", "field_name", "sub_id", "language_id", "value").
			From("translations").
			Where(sq.Eq{"document_id": docID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("overlay: build snapshot: %w", err)
		}
		var rows []entryRow
		if err := sqlx.SelectContext(ctx, tx, &rows, query, args...); err != nil {
			return fmt.Errorf("overlay: snapshot document %d: %w", docID, err)
		}
		snap.Languages = langs
		clear(snap.values)
		for _, r := range rows {
			snap.values[r.key()] = r.Value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func pkEq(a address.Address, lang int64) sq.Eq {
	return sq.Eq{
		"entity_type": a.EntityType,
		"entity_id":   a.EntityID,
		"field_name":  a.FieldName,
		"sub_id":      a.SubID,
		"language_id": lang,
	}
}

type entryRow struct {
	EntityType string `db:"entity_type"`
	EntityID   int64  `db:"entity_id"`
	FieldName  string `db:"field_name"`
	SubID      int64  `db:"sub_id"`
	LanguageID int64  `db:"language_id"`
	Value      string `db:"value"`
}

func (r entryRow) key() valueKey {
	a := address.Address{EntityType: r.EntityType, EntityID: r.EntityID, FieldName: r.FieldName, SubID: r.SubID}
	return valueKey{addr: a.Key(), lang: r.LanguageID}
}
