package overlay

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// OriginalLanguage is the reserved id of the authored text. It is never an
// overlay target.
const OriginalLanguage int64 = 0

// Language is one entry of the language catalog.
type Language struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	IsActive bool   `db:"is_active" json:"is_active"`
}

// Languages lists the whole catalog ordered by id.
func (s *Store) Languages(ctx context.Context) ([]Language, error) {
	return s.selectLanguages(ctx, s.DB, nil)
}

// ActiveLanguages lists the active overlay targets ordered by id.
func (s *Store) ActiveLanguages(ctx context.Context) ([]Language, error) {
	return s.selectLanguages(ctx, s.DB, sq.Eq{"is_active": true})
}

// PutLanguage inserts or updates a catalog entry.
func (s *Store) PutLanguage(ctx context.Context, l Language) error {
	if l.ID <= OriginalLanguage {
		return &UnknownLanguageError{LanguageID: l.ID, Reason: "reserved for the original language"}
	}
	if l.Name == "" {
		return fmt.Errorf("overlay: language %d: empty name", l.ID)
	}
	query, args, err := s.sq.Insert("languages").
		Columns("id", "name", "is_active").
		Values(l.ID, l.Name, l.IsActive).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = excluded.name, is_active = excluded.is_active").
		ToSql()
	if err != nil {
		return fmt.Errorf("overlay: build put language: %w", err)
	}
	if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("overlay: put language %d: %w", l.ID, err)
	}
	return nil
}

// LookupLanguage returns the catalog entry for id, or an
// *UnknownLanguageError when it is not an active overlay target.
func (s *Store) LookupLanguage(ctx context.Context, id int64) (Language, error) {
	langs, err := s.requireActive(ctx, s.DB, []int64{id})
	if err != nil {
		return Language{}, err
	}
	return langs[id], nil
}

func (s *Store) selectLanguages(ctx context.Context, q sqlx.QueryerContext, where sq.Sqlizer) ([]Language, error) {
	b := s.sq.Select("id", "name", "is_active").From("languages").OrderBy("id")
	if where != nil {
		b = b.Where(where)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("overlay: build languages query: %w", err)
	}
	var out []Language
	if err := sqlx.SelectContext(ctx, q, &out, query, args...); err != nil {
		return nil, fmt.Errorf("overlay: list languages: %w", err)
	}
	return out, nil
}

// requireActive checks that every id is an existing, active language.
func (s *Store) requireActive(ctx context.Context, q sqlx.QueryerContext, ids []int64) (map[int64]Language, error) {
	for _, id := range ids {
		if id == OriginalLanguage {
			return nil, &UnknownLanguageError{LanguageID: id, Reason: "reserved for the original language"}
		}
		if id < 0 {
			return nil, &UnknownLanguageError{LanguageID: id, Reason: "invalid id"}
		}
	}
	langs, err := s.selectLanguages(ctx, q, sq.Eq{"id": ids})
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]Language, len(langs))
	for _, l := range langs {
		byID[l.ID] = l
	}
	for _, id := range ids {
		l, ok := byID[id]
		if !ok {
			return nil, &UnknownLanguageError{LanguageID: id, Reason: "not in catalog"}
		}
		if !l.IsActive {
			return nil, &UnknownLanguageError{LanguageID: id, Reason: "inactive"}
		}
	}
	return byID, nil
}
