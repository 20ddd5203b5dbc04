// Package treestore loads document trees from the editor's relational tables.
//
// The editor owns these tables; the translation engine only reads them. Save
// exists for seeding and tests.
package treestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/hazyhaar/manualtr/address"
	"github.com/hazyhaar/manualtr/dbopen"
	"github.com/hazyhaar/manualtr/doctree"
)

// ErrNotFound is returned when a document id does not exist.
var ErrNotFound = errors.New("treestore: document not found")

// Store reads document trees.
type Store struct {
	DB      *sqlx.DB
	dialect dbopen.Dialect
	sq      sq.StatementBuilderType
}

// New wraps an opened database. The schema must already be applied.
func New(db *sql.DB, d dbopen.Dialect) *Store {
	return &Store{DB: d.Wrap(db), dialect: d, sq: d.Builder()}
}

// DocumentInfo is one row of the document list.
type DocumentInfo struct {
	ID        int64  `db:"id" json:"id"`
	Title     string `db:"title" json:"title"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

type sectionRow struct {
	ID         int64  `db:"id"`
	DocumentID int64  `db:"document_id"`
	Title      string `db:"title"`
	Level      int    `db:"level"`
}

type moduleRow struct {
	ID          int64  `db:"id"`
	SectionID   int64  `db:"section_id"`
	Type        string `db:"type"`
	ContentJSON string `db:"content_json"`
}

type componentRow struct {
	ID          int64   `db:"id"`
	SectionID   int64   `db:"section_id"`
	Position    int     `db:"position"`
	Level       int     `db:"level"`
	Code        string  `db:"code"`
	Description string  `db:"description"`
	Quantity    float64 `db:"quantity"`
}

// Documents lists every document ordered by id.
func (s *Store) Documents(ctx context.Context) ([]DocumentInfo, error) {
	query, args, err := s.sq.Select("id", "title", "updated_at").From("documents").OrderBy("id").ToSql()
	if err != nil {
		return nil, err
	}
	var out []DocumentInfo
	if err := s.DB.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("treestore: list documents: %w", err)
	}
	return out, nil
}

// Load reads the full tree of docID in one read transaction.
func (s *Store) Load(ctx context.Context, docID int64) (*doctree.Snapshot, error) {
	var snap *doctree.Snapshot
	err := dbopen.RunTx(ctx, s.DB, s.dialect.ReadOptions(), func(tx *sqlx.Tx) error {
		var err error
		snap, err = s.load(ctx, tx, docID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) load(ctx context.Context, tx *sqlx.Tx, docID int64) (*doctree.Snapshot, error) {
	var doc DocumentInfo
	query, args, _ := s.sq.Select("id", "title", "updated_at").From("documents").Where(sq.Eq{"id": docID}).ToSql()
	if err := tx.GetContext(ctx, &doc, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, docID)
		}
		return nil, fmt.Errorf("treestore: load document %d: %w", docID, err)
	}
	snap := doctree.NewSnapshot(doctree.Document{ID: doc.ID, Title: doc.Title})

	var sections []sectionRow
	query, args, _ = s.sq.Select("id", "document_id", "title", "level").From("sections").
		Where(sq.Eq{"document_id": docID}).OrderBy("position", "id").ToSql()
	if err := tx.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, fmt.Errorf("treestore: load sections: %w", err)
	}
	for _, r := range sections {
		snap.AddSection(&doctree.Section{ID: r.ID, Title: r.Title, Level: r.Level})
	}

	inDoc := sq.Expr("section_id IN (SELECT id FROM sections WHERE document_id = ?)", docID)

	var modules []moduleRow
	query, args, _ = s.sq.Select("id", "section_id", "type", "content_json").From("modules").
		Where(inDoc).OrderBy("section_id", "position", "id").ToSql()
	if err := tx.SelectContext(ctx, &modules, query, args...); err != nil {
		return nil, fmt.Errorf("treestore: load modules: %w", err)
	}
	for _, r := range modules {
		t := doctree.ModuleType(r.Type)
		content, err := doctree.DecodeContent(t, []byte(r.ContentJSON))
		if err != nil {
			return nil, &doctree.StructureError{EntityType: address.EntityModule, EntityID: r.ID, Reason: err.Error()}
		}
		snap.AddModule(&doctree.Module{ID: r.ID, SectionID: r.SectionID, Type: t, Content: content})
	}

	var components []componentRow
	query, args, _ = s.sq.Select("id", "section_id", "position", "level", "code", "description", "quantity").
		From("components").Where(inDoc).OrderBy("section_id", "position", "id").ToSql()
	if err := tx.SelectContext(ctx, &components, query, args...); err != nil {
		return nil, fmt.Errorf("treestore: load components: %w", err)
	}
	for _, r := range components {
		snap.AddComponent(&doctree.Component{
			ID: r.ID, SectionID: r.SectionID, Position: r.Position, Level: r.Level,
			Code: r.Code, Description: r.Description, Quantity: r.Quantity,
		})
	}
	return snap, nil
}

// Save replaces the stored tree of snap's document.
func (s *Store) Save(ctx context.Context, snap *doctree.Snapshot) error {
	if err := doctree.Validate(snap); err != nil {
		return err
	}
	docID := snap.Document.ID
	return dbopen.RunTx(ctx, s.DB, nil, func(tx *sqlx.Tx) error {
		exec := func(b sq.Sqlizer) error {
			query, args, err := b.ToSql()
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, query, args...)
			return err
		}

		inDoc := sq.Expr("section_id IN (SELECT id FROM sections WHERE document_id = ?)", docID)
		steps := []sq.Sqlizer{
			s.sq.Delete("components").Where(inDoc),
			s.sq.Delete("modules").Where(inDoc),
			s.sq.Delete("sections").Where(sq.Eq{"document_id": docID}),
			s.sq.Insert("documents").Columns("id", "title", "updated_at").
				Values(docID, snap.Document.Title, time.Now().UnixMilli()).
				Suffix("ON CONFLICT (id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at"),
		}
		for i, sid := range snap.Document.Sections {
			sec := snap.Sections[sid]
			steps = append(steps, s.sq.Insert("sections").
				Columns("id", "document_id", "position", "title", "level").
				Values(sec.ID, docID, i, sec.Title, sec.Level))
		}
		for _, sid := range snap.Document.Sections {
			for i, mid := range snap.Sections[sid].Modules {
				m := snap.Modules[mid]
				raw, err := json.Marshal(m.Content)
				if err != nil {
					return fmt.Errorf("treestore: encode module %d: %w", m.ID, err)
				}
				steps = append(steps, s.sq.Insert("modules").
					Columns("id", "section_id", "position", "type", "content_json").
					Values(m.ID, sid, i, string(m.Type), string(raw)))
			}
		}
		for _, c := range snap.Components {
			steps = append(steps, s.sq.Insert("components").
				Columns("id", "section_id", "position", "level", "code", "description", "quantity").
				Values(c.ID, c.SectionID, c.Position, c.Level, c.Code, c.Description, c.Quantity))
		}

		for _, b := range steps {
			if err := exec(b); err != nil {
				return fmt.Errorf("treestore: save document %d: %w", docID, err)
			}
		}
		return nil
	})
}
