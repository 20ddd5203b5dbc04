package exchange

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hazyhaar/manualtr/doctree"
	"github.com/hazyhaar/manualtr/fields"
	"github.com/hazyhaar/manualtr/overlay"
)

// Store is the part of the overlay an import writes through.
type Store interface {
	ActiveLanguages(ctx context.Context) ([]overlay.Language, error)
	BulkUpsert(ctx context.Context, docID int64, entries []overlay.Entry) (int, error)
}

// Importer reconciles exchange files against a document tree.
type Importer struct {
	reg   *fields.Registry
	store Store
}

// NewImporter returns an Importer writing through store.
func NewImporter(reg *fields.Registry, store Store) *Importer {
	return &Importer{reg: reg, store: store}
}

// Import decodes r and applies its valid, non-blank rows to the overlay of
// tree's document in one atomic batch.
//
// Rows are checked in order: schema, reference against tree, language.
// Failing rows are skipped and listed in the report. A tree inconsistency,
// a malformed header or a failed batch write aborts with an error and leaves
// the overlay untouched.
func (im *Importer) Import(ctx context.Context, r io.Reader, tree *doctree.Snapshot) (*Report, error) {
	if err := doctree.Validate(tree); err != nil {
		return nil, err
	}
	records, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return im.Apply(ctx, records, tree)
}

type pendingKey struct {
	addr string
	lang int64
}

// Apply reconciles already decoded records.
func (im *Importer) Apply(ctx context.Context, records []Record, tree *doctree.Snapshot) (*Report, error) {
	langs, err := im.store.ActiveLanguages(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange: load languages: %w", err)
	}
	active := make(map[int64]bool, len(langs))
	for _, l := range langs {
		if l.IsActive && l.ID != overlay.OriginalLanguage {
			active[l.ID] = true
		}
	}

	rep := &Report{DocumentID: tree.Document.ID, Rows: len(records)}
	idx := doctree.NewIndex(tree)

	var entries []overlay.Entry
	slot := make(map[pendingKey]int)
	for _, rec := range records {
		if rec.Err != nil {
			rep.skip(rec, ReasonMalformed, rec.Err)
			continue
		}
		row := rec.Row
		addr := row.Address()

		v, ok := idx.Resolve(row.EntityType, row.EntityID, row.SubID)
		if !ok {
			rep.skip(rec, ReasonStale, &StaleReferenceError{Line: rec.Line, Key: addr.Key(), Reason: "entity not found in document"})
			continue
		}
		kind := fields.KindOf(v)
		if _, ok := im.reg.Lookup(kind, row.FieldName); !ok {
			rep.skip(rec, ReasonStale, &StaleReferenceError{Line: rec.Line, Key: addr.Key(), Reason: fmt.Sprintf("field not translatable on %s", kind)})
			continue
		}
		if _, ok := im.reg.Get(v, row.FieldName); !ok {
			rep.skip(rec, ReasonStale, &StaleReferenceError{Line: rec.Line, Key: addr.Key(), Reason: "field absent on entity"})
			continue
		}

		if !active[row.LanguageID] {
			reason := "not an active language"
			if row.LanguageID == overlay.OriginalLanguage {
				reason = "reserved for the original language"
			}
			rep.skip(rec, ReasonUnknownLanguage, &overlay.UnknownLanguageError{LanguageID: row.LanguageID, Reason: reason})
			continue
		}

		value := im.reg.Sanitize(kind, row.FieldName, row.TranslatedValue)
		if strings.TrimSpace(value) == "" {
			rep.Blank++
			continue
		}

		key := pendingKey{addr: addr.Key(), lang: row.LanguageID}
		if i, dup := slot[key]; dup {
			entries[i].Value = value
			rep.Superseded++
			continue
		}
		slot[key] = len(entries)
		entries = append(entries, overlay.Entry{Address: addr, LanguageID: row.LanguageID, Value: value})
	}

	changed, err := im.store.BulkUpsert(ctx, tree.Document.ID, entries)
	if err != nil {
		return nil, fmt.Errorf("exchange: apply %d rows: %w", len(entries), err)
	}
	rep.Applied = changed
	rep.Unchanged = len(entries) - changed
	return rep, nil
}
