package exchange

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hazyhaar/manualtr/address"
	"github.com/hazyhaar/manualtr/doctree"
	"github.com/hazyhaar/manualtr/fields"
	"github.com/hazyhaar/manualtr/overlay"
)

// ExportStats summarizes one export.
type ExportStats struct {
	Fields     int `json:"fields"`
	Languages  int `json:"languages"`
	Rows       int `json:"rows"`
	Translated int `json:"translated"`
	Missing    int `json:"missing"`
}

// Encoder writes exchange files.
type Encoder struct {
	reg      *fields.Registry
	markdown *converter.Converter
}

// EncoderOption configures an Encoder.
type EncoderOption func(*Encoder)

// WithMarkdownPreview appends an originalMarkdown column holding text-module
// HTML rendered as Markdown. Other fields repeat the original value.
func WithMarkdownPreview() EncoderOption {
	return func(e *Encoder) {
		e.markdown = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
	}
}

// NewEncoder returns an Encoder over the fields declared in reg.
func NewEncoder(reg *fields.Registry, opts ...EncoderOption) *Encoder {
	e := &Encoder{reg: reg}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Rows builds the export rows of tree against ov without writing anything.
// A structure or addressing error aborts the export.
func (e *Encoder) Rows(tree *doctree.Snapshot, ov *overlay.Snapshot) ([]Row, []fields.Instance, error) {
	langs := slices.Clone(ov.Languages)
	slices.SortFunc(langs, func(a, b overlay.Language) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	var rows []Row
	var instances []fields.Instance
	for in, err := range e.reg.Surface(tree) {
		if err != nil {
			return nil, nil, err
		}
		instances = append(instances, in)
		for _, l := range langs {
			if !l.IsActive || l.ID == overlay.OriginalLanguage {
				continue
			}
			translated, _ := ov.Lookup(in.Address, l.ID)
			rows = append(rows, Row{
				EntityType:      in.Address.EntityType,
				EntityID:        in.Address.EntityID,
				FieldName:       in.Address.FieldName,
				SubID:           in.Address.SubID,
				LanguageID:      l.ID,
				OriginalValue:   in.Original,
				TranslatedValue: translated,
			})
		}
	}
	return rows, instances, nil
}

// Encode writes the full translation surface of tree as CSV: UTF-8 without
// BOM, "\n" line endings, standard quoting. Nothing is written when the tree
// is inconsistent.
func (e *Encoder) Encode(w io.Writer, tree *doctree.Snapshot, ov *overlay.Snapshot) (ExportStats, error) {
	rows, instances, err := e.Rows(tree, ov)
	if err != nil {
		return ExportStats{}, err
	}

	var preview map[string]string
	if e.markdown != nil {
		preview = make(map[string]string, len(instances))
		for _, in := range instances {
			preview[in.Address.Key()] = e.previewOf(in)
		}
	}

	cw := csv.NewWriter(w)
	header := Header
	if preview != nil {
		header = append(slices.Clone(Header), ColOriginalMarkdown)
	}
	if err := cw.Write(header); err != nil {
		return ExportStats{}, fmt.Errorf("exchange: write header: %w", err)
	}

	stats := ExportStats{Fields: len(instances), Languages: countActive(ov.Languages)}
	for _, r := range rows {
		rec := r.record()
		if preview != nil {
			rec = append(rec, preview[r.Address().Key()])
		}
		if err := cw.Write(rec); err != nil {
			return stats, fmt.Errorf("exchange: write row: %w", err)
		}
		stats.Rows++
		if r.TranslatedValue != "" {
			stats.Translated++
		} else {
			stats.Missing++
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return stats, fmt.Errorf("exchange: flush: %w", err)
	}
	return stats, nil
}

func (e *Encoder) previewOf(in fields.Instance) string {
	if in.Kind.Entity != address.EntityModule || in.Kind.Variant != string(doctree.TypeText) {
		return in.Original
	}
	md, err := e.markdown.ConvertString(in.Original)
	if err != nil {
		return in.Original
	}
	return md
}

func countActive(langs []overlay.Language) int {
	n := 0
	for _, l := range langs {
		if l.IsActive && l.ID != overlay.OriginalLanguage {
			n++
		}
	}
	return n
}
