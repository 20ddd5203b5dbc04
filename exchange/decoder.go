package exchange

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hazyhaar/manualtr/address"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Record is one decoded data line. Err is a *MalformedRowError when the
// identity columns could not be parsed; Row then holds whatever was readable.
type Record struct {
	Line int
	Row  Row
	Raw  RawIdentity
	Err  error
}

// RawIdentity keeps the identity cells as written in the file so skipped rows
// can be reported verbatim.
type RawIdentity struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	FieldName  string `json:"field_name"`
	SubID      string `json:"sub_id"`
	LanguageID string `json:"language_id"`
}

// Decode reads a whole exchange file. A leading UTF-8 BOM is ignored, extra
// or reordered columns are tolerated, and a header missing a required column
// yields a *MalformedFileError before any row is returned.
func Decode(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &MalformedFileError{Reason: "empty file"}
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, &MalformedFileError{Reason: "unreadable header: " + pe.Error()}
		}
		return nil, fmt.Errorf("exchange: read header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var out []Record
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, fmt.Errorf("exchange: read: %w", err)
			}
			out = append(out, Record{
				Line: pe.StartLine,
				Raw:  cols.raw(rec),
				Err:  &MalformedRowError{Line: pe.StartLine, Reason: pe.Err.Error()},
			})
			continue
		}
		line, _ := cr.FieldPos(0)
		out = append(out, cols.parse(line, rec))
	}
	return out, nil
}

var knownColumns = []string{
	ColEntityType, ColEntityID, ColFieldName, ColSubID,
	ColLanguageID, ColOriginalValue, ColTranslatedValue, ColOriginalMarkdown,
}

type columns map[string]int

func mapColumns(header []string) (columns, error) {
	cols := make(columns, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		for _, known := range knownColumns {
			if strings.EqualFold(h, known) {
				if _, dup := cols[known]; !dup {
					cols[known] = i
				}
			}
		}
	}
	var missing []string
	for _, c := range Required {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &MalformedFileError{Missing: missing}
	}
	return cols, nil
}

func (c columns) cell(rec []string, name string) (string, bool) {
	i, ok := c[name]
	if !ok || i >= len(rec) {
		return "", false
	}
	return rec[i], true
}

func (c columns) raw(rec []string) RawIdentity {
	get := func(name string) string {
		v, _ := c.cell(rec, name)
		return v
	}
	return RawIdentity{
		EntityType: get(ColEntityType),
		EntityID:   get(ColEntityID),
		FieldName:  get(ColFieldName),
		SubID:      get(ColSubID),
		LanguageID: get(ColLanguageID),
	}
}

var knownEntities = map[string]bool{
	address.EntityDocument:  true,
	address.EntitySection:   true,
	address.EntityModule:    true,
	address.EntityComponent: true,
}

func (c columns) parse(line int, rec []string) Record {
	out := Record{Line: line, Raw: c.raw(rec)}
	fail := func(col, format string, args ...any) Record {
		out.Err = &MalformedRowError{Line: line, Column: col, Reason: fmt.Sprintf(format, args...)}
		return out
	}
	for _, name := range Required {
		if _, ok := c.cell(rec, name); !ok {
			return fail(name, "missing cell")
		}
	}

	raw := out.Raw
	row := &out.Row
	row.EntityType = strings.TrimSpace(raw.EntityType)
	if !knownEntities[row.EntityType] {
		return fail(ColEntityType, "unknown entity type %q", raw.EntityType)
	}

	id, err := strconv.ParseInt(strings.TrimSpace(raw.EntityID), 10, 64)
	if err != nil || id <= 0 {
		return fail(ColEntityID, "not a positive integer: %q", raw.EntityID)
	}
	row.EntityID = id

	row.FieldName = strings.TrimSpace(raw.FieldName)
	if row.FieldName == "" {
		return fail(ColFieldName, "empty")
	}

	if s := strings.TrimSpace(raw.SubID); s != "" {
		sub, err := strconv.ParseInt(s, 10, 64)
		if err != nil || sub <= 0 {
			return fail(ColSubID, "not a positive integer: %q", raw.SubID)
		}
		row.SubID = sub
	}
	if err := row.Address().Validate(); err != nil {
		return fail("", "%v", err)
	}

	lang, err := strconv.ParseInt(strings.TrimSpace(raw.LanguageID), 10, 64)
	if err != nil {
		return fail(ColLanguageID, "not an integer: %q", raw.LanguageID)
	}
	row.LanguageID = lang

	row.OriginalValue, _ = c.cell(rec, ColOriginalValue)
	row.TranslatedValue, _ = c.cell(rec, ColTranslatedValue)
	return out
}
