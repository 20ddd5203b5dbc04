// Package exchange moves translations in and out of the overlay as CSV.
//
// Export writes one row per (translatable field, active language) in
// depth-first document order. Import validates every row against the current
// tree and the language catalog, skips and reports what does not fit, and
// writes the rest in one atomic batch.
package exchange

import (
	"strconv"

	"github.com/hazyhaar/manualtr/address"
)

// Column names of the exchange file.
const (
	ColEntityType       = "entityType"
	ColEntityID         = "entityId"
	ColFieldName        = "fieldName"
	ColSubID            = "subId"
	ColLanguageID       = "languageId"
	ColOriginalValue    = "originalValue"
	ColTranslatedValue  = "translatedValue"
	ColOriginalMarkdown = "originalMarkdown"
)

// Header is the fixed column order of an export.
//
// The identity columns (entityType, entityId, fieldName, subId) and languageId
// must not be edited by translators: import resolves every row through them
// and rejects rows that no longer match the document. Only translatedValue is
// meant to be filled in.
var Header = []string{
	ColEntityType, ColEntityID, ColFieldName, ColSubID,
	ColLanguageID, ColOriginalValue, ColTranslatedValue,
}

// Required lists the columns an import cannot do without. originalValue is
// informational and may be dropped.
var Required = []string{
	ColEntityType, ColEntityID, ColFieldName, ColSubID,
	ColLanguageID, ColTranslatedValue,
}

// Row is one line of an exchange file.
type Row struct {
	EntityType      string `json:"entity_type"`
	EntityID        int64  `json:"entity_id"`
	FieldName       string `json:"field_name"`
	SubID           int64  `json:"sub_id,omitempty"`
	LanguageID      int64  `json:"language_id"`
	OriginalValue   string `json:"original_value"`
	TranslatedValue string `json:"translated_value"`
}

// Address returns the row's field address.
func (r Row) Address() address.Address {
	return address.Address{EntityType: r.EntityType, EntityID: r.EntityID, FieldName: r.FieldName, SubID: r.SubID}
}

func (r Row) record() []string {
	sub := ""
	if r.SubID != 0 {
		sub = strconv.FormatInt(r.SubID, 10)
	}
	return []string{
		r.EntityType,
		strconv.FormatInt(r.EntityID, 10),
		r.FieldName,
		sub,
		strconv.FormatInt(r.LanguageID, 10),
		r.OriginalValue,
		r.TranslatedValue,
	}
}
