package overlay

import "github.com/hazyhaar/manualtr/address"

type valueKey struct {
	addr string
	lang int64
}

// Snapshot is a consistent, read-only view of one document's translations.
type Snapshot struct {
	DocumentID int64
	// Languages are the active overlay targets, ordered by id.
	Languages []Language
	values    map[valueKey]string
}

// NewSnapshot builds a snapshot from in-memory entries.
func NewSnapshot(docID int64, langs []Language, entries []Entry) *Snapshot {
	s := &Snapshot{DocumentID: docID, Languages: langs, values: make(map[valueKey]string, len(entries))}
	for _, e := range entries {
		s.values[valueKey{addr: e.Address.Key(), lang: e.LanguageID}] = e.Value
	}
	return s
}

// Lookup returns the stored translation of addr in lang.
func (s *Snapshot) Lookup(addr address.Address, lang int64) (string, bool) {
	v, ok := s.values[valueKey{addr: addr.Key(), lang: lang}]
	return v, ok
}

// Len is the number of stored translations in the snapshot.
func (s *Snapshot) Len() int { return len(s.values) }
