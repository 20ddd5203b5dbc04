package doctree

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// wireSnapshot is the flat JSON form of a Snapshot. Order inside the arrays
// is irrelevant: the document and section id lists carry the order.
type wireSnapshot struct {
	Document   Document     `json:"document"`
	Sections   []*Section   `json:"sections"`
	Modules    []*Module    `json:"modules"`
	Components []*Component `json:"components"`
}

// MarshalJSON emits sections, modules and components sorted by id.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	w := wireSnapshot{Document: s.Document}
	for _, id := range sortedKeys(s.Sections) {
		w.Sections = append(w.Sections, s.Sections[id])
	}
	for _, id := range sortedKeys(s.Modules) {
		w.Modules = append(w.Modules, s.Modules[id])
	}
	for _, id := range sortedKeys(s.Components) {
		w.Components = append(w.Components, s.Components[id])
	}
	return json.Marshal(w)
}

// UnmarshalJSON rebuilds the id maps. Duplicate ids are rejected.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := NewSnapshot(w.Document)
	for _, sec := range w.Sections {
		if sec == nil {
			return errors.New("doctree: null section entry")
		}
		if _, dup := out.Sections[sec.ID]; dup {
			return fmt.Errorf("doctree: duplicate section id %d", sec.ID)
		}
		if sec.DocumentID == 0 {
			sec.DocumentID = w.Document.ID
		}
		out.Sections[sec.ID] = sec
	}
	for _, m := range w.Modules {
		if m == nil {
			return errors.New("doctree: null module entry")
		}
		if _, dup := out.Modules[m.ID]; dup {
			return fmt.Errorf("doctree: duplicate module id %d", m.ID)
		}
		out.Modules[m.ID] = m
	}
	for _, c := range w.Components {
		if c == nil {
			return errors.New("doctree: null component entry")
		}
		if _, dup := out.Components[c.ID]; dup {
			return fmt.Errorf("doctree: duplicate component id %d", c.ID)
		}
		out.Components[c.ID] = c
	}
	*s = *out
	return nil
}

// ReadJSON decodes a snapshot from r.
func ReadJSON(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("doctree: read json: %w", err)
	}
	return &s, nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
