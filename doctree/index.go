package doctree

import "github.com/hazyhaar/manualtr/address"

// Index resolves address identities against a snapshot.
type Index struct {
	snap *Snapshot
}

// NewIndex builds an Index over snap. snap must not be mutated afterwards.
func NewIndex(snap *Snapshot) *Index {
	return &Index{snap: snap}
}

// Resolve returns the live entity behind (entityType, entityID, subID). For
// components entityID is the section id and subID the component id; the
// component must still belong to that section.
func (x *Index) Resolve(entityType string, entityID, subID int64) (Visit, bool) {
	s := x.snap
	switch entityType {
	case address.EntityDocument:
		if entityID == s.Document.ID && subID == 0 {
			return Visit{EntityType: entityType, ID: entityID, Entity: &s.Document}, true
		}
	case address.EntitySection:
		if sec, ok := s.Sections[entityID]; ok && subID == 0 {
			return Visit{EntityType: entityType, ID: entityID, SectionID: entityID, Entity: sec}, true
		}
	case address.EntityModule:
		if m, ok := s.Modules[entityID]; ok && subID == 0 {
			return Visit{EntityType: entityType, Variant: string(m.Type), ID: entityID, SectionID: m.SectionID, Entity: m}, true
		}
	case address.EntityComponent:
		if c, ok := s.Components[subID]; ok && c.SectionID == entityID {
			return Visit{EntityType: entityType, ID: subID, SectionID: entityID, Entity: c}, true
		}
	}
	return Visit{}, false
}

// Clone returns a deep copy of snap.
func Clone(snap *Snapshot) *Snapshot {
	doc := snap.Document
	doc.Sections = append([]int64(nil), snap.Document.Sections...)
	out := NewSnapshot(doc)
	for id, sec := range snap.Sections {
		cp := *sec
		cp.Modules = append([]int64(nil), sec.Modules...)
		out.Sections[id] = &cp
	}
	for id, m := range snap.Modules {
		cp := *m
		cp.Content = cloneContent(m.Content)
		out.Modules[id] = &cp
	}
	for id, c := range snap.Components {
		cp := *c
		out.Components[id] = &cp
	}
	return out
}
