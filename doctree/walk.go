package doctree

import (
	"iter"
	"sort"

	"github.com/hazyhaar/manualtr/address"
)

// Visit is one entity reached by Walk.
type Visit struct {
	EntityType string // address.Entity* constant
	Variant    string // module type for modules, empty otherwise
	ID         int64  // persistent id of the visited entity
	SectionID  int64  // owning section for modules and components
	Entity     any    // *Document, *Section, *Module or *Component
}

// Walk yields the document, then every section in document order, each
// followed by its modules in section order and its components ordered by
// (Position, ID). Each call is an independent full pass.
//
// The tree is validated before the first visit; a *StructureError is yielded
// once and iteration stops.
func Walk(snap *Snapshot) iter.Seq2[Visit, error] {
	return func(yield func(Visit, error) bool) {
		if err := Validate(snap); err != nil {
			yield(Visit{}, err)
			return
		}
		bySection := ComponentsBySection(snap)

		doc := &snap.Document
		if !yield(Visit{EntityType: address.EntityDocument, ID: doc.ID, Entity: doc}, nil) {
			return
		}
		for _, sid := range doc.Sections {
			sec := snap.Sections[sid]
			if !yield(Visit{EntityType: address.EntitySection, ID: sec.ID, SectionID: sec.ID, Entity: sec}, nil) {
				return
			}
			for _, mid := range sec.Modules {
				m := snap.Modules[mid]
				v := Visit{EntityType: address.EntityModule, Variant: string(m.Type), ID: m.ID, SectionID: sec.ID, Entity: m}
				if !yield(v, nil) {
					return
				}
			}
			for _, c := range bySection[sec.ID] {
				v := Visit{EntityType: address.EntityComponent, ID: c.ID, SectionID: sec.ID, Entity: c}
				if !yield(v, nil) {
					return
				}
			}
		}
	}
}

// ComponentsBySection groups BOM rows by section, each group ordered by
// (Position, ID).
func ComponentsBySection(snap *Snapshot) map[int64][]*Component {
	out := make(map[int64][]*Component)
	for _, c := range snap.Components {
		out[c.SectionID] = append(out[c.SectionID], c)
	}
	for _, rows := range out {
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Position != rows[j].Position {
				return rows[i].Position < rows[j].Position
			}
			return rows[i].ID < rows[j].ID
		})
	}
	return out
}

// Validate checks every cross reference of the snapshot.
func Validate(snap *Snapshot) error {
	if snap == nil {
		return structureErr(address.EntityDocument, 0, "nil snapshot")
	}
	doc := snap.Document
	listed := make(map[int64]bool, len(doc.Sections))
	for _, sid := range doc.Sections {
		if listed[sid] {
			return structureErr(address.EntitySection, sid, "listed twice by document %d", doc.ID)
		}
		listed[sid] = true
		sec, ok := snap.Sections[sid]
		if !ok {
			return structureErr(address.EntitySection, sid, "listed by document %d but missing", doc.ID)
		}
		if sec.DocumentID != doc.ID {
			return structureErr(address.EntitySection, sid, "belongs to document %d, not %d", sec.DocumentID, doc.ID)
		}
	}
	for _, id := range sortedKeys(snap.Sections) {
		if !listed[id] {
			return structureErr(address.EntitySection, id, "not listed by document %d", doc.ID)
		}
	}

	owner := make(map[int64]int64, len(snap.Modules))
	for _, sid := range doc.Sections {
		sec := snap.Sections[sid]
		for _, mid := range sec.Modules {
			m, ok := snap.Modules[mid]
			if !ok {
				return structureErr(address.EntityModule, mid, "listed by section %d but missing", sid)
			}
			if prev, dup := owner[mid]; dup {
				return structureErr(address.EntityModule, mid, "listed by sections %d and %d", prev, sid)
			}
			owner[mid] = sid
			if m.SectionID != sid {
				return structureErr(address.EntityModule, mid, "listed by section %d but belongs to section %d", sid, m.SectionID)
			}
			if err := checkContent(m); err != nil {
				return err
			}
		}
	}
	for _, id := range sortedKeys(snap.Modules) {
		m := snap.Modules[id]
		if _, ok := snap.Sections[m.SectionID]; !ok {
			return structureErr(address.EntityModule, id, "references missing section %d", m.SectionID)
		}
		if _, ok := owner[id]; !ok {
			return structureErr(address.EntityModule, id, "not listed by section %d", m.SectionID)
		}
	}
	for _, id := range sortedKeys(snap.Components) {
		c := snap.Components[id]
		if _, ok := snap.Sections[c.SectionID]; !ok {
			return structureErr(address.EntityComponent, id, "references missing section %d", c.SectionID)
		}
	}
	return nil
}

func checkContent(m *Module) error {
	if m.Content == nil {
		return structureErr(address.EntityModule, m.ID, "no content for type %q", m.Type)
	}
	if m.Content.ModuleType() != m.Type {
		return structureErr(address.EntityModule, m.ID, "content %q does not match type %q", m.Content.ModuleType(), m.Type)
	}
	switch m.Content.(type) {
	case *TextContent, *ImageContent, *VideoContent, *PDFContent, *TableContent, *FileContent:
		return nil
	}
	return structureErr(address.EntityModule, m.ID, "content of type %q is not a pointer payload", m.Type)
}
