// Package doctree models a manual as a read-only tree: a document listing
// ordered sections, each listing ordered content modules and carrying the
// bill-of-materials component rows attached to it.
//
// The tree is owned by the document editor. This package only reads it,
// validates its shape and walks it in persisted order.
package doctree

import (
	"errors"
	"fmt"
)

// Document is the root of a manual.
type Document struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Sections []int64 `json:"sections"`
}

// Section is a titled block of modules. Level is the nesting depth (1 = chapter).
type Section struct {
	ID         int64   `json:"id"`
	DocumentID int64   `json:"document_id"`
	Title      string  `json:"title"`
	Level      int     `json:"level"`
	Modules    []int64 `json:"modules"`
}

// Module is one content block inside a section. Content always matches Type.
type Module struct {
	ID        int64      `json:"id"`
	SectionID int64      `json:"section_id"`
	Type      ModuleType `json:"type"`
	Content   Content    `json:"content"`
}

// Component is one physical part row of a BOM table attached to a section.
type Component struct {
	ID          int64   `json:"id"`
	SectionID   int64   `json:"section_id"`
	Position    int     `json:"position"`
	Level       int     `json:"level"`
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
}

// Snapshot is a normalized, point-in-time view of one document.
type Snapshot struct {
	Document   Document             `json:"document"`
	Sections   map[int64]*Section   `json:"-"`
	Modules    map[int64]*Module    `json:"-"`
	Components map[int64]*Component `json:"-"`
}

// NewSnapshot returns an empty snapshot for doc with initialized maps.
func NewSnapshot(doc Document) *Snapshot {
	return &Snapshot{
		Document:   doc,
		Sections:   make(map[int64]*Section),
		Modules:    make(map[int64]*Module),
		Components: make(map[int64]*Component),
	}
}

// AddSection appends s to the document order and registers it.
func (s *Snapshot) AddSection(sec *Section) {
	sec.DocumentID = s.Document.ID
	s.Sections[sec.ID] = sec
	s.Document.Sections = append(s.Document.Sections, sec.ID)
}

// AddModule appends m to its section's order and registers it. The section
// must already be present.
func (s *Snapshot) AddModule(m *Module) {
	s.Modules[m.ID] = m
	if sec, ok := s.Sections[m.SectionID]; ok {
		sec.Modules = append(sec.Modules, m.ID)
	}
}

// AddComponent registers a BOM row.
func (s *Snapshot) AddComponent(c *Component) {
	s.Components[c.ID] = c
}

// ErrStructure is matched by every *StructureError.
var ErrStructure = errors.New("doctree: structure error")

// StructureError reports an inconsistency in the tree: a dangling reference
// or an entity attached to the wrong parent.
type StructureError struct {
	EntityType string
	EntityID   int64
	Reason     string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("doctree: %s %d: %s", e.EntityType, e.EntityID, e.Reason)
}

// Unwrap lets errors.Is match ErrStructure.
func (e *StructureError) Unwrap() error { return ErrStructure }

func structureErr(entityType string, id int64, format string, args ...any) error {
	return &StructureError{EntityType: entityType, EntityID: id, Reason: fmt.Sprintf(format, args...)}
}
