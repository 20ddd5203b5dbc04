package doctree

import (
	"encoding/json"
	"fmt"
)

// ModuleType tags the content union of a Module.
type ModuleType string

const (
	TypeText  ModuleType = "text"
	TypeImage ModuleType = "image"
	TypeVideo ModuleType = "video"
	TypePDF   ModuleType = "pdf"
	TypeTable ModuleType = "table"
	TypeFile  ModuleType = "file"
)

// ModuleTypes lists every known tag in a fixed order.
var ModuleTypes = []ModuleType{TypeText, TypeImage, TypeVideo, TypePDF, TypeTable, TypeFile}

// Content is the type-specific payload of a Module.
type Content interface {
	ModuleType() ModuleType
}

// TextContent holds rich text as HTML produced by the editor.
type TextContent struct {
	Text string `json:"text"`
}

// ImageContent references an uploaded image.
type ImageContent struct {
	Src     string  `json:"src,omitempty"`
	Caption *string `json:"caption,omitempty"`
}

// VideoContent references an uploaded or embedded video.
type VideoContent struct {
	Src     string  `json:"src,omitempty"`
	Caption *string `json:"caption,omitempty"`
}

// PDFContent references an attached PDF.
type PDFContent struct {
	Src     string  `json:"src,omitempty"`
	Caption *string `json:"caption,omitempty"`
}

// TableContent holds a cell grid. Cells are data, not prose, and are not
// translated.
type TableContent struct {
	Rows    [][]string `json:"rows,omitempty"`
	Caption *string    `json:"caption,omitempty"`
}

// FileContent references a downloadable attachment.
type FileContent struct {
	Src   string  `json:"src,omitempty"`
	Label *string `json:"label,omitempty"`
}

func (TextContent) ModuleType() ModuleType  { return TypeText }
func (ImageContent) ModuleType() ModuleType { return TypeImage }
func (VideoContent) ModuleType() ModuleType { return TypeVideo }
func (PDFContent) ModuleType() ModuleType   { return TypePDF }
func (TableContent) ModuleType() ModuleType { return TypeTable }
func (FileContent) ModuleType() ModuleType  { return TypeFile }

// NewContent returns an empty pointer payload for t.
func NewContent(t ModuleType) (Content, error) {
	switch t {
	case TypeText:
		return &TextContent{}, nil
	case TypeImage:
		return &ImageContent{}, nil
	case TypeVideo:
		return &VideoContent{}, nil
	case TypePDF:
		return &PDFContent{}, nil
	case TypeTable:
		return &TableContent{}, nil
	case TypeFile:
		return &FileContent{}, nil
	}
	return nil, fmt.Errorf("doctree: unknown module type %q", t)
}

// DecodeContent parses a raw JSON payload according to its type tag.
func DecodeContent(t ModuleType, raw []byte) (Content, error) {
	c, err := NewContent(t)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return c, nil
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("doctree: decode %s content: %w", t, err)
	}
	return c, nil
}

// UnmarshalJSON decodes content by the module's "type" tag.
func (m *Module) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        int64           `json:"id"`
		SectionID int64           `json:"section_id"`
		Type      ModuleType      `json:"type"`
		Content   json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c, err := DecodeContent(raw.Type, raw.Content)
	if err != nil {
		return fmt.Errorf("module %d: %w", raw.ID, err)
	}
	*m = Module{ID: raw.ID, SectionID: raw.SectionID, Type: raw.Type, Content: c}
	return nil
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string { return &s }

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneContent(c Content) Content {
	switch v := c.(type) {
	case *TextContent:
		cp := *v
		return &cp
	case *ImageContent:
		cp := *v
		cp.Caption = cloneStr(v.Caption)
		return &cp
	case *VideoContent:
		cp := *v
		cp.Caption = cloneStr(v.Caption)
		return &cp
	case *PDFContent:
		cp := *v
		cp.Caption = cloneStr(v.Caption)
		return &cp
	case *TableContent:
		cp := *v
		cp.Caption = cloneStr(v.Caption)
		cp.Rows = make([][]string, len(v.Rows))
		for i, row := range v.Rows {
			cp.Rows[i] = append([]string(nil), row...)
		}
		return &cp
	case *FileContent:
		cp := *v
		cp.Label = cloneStr(v.Label)
		return &cp
	}
	return c
}
