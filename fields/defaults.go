package fields

import (
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"github.com/hazyhaar/manualtr/address"
	"github.com/hazyhaar/manualtr/doctree"
)

// Field names used by the default registry.
const (
	FieldTitle       = "title"
	FieldText        = "text"
	FieldCaption     = "caption"
	FieldLabel       = "label"
	FieldDescription = "description"
)

// NormalizeText returns s with LF line breaks, in Unicode NFC, so that
// visually identical values compare equal in the overlay. CSV readers fold
// CRLF to LF, so a stored CRLF would never survive a round trip.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.ReplaceAll(s, "\r\n", "\n"))
}

// HTMLSanitizer returns a sanitizer that strips unsafe markup with the
// bluemonday UGC policy, then normalizes.
func HTMLSanitizer() func(string) string {
	p := bluemonday.UGCPolicy()
	return func(s string) string {
		return NormalizeText(p.Sanitize(s))
	}
}

// Default returns a registry declaring the translatable fields of every
// built-in entity kind.
func Default() *Registry {
	r := NewRegistry()
	html := HTMLSanitizer()

	mustRegister(r, Kind{Entity: address.EntityDocument}, Owner{Fields: []Field{{
		Name:     FieldTitle,
		Get:      func(e any) (string, bool) { return e.(*doctree.Document).Title, true },
		Set:      func(e any, v string) error { e.(*doctree.Document).Title = v; return nil },
		Sanitize: NormalizeText,
	}}})
	mustRegister(r, Kind{Entity: address.EntitySection}, Owner{Fields: []Field{{
		Name:     FieldTitle,
		Get:      func(e any) (string, bool) { return e.(*doctree.Section).Title, true },
		Set:      func(e any, v string) error { e.(*doctree.Section).Title = v; return nil },
		Sanitize: NormalizeText,
	}}})
	mustRegister(r, Kind{Entity: address.EntityComponent}, Owner{Fields: []Field{{
		Name:     FieldDescription,
		Get:      func(e any) (string, bool) { return e.(*doctree.Component).Description, true },
		Set:      func(e any, v string) error { e.(*doctree.Component).Description = v; return nil },
		Sanitize: NormalizeText,
	}}})

	mustRegister(r, moduleKind(doctree.TypeText), Owner{Fields: []Field{{
		Name: FieldText,
		Get: func(e any) (string, bool) {
			c, ok := moduleContent(e).(*doctree.TextContent)
			if !ok {
				return "", false
			}
			return c.Text, true
		},
		Set: func(e any, v string) error {
			c, ok := moduleContent(e).(*doctree.TextContent)
			if !ok {
				return fmt.Errorf("fields: module is not text")
			}
			c.Text = v
			return nil
		},
		Sanitize: html,
	}}})

	for _, t := range []doctree.ModuleType{doctree.TypeImage, doctree.TypeVideo, doctree.TypePDF, doctree.TypeTable} {
		mustRegister(r, moduleKind(t), Owner{Fields: []Field{optionalField(FieldCaption, captionSlot)}})
	}
	mustRegister(r, moduleKind(doctree.TypeFile), Owner{Fields: []Field{optionalField(FieldLabel, labelSlot)}})
	return r
}

func mustRegister(r *Registry, k Kind, o Owner) {
	if err := r.Register(k, o); err != nil {
		panic(err)
	}
}

func moduleKind(t doctree.ModuleType) Kind {
	return Kind{Entity: address.EntityModule, Variant: string(t)}
}

func moduleContent(e any) doctree.Content {
	m, ok := e.(*doctree.Module)
	if !ok {
		return nil
	}
	return m.Content
}

// optionalField builds a field stored in an optional *string slot of a
// module payload.
func optionalField(name string, slot func(doctree.Content) **string) Field {
	return Field{
		Name: name,
		Get: func(e any) (string, bool) {
			p := slot(moduleContent(e))
			if p == nil || *p == nil {
				return "", false
			}
			return **p, true
		},
		Set: func(e any, v string) error {
			p := slot(moduleContent(e))
			if p == nil {
				return fmt.Errorf("fields: module has no %s", name)
			}
			*p = &v
			return nil
		},
		Sanitize: NormalizeText,
	}
}

func captionSlot(c doctree.Content) **string {
	switch v := c.(type) {
	case *doctree.ImageContent:
		return &v.Caption
	case *doctree.VideoContent:
		return &v.Caption
	case *doctree.PDFContent:
		return &v.Caption
	case *doctree.TableContent:
		return &v.Caption
	}
	return nil
}

func labelSlot(c doctree.Content) **string {
	if v, ok := c.(*doctree.FileContent); ok {
		return &v.Label
	}
	return nil
}
