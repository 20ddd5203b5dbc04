package exchange

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/manualtr/address"
	"github.com/hazyhaar/manualtr/dbopen"
	"github.com/hazyhaar/manualtr/doctree"
	"github.com/hazyhaar/manualtr/fields"
	"github.com/hazyhaar/manualtr/overlay"
)

type harness struct {
	t     *testing.T
	store *overlay.Store
	reg   *fields.Registry
	tree  *doctree.Snapshot
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(overlay.SchemaSQLite))
	store := overlay.New(db, dbopen.SQLite)
	if err := store.PutLanguage(context.Background(), overlay.Language{ID: 2, Name: "French", IsActive: true}); err != nil {
		t.Fatal(err)
	}
	return &harness{t: t, store: store, reg: fields.Default(), tree: manual()}
}

// manual: one image module (7, caption "Intro") and a BOM section (16) with
// components 101, 102, 103.
func manual() *doctree.Snapshot {
	s := doctree.NewSnapshot(doctree.Document{ID: 1, Title: "Manual"})
	s.AddSection(&doctree.Section{ID: 10, Title: "Introduction", Level: 1})
	s.AddSection(&doctree.Section{ID: 16, Title: "Parts", Level: 1})
	s.AddModule(&doctree.Module{ID: 7, SectionID: 10, Type: doctree.TypeImage, Content: &doctree.ImageContent{Caption: doctree.StrPtr("Intro")}})
	s.AddComponent(&doctree.Component{ID: 101, SectionID: 16, Position: 1, Code: "P-1", Description: "Housing", Quantity: 1})
	s.AddComponent(&doctree.Component{ID: 102, SectionID: 16, Position: 2, Code: "P-2", Description: "Impeller", Quantity: 1})
	s.AddComponent(&doctree.Component{ID: 103, SectionID: 16, Position: 3, Code: "P-3", Description: "Seal, lip", Quantity: 2})
	return s
}

func (h *harness) export(opts ...EncoderOption) string {
	h.t.Helper()
	ov, err := h.store.Snapshot(context.Background(), h.tree.Document.ID)
	if err != nil {
		h.t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := NewEncoder(h.reg, opts...).Encode(&buf, h.tree, ov); err != nil {
		h.t.Fatal(err)
	}
	return buf.String()
}

func (h *harness) importCSV(csv string) *Report {
	h.t.Helper()
	rep, err := NewImporter(h.reg, h.store).Import(context.Background(), strings.NewReader(csv), h.tree)
	if err != nil {
		h.t.Fatalf("Import: %v", err)
	}
	return rep
}

func (h *harness) get(addr address.Address, lang int64) (string, bool) {
	h.t.Helper()
	v, ok, err := h.store.Get(context.Background(), addr, lang)
	if err != nil {
		h.t.Fatal(err)
	}
	return v, ok
}

func (h *harness) rowCount() int {
	h.t.Helper()
	var n int
	if err := h.store.DB.Get(&n, `SELECT COUNT(*) FROM translations`); err != nil {
		h.t.Fatal(err)
	}
	return n
}

const header = "entityType,entityId,fieldName,subId,languageId,originalValue,translatedValue\n"

func TestExport_FullSurface(t *testing.T) {
	h := newHarness(t)
	want := header +
		"document,1,title,,2,Manual,\n" +
		"section,10,title,,2,Introduction,\n" +
		"module,7,caption,,2,Intro,\n" +
		"section,16,title,,2,Parts,\n" +
		"component,16,description,101,2,Housing,\n" +
		"component,16,description,102,2,Impeller,\n" +
		"component,16,description,103,2,\"Seal, lip\",\n"
	if got := h.export(); got != want {
		t.Fatalf("export:\n%s\nwant:\n%s", got, want)
	}
}

func TestExport_Stable(t *testing.T) {
	h := newHarness(t)
	h.store.Upsert(context.Background(), 1, address.Address{EntityType: "module", EntityID: 7, FieldName: "caption"}, 2, "Présentation")
	first := h.export()
	second := h.export()
	if first != second {
		t.Fatalf("exports differ:\n%s\n---\n%s", first, second)
	}
}

func TestExport_LanguageOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.PutLanguage(ctx, overlay.Language{ID: 5, Name: "Spanish", IsActive: true})
	h.store.PutLanguage(ctx, overlay.Language{ID: 3, Name: "German", IsActive: true})
	h.store.PutLanguage(ctx, overlay.Language{ID: 4, Name: "Italian", IsActive: false})

	lines := strings.Split(h.export(), "\n")
	// Header, then document title in languages 2, 3, 5.
	for i, want := range []string{"document,1,title,,2,", "document,1,title,,3,", "document,1,title,,5,"} {
		if !strings.HasPrefix(lines[i+1], want) {
			t.Fatalf("line %d = %q, want prefix %q", i+1, lines[i+1], want)
		}
	}
	if strings.Contains(h.export(), ",4,") {
		t.Fatal("inactive language exported")
	}
}

func TestImageCaptionScenario(t *testing.T) {
	h := newHarness(t)
	captionAddr := address.Address{EntityType: "module", EntityID: 7, FieldName: "caption"}

	if !strings.Contains(h.export(), "\nmodule,7,caption,,2,Intro,\n") {
		t.Fatal("missing untranslated caption row")
	}

	rep := h.importCSV(header + "module,7,caption,,2,Intro,Présentation\n")
	if rep.Applied != 1 || rep.SkippedCount() != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if v, ok := h.get(captionAddr, 2); !ok || v != "Présentation" {
		t.Fatalf("get = %q, %v", v, ok)
	}
	if !strings.Contains(h.export(), "\nmodule,7,caption,,2,Intro,Présentation\n") {
		t.Fatal("re-export does not carry the translation")
	}
}

func TestBOMComponentScenario(t *testing.T) {
	h := newHarness(t)
	out := h.export()
	for _, sub := range []string{"101", "102", "103"} {
		if !strings.Contains(out, "\ncomponent,16,description,"+sub+",2,") {
			t.Fatalf("missing component row %s", sub)
		}
	}

	delete(h.tree.Components, 102)
	rep := h.importCSV(header +
		"component,16,description,101,2,Housing,Gehäuse\n" +
		"component,16,description,102,2,Impeller,Laufrad\n" +
		"component,16,description,103,2,\"Seal, lip\",Dichtung\n")

	if rep.Applied != 2 || rep.SkippedStale != 1 || rep.SkippedCount() != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if !errors.Is(rep.Skipped[0].Err, ErrStaleReference) || rep.Skipped[0].SubID != "102" || rep.Skipped[0].Line != 3 {
		t.Fatalf("skipped = %+v", rep.Skipped[0])
	}
	if _, ok := h.get(address.Address{EntityType: "component", EntityID: 16, FieldName: "description", SubID: 102}, 2); ok {
		t.Fatal("stale component row was written")
	}
	if v, _ := h.get(address.Address{EntityType: "component", EntityID: 16, FieldName: "description", SubID: 103}, 2); v != "Dichtung" {
		t.Fatalf("component 103 = %q", v)
	}
}

func TestExportImport_NoEditsIsNoop(t *testing.T) {
	h := newHarness(t)
	h.importCSV(header +
		"module,7,caption,,2,Intro,Présentation\n" +
		"section,10,title,,2,Introduction,Introduction FR\n")
	before := h.rowCount()

	rep := h.importCSV(h.export())
	if rep.Applied != 0 {
		t.Fatalf("applied = %d, want 0", rep.Applied)
	}
	if rep.Unchanged != 2 || rep.Blank != 5 || rep.SkippedCount() != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if h.rowCount() != before {
		t.Fatalf("rows %d -> %d", before, h.rowCount())
	}
}

func TestExportImport_CRLFValueIsNoop(t *testing.T) {
	h := newHarness(t)
	rec := Record{Line: 2, Row: Row{
		EntityType: "module", EntityID: 7, FieldName: "caption", LanguageID: 2,
		TranslatedValue: "Ligne 1\r\nLigne 2",
	}}
	if _, err := NewImporter(h.reg, h.store).Apply(context.Background(), []Record{rec}, h.tree); err != nil {
		t.Fatal(err)
	}
	captionAddr := address.Address{EntityType: "module", EntityID: 7, FieldName: "caption"}
	if v, _ := h.get(captionAddr, 2); v != "Ligne 1\nLigne 2" {
		t.Fatalf("stored %q", v)
	}

	rep := h.importCSV(h.export())
	if rep.Applied != 0 || rep.Unchanged != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestReorderSiblings_KeepsTranslations(t *testing.T) {
	h := newHarness(t)
	h.tree.AddModule(&doctree.Module{ID: 8, SectionID: 10, Type: doctree.TypeVideo, Content: &doctree.VideoContent{Caption: doctree.StrPtr("Demo")}})
	h.importCSV(header +
		"module,7,caption,,2,Intro,Présentation\n" +
		"module,8,caption,,2,Demo,Démo\n" +
		"component,16,description,101,2,Housing,Carter\n")

	h.tree.Document.Sections = []int64{16, 10}
	h.tree.Sections[10].Modules = []int64{8, 7}
	h.tree.Components[101].Position = 9

	out := h.export()
	for _, line := range []string{
		"module,7,caption,,2,Intro,Présentation",
		"module,8,caption,,2,Demo,Démo",
		"component,16,description,101,2,Housing,Carter",
	} {
		if !strings.Contains(out, "\n"+line+"\n") {
			t.Fatalf("missing %q after reorder:\n%s", line, out)
		}
	}
	if strings.Index(out, "module,8,") > strings.Index(out, "module,7,") {
		t.Fatal("export does not follow the new module order")
	}
}

func TestImport_StaleModule(t *testing.T) {
	h := newHarness(t)
	rep := h.importCSV(header + "module,99,caption,,2,Gone,Parti\n")
	if rep.SkippedStale != 1 || rep.Applied != 0 {
		t.Fatalf("report = %+v", rep)
	}
	var se *StaleReferenceError
	if !errors.As(rep.Skipped[0].Err, &se) {
		t.Fatalf("want *StaleReferenceError, got %v", rep.Skipped[0].Err)
	}
	if n := h.rowCount(); n != 0 {
		t.Fatalf("rows = %d, want 0", n)
	}
}

func TestImport_StaleField(t *testing.T) {
	h := newHarness(t)
	// Module 7 turned from image into text: its caption row is stale.
	h.tree.Modules[7].Type = doctree.TypeText
	h.tree.Modules[7].Content = &doctree.TextContent{Text: "<p>Intro</p>"}

	rep := h.importCSV(header +
		"module,7,caption,,2,Intro,Présentation\n" +
		"section,10,label,,2,x,y\n")
	if rep.SkippedStale != 2 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestImport_EmptyOriginalIsStale(t *testing.T) {
	h := newHarness(t)
	h.tree.Sections[16].Title = ""
	if strings.Contains(h.export(), "section,16,title") {
		t.Fatal("empty title exported")
	}

	rep := h.importCSV(header + "section,16,title,,2,,Pièces\n")
	if rep.SkippedStale != 1 || rep.Applied != 0 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestImport_MalformedFile(t *testing.T) {
	h := newHarness(t)
	cases := map[string]string{
		"missing columns": "entityType,entityId,fieldName,languageId\nmodule,7,caption,2\n",
		"empty":           "",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewImporter(h.reg, h.store).Import(context.Background(), strings.NewReader(in), h.tree)
			var mf *MalformedFileError
			if !errors.As(err, &mf) {
				t.Fatalf("want *MalformedFileError, got %v", err)
			}
		})
	}
	_, err := Decode(strings.NewReader("entityType,entityId\n"))
	var mf *MalformedFileError
	if !errors.As(err, &mf) || len(mf.Missing) != 4 {
		t.Fatalf("missing = %+v", mf)
	}
	if n := h.rowCount(); n != 0 {
		t.Fatalf("rows = %d, want 0", n)
	}
}

func TestImport_MalformedRowsAreSkipped(t *testing.T) {
	h := newHarness(t)
	rep := h.importCSV(header +
		"chapter,7,caption,,2,Intro,x\n" +
		"module,abc,caption,,2,Intro,x\n" +
		"module,7,,,2,Intro,x\n" +
		"component,16,description,,2,Housing,x\n" +
		"module,7,caption,,fr,Intro,x\n" +
		"module,7\n" +
		"module,7,caption,,2,Intro,Présentation\n")
	if rep.SkippedMalformed != 6 || rep.Applied != 1 || rep.Rows != 7 {
		t.Fatalf("report = %+v", rep)
	}
	for _, s := range rep.Skipped {
		if !errors.Is(s.Err, ErrMalformedRow) || s.Reason != ReasonMalformed {
			t.Fatalf("skipped = %+v", s)
		}
	}
	if rep.Skipped[1].Line != 3 || rep.Skipped[1].EntityID != "abc" {
		t.Fatalf("second skipped = %+v", rep.Skipped[1])
	}
}

func TestImport_UnknownLanguage(t *testing.T) {
	h := newHarness(t)
	h.store.PutLanguage(context.Background(), overlay.Language{ID: 4, Name: "Italian", IsActive: false})

	rep := h.importCSV(header +
		"module,7,caption,,0,Intro,Intro bis\n" +
		"module,7,caption,,4,Intro,Introduzione\n" +
		"module,7,caption,,99,Intro,???\n" +
		"module,7,caption,,2,Intro,Présentation\n")
	if rep.SkippedUnknownLanguage != 3 || rep.Applied != 1 {
		t.Fatalf("report = %+v", rep)
	}
	for _, s := range rep.Skipped {
		if !errors.Is(s.Err, overlay.ErrUnknownLanguage) {
			t.Fatalf("skipped = %+v", s)
		}
	}
}

func TestImport_CheckOrder(t *testing.T) {
	h := newHarness(t)
	// Stale and unknown language at once: reported as stale.
	rep := h.importCSV(header + "module,99,caption,,42,x,y\n")
	if rep.SkippedStale != 1 || rep.SkippedUnknownLanguage != 0 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestImport_BlankNeverDeletes(t *testing.T) {
	h := newHarness(t)
	h.importCSV(header + "module,7,caption,,2,Intro,Présentation\n")

	rep := h.importCSV(header + "module,7,caption,,2,Intro,   \n")
	if rep.Blank != 1 || rep.Applied != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if v, _ := h.get(address.Address{EntityType: "module", EntityID: 7, FieldName: "caption"}, 2); v != "Présentation" {
		t.Fatalf("translation cleared: %q", v)
	}

	// A file without a row for the caption leaves it alone too.
	h.importCSV(header + "section,10,title,,2,Introduction,Intro FR\n")
	if v, _ := h.get(address.Address{EntityType: "module", EntityID: 7, FieldName: "caption"}, 2); v != "Présentation" {
		t.Fatalf("translation cleared by absence: %q", v)
	}
}

func TestImport_DuplicateRowsLastWins(t *testing.T) {
	h := newHarness(t)
	rep := h.importCSV(header +
		"module,7,caption,,2,Intro,Premier\n" +
		"module,7,caption,,2,Intro,Second\n")
	if rep.Applied != 1 || rep.Superseded != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if v, _ := h.get(address.Address{EntityType: "module", EntityID: 7, FieldName: "caption"}, 2); v != "Second" {
		t.Fatalf("value = %q, want Second", v)
	}
}

func TestImport_TolerantHeader(t *testing.T) {
	h := newHarness(t)
	in := "\xEF\xBB\xBFtranslatedValue,notes,languageId,subId,fieldName,entityId,entityType\n" +
		"Présentation,check wording,2,,caption,7,module\n"
	rep := h.importCSV(in)
	if rep.Applied != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestImport_SanitizesTextHTML(t *testing.T) {
	h := newHarness(t)
	h.tree.AddModule(&doctree.Module{ID: 9, SectionID: 10, Type: doctree.TypeText, Content: &doctree.TextContent{Text: "<p>Hello</p>"}})

	h.importCSV(header + `module,9,text,,2,<p>Hello</p>,"<p>Bonjour<script>alert(1)</script></p>"` + "\n")
	v, ok := h.get(address.Address{EntityType: "module", EntityID: 9, FieldName: "text"}, 2)
	if !ok || strings.Contains(v, "script") || !strings.Contains(v, "Bonjour") {
		t.Fatalf("stored = %q", v)
	}
}

func TestExport_QuotingRoundTrip(t *testing.T) {
	h := newHarness(t)
	value := "Ligne 1\nLigne 2, avec \"guillemets\""
	h.store.Upsert(context.Background(), 1, address.Address{EntityType: "module", EntityID: 7, FieldName: "caption"}, 2, value)

	records, err := Decode(strings.NewReader(h.export()))
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, r := range records {
		if r.Err != nil {
			t.Fatalf("line %d: %v", r.Line, r.Err)
		}
		if r.Row.EntityType == "module" && r.Row.TranslatedValue == value {
			found = true
		}
	}
	if !found {
		t.Fatal("multi-line value did not survive the round trip")
	}
}

func TestExport_MarkdownPreview(t *testing.T) {
	h := newHarness(t)
	h.tree.AddModule(&doctree.Module{ID: 9, SectionID: 10, Type: doctree.TypeText, Content: &doctree.TextContent{Text: "<p>Turn <strong>off</strong> power</p>"}})

	out := h.export(WithMarkdownPreview())
	if !strings.HasPrefix(out, strings.TrimSuffix(header, "\n")+",originalMarkdown\n") {
		t.Fatalf("header = %q", strings.SplitN(out, "\n", 2)[0])
	}
	if !strings.Contains(out, "Turn **off** power") {
		t.Fatalf("markdown preview missing:\n%s", out)
	}
	if !strings.Contains(out, "\nmodule,7,caption,,2,Intro,,Intro\n") {
		t.Fatalf("non-text field should repeat its original:\n%s", out)
	}

	// The preview column is ignored on the way back in.
	rep := h.importCSV(out)
	if rep.SkippedCount() != 0 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestExport_StructureErrorWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.tree.Components[200] = &doctree.Component{ID: 200, SectionID: 77}
	ov, _ := h.store.Snapshot(context.Background(), 1)

	var buf bytes.Buffer
	_, err := NewEncoder(h.reg).Encode(&buf, h.tree, ov)
	if !errors.Is(err, doctree.ErrStructure) {
		t.Fatalf("want structure error, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("wrote %d bytes on a broken tree", buf.Len())
	}

	if _, err := NewImporter(h.reg, h.store).Import(context.Background(), strings.NewReader(header), h.tree); !errors.Is(err, doctree.ErrStructure) {
		t.Fatalf("import: want structure error, got %v", err)
	}
}

func TestImport_CancelledLeavesStoreUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	records, err := Decode(strings.NewReader(header + "module,7,caption,,2,Intro,Présentation\n"))
	if err != nil {
		t.Fatal(err)
	}
	im := NewImporter(h.reg, h.store)
	cancel()

	_, err = im.Apply(ctx, records, h.tree)
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if n := h.rowCount(); n != 0 {
		t.Fatalf("rows = %d, want 0", n)
	}
}
