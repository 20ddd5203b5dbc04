package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_SeedExportImport(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "manualtr.db")
	out := filepath.Join(dir, "export.csv")
	ctx := context.Background()

	if err := run(ctx, "languages", []string{"-db", db, "-id", "2", "-name", "Français"}); err != nil {
		t.Fatalf("languages: %v", err)
	}
	if err := run(ctx, "seed", []string{"-db", db, "testdata/pump_manual.json"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := run(ctx, "export", []string{"-db", db, "-doc", "1", "-o", out}); err != nil {
		t.Fatalf("export: %v", err)
	}
	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	csv := string(raw)
	if !strings.HasPrefix(csv, "entityType,entityId,fieldName,subId,languageId,originalValue,translatedValue\n") {
		t.Fatalf("header: %q", csv)
	}
	if !strings.Contains(csv, "component,16,description,102,2,Impeller,") {
		t.Fatalf("component row missing:\n%s", csv)
	}

	in := filepath.Join(dir, "import.csv")
	body := "entityType,entityId,fieldName,subId,languageId,originalValue,translatedValue\n" +
		"component,16,description,102,2,Impeller,Roue\n"
	if err := os.WriteFile(in, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := run(ctx, "import", []string{"-db", db, "-doc", "1", in}); err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := run(ctx, "export", []string{"-db", db, "-doc", "1", "-o", out}); err != nil {
		t.Fatalf("export: %v", err)
	}
	raw, _ = os.ReadFile(out)
	if !strings.Contains(string(raw), "component,16,description,102,2,Impeller,Roue") {
		t.Fatalf("imported value not exported:\n%s", raw)
	}
}

func TestRun_Documents(t *testing.T) {
	db := filepath.Join(t.TempDir(), "manualtr.db")
	ctx := context.Background()
	if err := run(ctx, "seed", []string{"-db", db, "testdata/pump_manual.json"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var buf bytes.Buffer
	stdout = &buf
	t.Cleanup(func() { stdout = os.Stdout })
	if err := run(ctx, "documents", []string{"-db", db}); err != nil {
		t.Fatalf("documents: %v", err)
	}
	var docs []struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(buf.Bytes(), &docs); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if len(docs) != 1 || docs[0].ID != 1 || docs[0].Title != "Centrifugal pump CP-40" {
		t.Fatalf("documents = %+v", docs)
	}
}

func TestRun_TreeFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "manualtr.db")
	out := filepath.Join(dir, "export.csv")
	ctx := context.Background()

	run(ctx, "languages", []string{"-db", db, "-id", "3", "-name", "Deutsch"})
	err := run(ctx, "export", []string{"-db", db, "-tree", "testdata/pump_manual.json", "-doc", "1", "-o", out})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	raw, _ := os.ReadFile(out)
	if !strings.Contains(string(raw), "module,7,caption,,3,General view,") {
		t.Fatalf("caption row missing:\n%s", raw)
	}
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "manualtr.db")

	if err := run(ctx, "frobnicate", nil); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("unknown command: %v", err)
	}
	if err := run(ctx, "export", []string{"-db", db}); err == nil || !strings.Contains(err.Error(), "-doc is required") {
		t.Fatalf("export without doc: %v", err)
	}
	if err := run(ctx, "import", []string{"-db", db, "-doc", "1"}); err == nil {
		t.Fatal("import without file: want error")
	}
	if err := run(ctx, "export", []string{"-db", db, "-doc", "99", "-o", filepath.Join(t.TempDir(), "x.csv")}); err == nil {
		t.Fatal("export of unknown document: want error")
	}
}
