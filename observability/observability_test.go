package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/manualtr/dbopen"
	"github.com/hazyhaar/manualtr/idgen"
)

func setupRunLog(t *testing.T) *RunLog {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(SchemaSQLite))
	return NewRunLog(db, dbopen.SQLite, WithRunIDGenerator(idgen.Prefixed("run_", idgen.Sequence())))
}

func TestInit_CreatesRunsTable(t *testing.T) {
	l := setupRunLog(t)
	var count int
	l.DB.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='runs'").Scan(&count)
	if count != 1 {
		t.Fatal("table runs not found")
	}
}

func TestRunLog_FinishAndRecent(t *testing.T) {
	l := setupRunLog(t)
	ctx := context.Background()

	exp := l.Start(KindExport, 1)
	exp.Rows = 7
	l.Finish(ctx, exp, nil)

	imp := l.Start(KindImport, 1)
	imp.Rows, imp.Applied, imp.Skipped = 3, 2, 1
	imp.StartedAt++ // keep the order deterministic within one millisecond
	l.Finish(ctx, imp, nil)

	other := l.Start(KindImport, 2)
	l.Finish(ctx, other, errors.New("exchange: malformed file"))

	runs, err := l.Recent(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].ID != "run_2" || runs[0].Applied != 2 || runs[0].Status != StatusOK {
		t.Fatalf("newest = %+v", runs[0])
	}

	all, _ := l.Recent(ctx, 0, 10)
	if len(all) != 3 {
		t.Fatalf("all runs = %d, want 3", len(all))
	}
	for _, r := range all {
		if r.DocumentID == 2 && (r.Status != StatusError || !strings.Contains(r.Error, "malformed")) {
			t.Fatalf("failed run = %+v", r)
		}
	}
}

func TestRunLog_FinishAfterCancel(t *testing.T) {
	l := setupRunLog(t)
	ctx, cancel := context.WithCancel(context.Background())
	run := l.Start(KindImport, 1)
	cancel()
	l.Finish(ctx, run, ctx.Err())

	runs, err := l.Recent(context.Background(), 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != StatusError {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestRunLog_Nil(t *testing.T) {
	var l *RunLog
	run := l.Start(KindExport, 1)
	l.Finish(context.Background(), run, nil)
	if run.Status != StatusOK {
		t.Fatalf("status = %q", run.Status)
	}
}

func TestRunLog_WriteFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	db := dbopen.OpenMemory(t) // no schema: inserts fail
	l := NewRunLog(db, dbopen.SQLite, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	l.Finish(context.Background(), l.Start(KindExport, 1), nil)
	if !strings.Contains(buf.String(), "run log write failed") {
		t.Fatalf("log = %q", buf.String())
	}
}

func TestRunLog_Cleanup(t *testing.T) {
	l := setupRunLog(t)
	ctx := context.Background()

	old := l.Start(KindExport, 1)
	old.StartedAt = time.Now().Add(-48 * time.Hour).UnixMilli()
	l.Finish(ctx, old, nil)
	l.Finish(ctx, l.Start(KindExport, 1), nil)

	n, err := l.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted = %d, want 1", n)
	}
	if n, _ := l.Cleanup(ctx, 0); n != 0 {
		t.Fatalf("zero retention deleted %d", n)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "": slog.LevelInfo, "INFO": slog.LevelInfo,
		"warn": slog.LevelWarn, "error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("unknown level accepted")
	}
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo, "json").Info("hello", "doc", 1)
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("json output = %q", buf.String())
	}
	buf.Reset()
	NewLogger(&buf, slog.LevelInfo, "text").Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("text output = %q", buf.String())
	}
}
