package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/hazyhaar/manualtr/dbopen"
	"github.com/hazyhaar/manualtr/idgen"
)

// Run kinds and statuses.
const (
	KindExport = "export"
	KindImport = "import"

	StatusOK    = "ok"
	StatusError = "error"
)

// Run is one export or import.
type Run struct {
	ID         string `db:"id" json:"id"`
	Kind       string `db:"kind" json:"kind"`
	DocumentID int64  `db:"document_id" json:"document_id"`
	RequestID  string `db:"request_id" json:"request_id,omitempty"`
	Transport  string `db:"transport" json:"transport,omitempty"`
	Status     string `db:"status" json:"status"`
	Rows       int    `db:"row_count" json:"rows"`
	Applied    int    `db:"applied" json:"applied"`
	Skipped    int    `db:"skipped" json:"skipped"`
	DurationMs int64  `db:"duration_ms" json:"duration_ms"`
	Error      string `db:"error" json:"error,omitempty"`
	StartedAt  int64  `db:"started_at" json:"started_at"`
}

// RunLog persists runs. A nil *RunLog discards everything.
type RunLog struct {
	DB     *sqlx.DB
	sq     sq.StatementBuilderType
	newID  idgen.Generator
	logger *slog.Logger
}

// RunLogOption configures a RunLog.
type RunLogOption func(*RunLog)

// WithRunIDGenerator sets the generator for run ids.
func WithRunIDGenerator(gen idgen.Generator) RunLogOption {
	return func(l *RunLog) { l.newID = gen }
}

// WithLogger sets the logger used to report failed writes.
func WithLogger(logger *slog.Logger) RunLogOption {
	return func(l *RunLog) { l.logger = logger }
}

// NewRunLog wraps db. The schema must already be applied.
func NewRunLog(db *sql.DB, d dbopen.Dialect, opts ...RunLogOption) *RunLog {
	l := &RunLog{
		DB:     d.Wrap(db),
		sq:     d.Builder(),
		newID:  idgen.Prefixed("run_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Start returns a Run stamped with a fresh id and the current time.
func (l *RunLog) Start(kind string, docID int64) *Run {
	id := ""
	if l != nil {
		id = l.newID()
	}
	return &Run{ID: id, Kind: kind, DocumentID: docID, StartedAt: time.Now().UnixMilli()}
}

// Finish sets the status and duration of run from err and records it.
// Write failures are logged and never returned: the run log must not fail
// the operation it describes.
func (l *RunLog) Finish(ctx context.Context, run *Run, err error) {
	run.DurationMs = time.Now().UnixMilli() - run.StartedAt
	run.Status = StatusOK
	if err != nil {
		run.Status = StatusError
		run.Error = err.Error()
	}
	if l == nil {
		return
	}
	query, args, qerr := l.sq.Insert("runs").
		Columns("id", "kind", "document_id", "request_id", "transport", "status",
			"row_count", "applied", "skipped", "duration_ms", "error", "started_at").
		Values(run.ID, run.Kind, run.DocumentID, run.RequestID, run.Transport, run.Status,
			run.Rows, run.Applied, run.Skipped, run.DurationMs, run.Error, run.StartedAt).
		ToSql()
	if qerr == nil {
		// The caller's context may already be cancelled; the record still goes in.
		_, qerr = l.DB.ExecContext(context.WithoutCancel(ctx), query, args...)
	}
	if qerr != nil {
		l.logger.Error("observability: run log write failed", "error", qerr, "run", run.ID, "kind", run.Kind)
	}
}

// Recent lists the latest runs of docID, newest first. docID 0 lists all.
func (l *RunLog) Recent(ctx context.Context, docID int64, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	b := l.sq.Select("id", "kind", "document_id", "request_id", "transport", "status",
		"row_count", "applied", "skipped", "duration_ms", "error", "started_at").
		From("runs").OrderBy("started_at DESC", "id DESC").Limit(uint64(limit))
	if docID != 0 {
		b = b.Where(sq.Eq{"document_id": docID})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	var out []Run
	if err := dbopen.Retry(ctx, func() error {
		out = out[:0]
		return l.DB.SelectContext(ctx, &out, query, args...)
	}); err != nil {
		return nil, fmt.Errorf("observability: recent runs: %w", err)
	}
	return out, nil
}

// Cleanup deletes runs older than retention. Zero keeps everything.
func (l *RunLog) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention).UnixMilli()
	query, args, err := l.sq.Delete("runs").Where(sq.Lt{"started_at": cutoff}).ToSql()
	if err != nil {
		return 0, err
	}
	res, err := l.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup: %w", err)
	}
	return res.RowsAffected()
}
