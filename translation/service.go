// Package translation is the manualtr service: it ties document trees, the
// translation overlay and the CSV exchange together and exposes them over
// HTTP and MCP.
//
// Usage:
//
//	db, err := translation.OpenDB(cfg)
//	svc, err := translation.New(cfg, db, treestore.New(db, cfg.Dialect()), logger)
//	http.ListenAndServe(cfg.Listen, svc.Handler())
//	svc.RegisterMCP(mcpServer)
package translation

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	units "github.com/docker/go-units"

	"github.com/hazyhaar/manualtr/address"
	"github.com/hazyhaar/manualtr/dbopen"
	"github.com/hazyhaar/manualtr/doctree"
	"github.com/hazyhaar/manualtr/exchange"
	"github.com/hazyhaar/manualtr/fields"
	"github.com/hazyhaar/manualtr/idgen"
	"github.com/hazyhaar/manualtr/kit"
	"github.com/hazyhaar/manualtr/observability"
	"github.com/hazyhaar/manualtr/overlay"
	"github.com/hazyhaar/manualtr/treestore"
)

const requestIDPrefix = "req_"

// ErrTooLarge is returned when an import exceeds the configured size.
var ErrTooLarge = errors.New("translation: import file too large")

// TreeSource loads the current tree of a document. A missing document must
// yield an error matching treestore.ErrNotFound.
type TreeSource interface {
	Load(ctx context.Context, docID int64) (*doctree.Snapshot, error)
}

// Service runs exports, imports and single-field edits.
type Service struct {
	cfg      *Config
	logger   *slog.Logger
	reg      *fields.Registry
	overlay  *overlay.Store
	trees    TreeSource
	runs     *observability.RunLog
	importer *exchange.Importer
	plain    *exchange.Encoder
	preview  *exchange.Encoder
	newReqID idgen.Generator
}

// OpenDB opens the configured database and applies the overlay, tree and
// run-log schemas.
func OpenDB(cfg *Config) (*sql.DB, error) {
	d := cfg.Dialect()
	return dbopen.Open(cfg.DBPath,
		dbopen.WithDriver(cfg.Driver),
		dbopen.WithBusyTimeout(cfg.busyTimeout),
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(overlay.Schema(d)),
		dbopen.WithSchema(treestore.Schema(d)),
		dbopen.WithSchema(observability.Schema(d)),
	)
}

// New creates a Service over db, whose schemas must be applied. The
// language catalog entries of cfg are written on start.
func New(cfg *Config, db *sql.DB, trees TreeSource, logger *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "translation")

	reg := fields.Default()
	store := overlay.New(db, cfg.Dialect())
	s := &Service{
		cfg:      cfg,
		logger:   logger,
		reg:      reg,
		overlay:  store,
		trees:    trees,
		runs:     observability.NewRunLog(db, cfg.Dialect(), observability.WithLogger(logger)),
		importer: exchange.NewImporter(reg, store),
		plain:    exchange.NewEncoder(reg),
		preview:  exchange.NewEncoder(reg, exchange.WithMarkdownPreview()),
		newReqID: idgen.Prefixed(requestIDPrefix, idgen.Default),
	}
	if err := s.syncLanguages(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Overlay returns the underlying overlay store (admin, tests).
func (s *Service) Overlay() *overlay.Store { return s.overlay }

// RunLog returns the run log.
func (s *Service) RunLog() *observability.RunLog { return s.runs }

func (s *Service) syncLanguages(ctx context.Context) error {
	for _, l := range s.cfg.Languages {
		active := l.Active == nil || *l.Active
		if err := s.overlay.PutLanguage(ctx, overlay.Language{ID: l.ID, Name: l.Name, IsActive: active}); err != nil {
			return fmt.Errorf("translation: seed language %d: %w", l.ID, err)
		}
	}
	return nil
}

// Languages lists the language catalog.
func (s *Service) Languages(ctx context.Context) ([]overlay.Language, error) {
	return s.overlay.Languages(ctx)
}

// ExportOptions tunes one export.
type ExportOptions struct {
	MarkdownPreview bool
}

// Export writes the exchange file of docID to w. Nothing is written when the
// tree cannot be loaded or is inconsistent.
func (s *Service) Export(ctx context.Context, docID int64, w io.Writer, opts ExportOptions) (stats exchange.ExportStats, err error) {
	run := s.startRun(ctx, observability.KindExport, docID)
	defer func() {
		run.Rows = stats.Rows
		s.runs.Finish(ctx, run, err)
		s.logRun(ctx, run, "translated", stats.Translated, "missing", stats.Missing)
	}()

	tree, err := s.trees.Load(ctx, docID)
	if err != nil {
		return stats, err
	}
	ov, err := s.overlay.Snapshot(ctx, docID)
	if err != nil {
		return stats, err
	}
	enc := s.plain
	if opts.MarkdownPreview || s.cfg.MarkdownPreview {
		enc = s.preview
	}
	return enc.Encode(w, tree, ov)
}

// Import reads an exchange file for docID and applies it. Files over the
// configured size are refused before any row is read.
func (s *Service) Import(ctx context.Context, docID int64, r io.Reader) (rep *exchange.Report, err error) {
	run := s.startRun(ctx, observability.KindImport, docID)
	defer func() {
		if rep != nil {
			run.Rows, run.Applied, run.Skipped = rep.Rows, rep.Applied, rep.SkippedCount()
		}
		s.runs.Finish(ctx, run, err)
		if rep != nil {
			s.logRun(ctx, run, "unchanged", rep.Unchanged, "blank", rep.Blank)
		} else {
			s.logRun(ctx, run)
		}
	}()

	limit := s.cfg.MaxImportBytes()
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	var mbe *http.MaxBytesError
	if err != nil && !errors.As(err, &mbe) {
		return nil, fmt.Errorf("translation: read import: %w", err)
	}
	if mbe != nil || int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: over %s", ErrTooLarge, units.HumanSize(float64(limit)))
	}

	tree, err := s.trees.Load(ctx, docID)
	if err != nil {
		return nil, err
	}
	rep, err = s.importer.Import(ctx, bytes.NewReader(data), tree)
	if err != nil {
		return nil, err
	}
	for _, sk := range rep.Skipped {
		s.logger.DebugContext(ctx, "translation: row skipped",
			"document_id", docID, "line", sk.Line, "reason", sk.Reason, "error", sk.Error)
	}
	return rep, nil
}

// Resolved is the value of one field in one language.
type Resolved struct {
	Address    address.Address `json:"address"`
	LanguageID int64           `json:"language_id"`
	Original   string          `json:"original"`
	Value      string          `json:"value"`
	// Translated is false when Value falls back to the original.
	Translated bool `json:"translated"`
}

// Get resolves addr in docID for lang. Language 0 returns the original.
func (s *Service) Get(ctx context.Context, docID int64, addr address.Address, lang int64) (*Resolved, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	tree, err := s.trees.Load(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := doctree.Validate(tree); err != nil {
		return nil, err
	}
	v, ok := doctree.NewIndex(tree).Resolve(addr.EntityType, addr.EntityID, addr.SubID)
	if !ok {
		return nil, &exchange.StaleReferenceError{Key: addr.Key(), Reason: "entity not found in document"}
	}
	orig, ok := s.reg.Get(v, addr.FieldName)
	if !ok {
		return nil, &exchange.StaleReferenceError{Key: addr.Key(), Reason: "field absent on entity"}
	}

	out := &Resolved{Address: addr, LanguageID: lang, Original: orig, Value: orig}
	if lang == overlay.OriginalLanguage {
		return out, nil
	}
	if _, err := s.overlay.LookupLanguage(ctx, lang); err != nil {
		return nil, err
	}
	val, ok, err := s.overlay.Get(ctx, addr, lang)
	if err != nil {
		return nil, err
	}
	if ok {
		out.Value, out.Translated = val, true
	}
	return out, nil
}

// Set stores one manually edited translation. It goes through the same
// checks and sanitizing as an imported row; a blank value is refused.
func (s *Service) Set(ctx context.Context, docID int64, addr address.Address, lang int64, value string) (bool, error) {
	if err := addr.Validate(); err != nil {
		return false, err
	}
	tree, err := s.trees.Load(ctx, docID)
	if err != nil {
		return false, err
	}
	if err := doctree.Validate(tree); err != nil {
		return false, err
	}
	rec := exchange.Record{Row: exchange.Row{
		EntityType: addr.EntityType, EntityID: addr.EntityID, FieldName: addr.FieldName,
		SubID: addr.SubID, LanguageID: lang, TranslatedValue: value,
	}}
	rep, err := s.importer.Apply(ctx, []exchange.Record{rec}, tree)
	if err != nil {
		return false, err
	}
	switch {
	case len(rep.Skipped) > 0:
		return false, rep.Skipped[0].Err
	case rep.Blank > 0:
		return false, overlay.ErrEmptyValue
	}
	s.logger.InfoContext(ctx, "translation: set", "document_id", docID, "address", addr.Key(),
		"language_id", lang, "changed", rep.Applied == 1, "request_id", kit.GetRequestID(ctx))
	return rep.Applied == 1, nil
}

// Render returns a copy of docID's tree with every translated field of lang
// substituted. Untranslated fields keep their original. Language 0 returns
// the original tree.
func (s *Service) Render(ctx context.Context, docID int64, lang int64) (*doctree.Snapshot, error) {
	tree, err := s.trees.Load(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := doctree.Validate(tree); err != nil {
		return nil, err
	}
	out := doctree.Clone(tree)
	if lang == overlay.OriginalLanguage {
		return out, nil
	}
	if _, err := s.overlay.LookupLanguage(ctx, lang); err != nil {
		return nil, err
	}
	ov, err := s.overlay.Snapshot(ctx, docID)
	if err != nil {
		return nil, err
	}

	idx := doctree.NewIndex(out)
	for in, err := range s.reg.Surface(tree) {
		if err != nil {
			return nil, err
		}
		val, ok := ov.Lookup(in.Address, lang)
		if !ok {
			continue
		}
		a := in.Address
		v, ok := idx.Resolve(a.EntityType, a.EntityID, a.SubID)
		if !ok {
			continue
		}
		if err := s.reg.Set(v, a.FieldName, val); err != nil {
			return nil, fmt.Errorf("translation: render %s: %w", a.Key(), err)
		}
	}
	return out, nil
}

// Runs lists recent export and import runs of docID (0 for all).
func (s *Service) Runs(ctx context.Context, docID int64, limit int) ([]observability.Run, error) {
	return s.runs.Recent(ctx, docID, limit)
}

// PruneRuns drops run-log entries older than the configured retention.
func (s *Service) PruneRuns(ctx context.Context) (int64, error) {
	return s.runs.Cleanup(ctx, s.cfg.runRetention)
}

func (s *Service) startRun(ctx context.Context, kind string, docID int64) *observability.Run {
	run := s.runs.Start(kind, docID)
	run.RequestID = kit.GetRequestID(ctx)
	run.Transport = kit.GetTransport(ctx)
	return run
}

func (s *Service) logRun(ctx context.Context, run *observability.Run, extra ...any) {
	attrs := append([]any{
		"run", run.ID, "document_id", run.DocumentID, "rows", run.Rows,
		"applied", run.Applied, "skipped", run.Skipped, "duration_ms", run.DurationMs,
		"request_id", run.RequestID, "transport", run.Transport,
	}, extra...)
	if run.Status == observability.StatusError {
		s.logger.WarnContext(ctx, "translation: "+run.Kind+" failed", append(attrs, "error", run.Error)...)
		return
	}
	s.logger.InfoContext(ctx, "translation: "+run.Kind, attrs...)
}
