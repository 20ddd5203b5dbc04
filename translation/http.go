package translation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/manualtr/address"
	"github.com/hazyhaar/manualtr/doctree"
	"github.com/hazyhaar/manualtr/exchange"
	"github.com/hazyhaar/manualtr/idgen"
	"github.com/hazyhaar/manualtr/kit"
	"github.com/hazyhaar/manualtr/overlay"
	"github.com/hazyhaar/manualtr/shield"
	"github.com/hazyhaar/manualtr/treestore"
)

// MapHTTPStatus maps service errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, doctree.ErrStructure), errors.Is(err, address.ErrAddressing):
		return http.StatusConflict
	case errors.Is(err, exchange.ErrMalformedFile), errors.Is(err, exchange.ErrMalformedRow),
		errors.Is(err, overlay.ErrEmptyValue):
		return http.StatusBadRequest
	case errors.Is(err, overlay.ErrUnknownLanguage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, treestore.ErrNotFound), errors.Is(err, exchange.ErrStaleReference):
		return http.StatusNotFound
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	// Multipart framing rides on top of the import size.
	for _, mw := range shield.APIStack(s.cfg.MaxImportBytes() + 1<<20) {
		r.Use(mw)
	}
	r.Use(s.requestContext)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/api/languages", func(w http.ResponseWriter, r *http.Request) {
		langs, err := s.Languages(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, 200, langs)
	})

	r.Get("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		docID, _ := strconv.ParseInt(r.URL.Query().Get("document"), 10, 64)
		runs, err := s.Runs(r.Context(), docID, queryInt(r, "limit", 50))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, 200, runs)
	})

	r.Route("/api/documents/{docID}", func(r chi.Router) {
		r.Get("/translations.csv", s.handleExport)
		r.Post("/translations", s.handleImport)
		r.Get("/translations", s.handleGet)
		r.Put("/translations", s.handleSet)
		r.Get("/render", s.handleRender)
	})
	return r
}

func (s *Service) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		// Upstream ids are kept only when they have our own shape.
		reqID := r.Header.Get("X-Request-ID")
		if _, err := idgen.Parse(requestIDPrefix, reqID); err != nil {
			reqID = s.newReqID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := kit.WithRequestID(r.Context(), reqID)
		ctx = kit.WithTransport(ctx, "http")
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		s.logger.LogAttrs(ctx, slog.LevelDebug, "translation: http",
			slog.String("method", r.Method), slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()), slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("request_id", reqID), slog.String("remote_addr", kit.GetRemoteAddr(ctx)))
	})
}

func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	docID, ok := docIDParam(w, r)
	if !ok {
		return
	}
	preview, _ := strconv.ParseBool(r.URL.Query().Get("markdown"))

	// Buffered so a failing export still gets a proper error status.
	var buf bytes.Buffer
	if _, err := s.Export(r.Context(), docID, &buf, ExportOptions{MarkdownPreview: preview}); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="document-%d-translations.csv"`, docID))
	w.WriteHeader(200)
	w.Write(buf.Bytes())
}

func (s *Service) handleImport(w http.ResponseWriter, r *http.Request) {
	docID, ok := docIDParam(w, r)
	if !ok {
		return
	}
	body, err := importBody(r, s.cfg.MaxImportBytes())
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, ErrTooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		writeError(w, code, err)
		return
	}
	defer body.Close()

	rep, err := s.Import(r.Context(), docID, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, 200, rep)
}

// importBody accepts a raw CSV body or a multipart form with a "file" part.
func importBody(r *http.Request, limit int64) (io.ReadCloser, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		return r.Body, nil
	}
	if err := r.ParseMultipartForm(limit); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, fmt.Errorf("%w: %v", ErrTooLarge, err)
		}
		return nil, fmt.Errorf("multipart: %w", err)
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}
	return f, nil
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	docID, ok := docIDParam(w, r)
	if !ok {
		return
	}
	addr, err := address.Parse(r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, 400, err)
		return
	}
	lang, err := strconv.ParseInt(r.URL.Query().Get("lang"), 10, 64)
	if err != nil {
		writeError(w, 400, fmt.Errorf("lang: %w", err))
		return
	}
	res, err := s.Get(r.Context(), docID, addr, lang)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, 200, res)
}

type setRequest struct {
	Address    string `json:"address"`
	LanguageID int64  `json:"language_id"`
	Value      string `json:"value"`
}

func (s *Service) handleSet(w http.ResponseWriter, r *http.Request) {
	docID, ok := docIDParam(w, r)
	if !ok {
		return
	}
	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	addr, err := address.Parse(req.Address)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	changed, err := s.Set(r.Context(), docID, addr, req.LanguageID, req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, 200, map[string]bool{"changed": changed})
}

func (s *Service) handleRender(w http.ResponseWriter, r *http.Request) {
	docID, ok := docIDParam(w, r)
	if !ok {
		return
	}
	lang := int64(queryInt(r, "lang", 0))
	tree, err := s.Render(r.Context(), docID, lang)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, 200, tree)
}

func docIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "docID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, 400, fmt.Errorf("invalid document id %q", chi.URLParam(r, "docID")))
		return 0, false
	}
	return id, true
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := MapHTTPStatus(err)
	if code >= 500 {
		s.logger.ErrorContext(r.Context(), "translation: request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, code, err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
