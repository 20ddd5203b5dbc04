package translation

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/manualtr/address"
	"github.com/hazyhaar/manualtr/kit"
)

// RegisterMCP registers the manualtr tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerLanguagesTool(srv)
	s.registerExportTool(srv)
	s.registerImportTool(srv)
	s.registerGetTool(srv)
	s.registerSetTool(srv)
	s.registerRunsTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var addressProps = map[string]any{
	"document_id": map[string]any{"type": "integer", "description": "Document id"},
	"entity_type": map[string]any{"type": "string", "enum": []any{"document", "section", "module", "component"}},
	"entity_id":   map[string]any{"type": "integer", "description": "Entity id; the owning section for components"},
	"field_name":  map[string]any{"type": "string", "description": "Translatable field, e.g. title, caption, description"},
	"sub_id":      map[string]any{"type": "integer", "description": "Component id for component fields, else omitted"},
	"language_id": map[string]any{"type": "integer", "description": "Target language id; 0 is the original"},
}

func withProps(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// endpoint wraps fn with request ids and logging, the same for every tool.
func (s *Service) endpoint(op string, fn kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.WithRequestIDs(s.newReqID), kit.Logging(s.logger, op))(fn)
}

// --- languages ---

type languagesRequest struct{}

func (s *Service) registerLanguagesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "manualtr_languages",
		Description: "List the language catalog: ids, names and whether each is an active translation target.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.Languages(ctx)
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint("languages", endpoint), kit.DecodeArgs[languagesRequest])
}

// --- export ---

type exportRequest struct {
	DocumentID      int64 `json:"document_id"`
	MarkdownPreview bool  `json:"markdown_preview,omitempty"`
}

func (r *exportRequest) Document() int64 { return r.DocumentID }

type exportResponse struct {
	CSV        string `json:"csv"`
	Rows       int    `json:"rows"`
	Translated int    `json:"translated"`
}

func (s *Service) registerExportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "manualtr_export",
		Description: "Export every translatable field of a document in every active language as CSV. Only translatedValue should be edited.",
		InputSchema: inputSchema(map[string]any{
			"document_id":      map[string]any{"type": "integer", "description": "Document id"},
			"markdown_preview": map[string]any{"type": "boolean", "description": "Add an originalMarkdown column"},
		}, []string{"document_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*exportRequest)
		var buf bytes.Buffer
		stats, err := s.Export(ctx, r.DocumentID, &buf, ExportOptions{MarkdownPreview: r.MarkdownPreview})
		if err != nil {
			return nil, err
		}
		return &exportResponse{CSV: buf.String(), Rows: stats.Rows, Translated: stats.Translated}, nil
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint("export", endpoint), kit.DecodeArgs[exportRequest])
}

// --- import ---

type importRequest struct {
	DocumentID int64  `json:"document_id"`
	CSV        string `json:"csv"`
}

func (r *importRequest) Document() int64 { return r.DocumentID }

func (s *Service) registerImportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "manualtr_import",
		Description: "Import a CSV exchange file into a document's translations. Returns a report of applied and skipped rows.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "integer", "description": "Document id"},
			"csv":         map[string]any{"type": "string", "description": "Exchange file content"},
		}, []string{"document_id", "csv"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*importRequest)
		return s.Import(ctx, r.DocumentID, strings.NewReader(r.CSV))
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint("import", endpoint), kit.DecodeArgs[importRequest])
}

// --- get / set ---

type fieldRequest struct {
	DocumentID int64  `json:"document_id"`
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
	FieldName  string `json:"field_name"`
	SubID      int64  `json:"sub_id,omitempty"`
	LanguageID int64  `json:"language_id"`
	Value      string `json:"value,omitempty"`
}

func (r *fieldRequest) Document() int64 { return r.DocumentID }

func (r *fieldRequest) address() address.Address {
	return address.Address{EntityType: r.EntityType, EntityID: r.EntityID, FieldName: r.FieldName, SubID: r.SubID}
}

func (s *Service) registerGetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "manualtr_get",
		Description: "Read one field of a document in one language, falling back to the original when untranslated.",
		InputSchema: inputSchema(addressProps, []string{"document_id", "entity_type", "entity_id", "field_name", "language_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*fieldRequest)
		return s.Get(ctx, r.DocumentID, r.address(), r.LanguageID)
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint("get", endpoint), kit.DecodeArgs[fieldRequest])
}

func (s *Service) registerSetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "manualtr_set",
		Description: "Store the translation of one field in one active language.",
		InputSchema: inputSchema(withProps(addressProps, map[string]any{
			"value": map[string]any{"type": "string", "description": "Translated value, must not be blank"},
		}), []string{"document_id", "entity_type", "entity_id", "field_name", "language_id", "value"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*fieldRequest)
		changed, err := s.Set(ctx, r.DocumentID, r.address(), r.LanguageID, r.Value)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"changed": changed}, nil
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint("set", endpoint), kit.DecodeArgs[fieldRequest])
}

// --- runs ---

type runsRequest struct {
	DocumentID int64 `json:"document_id,omitempty"`
	Limit      int   `json:"limit,omitempty"`
}

func (r *runsRequest) Document() int64 { return r.DocumentID }

func (s *Service) registerRunsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "manualtr_runs",
		Description: "List recent export and import runs, newest first.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "integer", "description": "Filter by document (default all)"},
			"limit":       map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*runsRequest)
		if r.Limit < 0 {
			return nil, fmt.Errorf("limit must not be negative")
		}
		return s.Runs(ctx, r.DocumentID, r.Limit)
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint("runs", endpoint), kit.DecodeArgs[runsRequest])
}
