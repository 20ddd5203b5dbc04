package translation

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/manualtr/exchange"
	"github.com/hazyhaar/manualtr/observability"
	"github.com/hazyhaar/manualtr/overlay"
)

var testImpl = &mcp.Implementation{Name: "manualtr-test", Version: "0.1.0"}

// mcpSession registers the tools of a test Service and returns a connected
// client session.
func mcpSession(t *testing.T) (*Service, *mcp.ClientSession) {
	t.Helper()
	s := testService(t, testConfig())

	srv := mcp.NewServer(testImpl, nil)
	s.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()

	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	return s, session
}

// callTool invokes a tool and returns the JSON text from the first TextContent.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

// callToolErr invokes a tool expected to fail and returns the error text.
func callToolErr(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if !result.IsError {
		t.Fatalf("CallTool(%s): expected a tool error", name)
	}
	return result.Content[0].(*mcp.TextContent).Text
}

func TestMCP_ListTools(t *testing.T) {
	_, session := mcpSession(t)
	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	names := make(map[string]bool)
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"manualtr_languages", "manualtr_export", "manualtr_import", "manualtr_get", "manualtr_set", "manualtr_runs"} {
		if !names[want] {
			t.Fatalf("tool %s not registered", want)
		}
	}
}

func TestMCP_Languages(t *testing.T) {
	_, session := mcpSession(t)
	var langs []overlay.Language
	if err := json.Unmarshal([]byte(callTool(t, session, "manualtr_languages", map[string]any{})), &langs); err != nil {
		t.Fatal(err)
	}
	if len(langs) != 1 || langs[0].ID != 2 {
		t.Fatalf("languages = %+v", langs)
	}
}

func TestMCP_ExportImport(t *testing.T) {
	_, session := mcpSession(t)

	var exp exportResponse
	json.Unmarshal([]byte(callTool(t, session, "manualtr_export", map[string]any{"document_id": 1})), &exp)
	if exp.Rows != 6 || !strings.HasPrefix(exp.CSV, "entityType,") {
		t.Fatalf("export = %+v", exp)
	}

	edited := strings.Replace(exp.CSV, "Impeller,\n", "Impeller,Roue\n", 1)
	var rep exchange.Report
	json.Unmarshal([]byte(callTool(t, session, "manualtr_import", map[string]any{"document_id": 1, "csv": edited})), &rep)
	if rep.Applied != 1 {
		t.Fatalf("report = %+v", rep)
	}

	json.Unmarshal([]byte(callTool(t, session, "manualtr_export", map[string]any{"document_id": 1})), &exp)
	if !strings.Contains(exp.CSV, "component,16,description,102,2,Impeller,Roue\n") || exp.Translated != 1 {
		t.Fatalf("re-export = %+v", exp)
	}

	var runs []observability.Run
	json.Unmarshal([]byte(callTool(t, session, "manualtr_runs", map[string]any{"document_id": 1})), &runs)
	if len(runs) != 3 || runs[0].Transport != "mcp" || runs[0].RequestID == "" {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestMCP_SetGet(t *testing.T) {
	_, session := mcpSession(t)
	field := map[string]any{
		"document_id": 1, "entity_type": "component", "entity_id": 16,
		"field_name": "description", "sub_id": 101, "language_id": 2,
	}

	set := map[string]any{"value": "Carter"}
	for k, v := range field {
		set[k] = v
	}
	if out := callTool(t, session, "manualtr_set", set); out != `{"changed":true}` {
		t.Fatalf("set = %s", out)
	}

	var res Resolved
	json.Unmarshal([]byte(callTool(t, session, "manualtr_get", field)), &res)
	if res.Value != "Carter" || res.Original != "Housing" || !res.Translated {
		t.Fatalf("get = %+v", res)
	}
}

func TestMCP_Errors(t *testing.T) {
	_, session := mcpSession(t)

	msg := callToolErr(t, session, "manualtr_set", map[string]any{
		"document_id": 1, "entity_type": "module", "entity_id": 7,
		"field_name": "caption", "language_id": 9, "value": "x",
	})
	if !strings.Contains(msg, "language 9") {
		t.Fatalf("unknown language message = %q", msg)
	}

	msg = callToolErr(t, session, "manualtr_import", map[string]any{"document_id": 1, "csv": "entityType\n"})
	if !strings.Contains(msg, "missing required columns") {
		t.Fatalf("malformed file message = %q", msg)
	}

	callToolErr(t, session, "manualtr_export", map[string]any{"document_id": 42})
}
