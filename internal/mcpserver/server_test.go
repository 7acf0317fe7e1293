package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/notegraph/internal/controller"
	"github.com/starford/notegraph/internal/graph"
	"github.com/starford/notegraph/internal/reference"
	"github.com/starford/notegraph/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	svc, _, _ := testutil.TestService(t)
	return New(svc)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process "call tool" helper, so handlers are called
	// directly.
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"search_notes":         srv.searchNotes,
		"read_note":            srv.readNote,
		"create_note":          srv.createNote,
		"list_notes":           srv.listNotes,
		"get_backlinks":        srv.getBacklinks,
		"get_graph":            srv.getGraph,
		"connect_notes":        srv.connectNotes,
		"disconnect_notes":     srv.disconnectNotes,
		"get_reference_format": srv.getReferenceFormat,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func createNote(t *testing.T, srv *Server, title, content string) string {
	t.Helper()
	r := callTool(t, srv, "create_note", map[string]any{"title": title, "content": content})
	text := resultText(r)
	if r.IsError || !strings.HasPrefix(text, "created: ") {
		t.Fatalf("create result = %q", text)
	}
	return strings.TrimPrefix(text, "created: ")
}

func TestCreateAndReadNote(t *testing.T) {
	srv := testServer(t)
	id := createNote(t, srv, "Test", "Hello")

	r := callTool(t, srv, "read_note", map[string]any{"id": id})
	if r.IsError {
		t.Fatalf("read failed: %s", resultText(r))
	}
	var got struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != id || got.Title != "Test" || got.Content != "Hello" {
		t.Errorf("read result = %+v", got)
	}
}

func TestCreateNote_MissingTitle(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "create_note", map[string]any{"content": "x"})
	if !r.IsError {
		t.Error("expected error without title")
	}
}

func TestListNotes(t *testing.T) {
	srv := testServer(t)
	a := createNote(t, srv, "A", "")
	b := createNote(t, srv, "B", "")

	text := resultText(callTool(t, srv, "list_notes", map[string]any{}))
	want := a + "\tA\n" + b + "\tB"
	if text != want {
		t.Errorf("list = %q, want %q", text, want)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "read_note", map[string]any{"id": "deadbeef"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestConnectBacklinksDisconnect(t *testing.T) {
	srv := testServer(t)
	a := createNote(t, srv, "A", "intro")
	b := createNote(t, srv, "B", "")

	r := callTool(t, srv, "connect_notes", map[string]any{"source": a, "target": b})
	wantEdge := graph.EdgeID(a, b, graph.DefaultSourceAnchor, graph.DefaultTargetAnchor)
	if text := resultText(r); text != "connected: "+wantEdge {
		t.Fatalf("connect = %q", text)
	}

	if text := resultText(callTool(t, srv, "get_backlinks", map[string]any{"id": b})); text != a {
		t.Errorf("backlinks = %q, want %q", text, a)
	}

	r = callTool(t, srv, "get_graph", map[string]any{"layout": "grid"})
	var view controller.View
	if err := json.Unmarshal([]byte(resultText(r)), &view); err != nil {
		t.Fatal(err)
	}
	if len(view.Nodes) != 2 || len(view.Edges) != 1 || view.Edges[0].ID != wantEdge {
		t.Errorf("graph = %+v", view)
	}

	r = callTool(t, srv, "disconnect_notes", map[string]any{"source": a, "target": b})
	if r.IsError {
		t.Fatalf("disconnect failed: %s", resultText(r))
	}
	if text := resultText(callTool(t, srv, "get_backlinks", map[string]any{"id": b})); text != "no backlinks found" {
		t.Errorf("backlinks after disconnect = %q", text)
	}
}

func TestConnectNotes_UnknownTarget(t *testing.T) {
	srv := testServer(t)
	a := createNote(t, srv, "A", "")
	r := callTool(t, srv, "connect_notes", map[string]any{"source": a, "target": "ffff"})
	if !r.IsError {
		t.Error("expected error for unknown target")
	}
}

func TestGetGraph_UnknownLayout(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_graph", map[string]any{"layout": "spiral"})
	if !r.IsError {
		t.Error("expected error for unknown layout")
	}
}

func TestSearchNotes(t *testing.T) {
	srv := testServer(t)
	createNote(t, srv, "Searchable", "needle in the haystack")
	text := resultText(callTool(t, srv, "search_notes", map[string]any{"query": "needle"}))
	if !strings.Contains(text, "Searchable") {
		t.Errorf("search = %q", text)
	}
}

func TestReferenceFormat(t *testing.T) {
	srv := testServer(t)
	text := resultText(callTool(t, srv, "get_reference_format", nil))
	if !strings.Contains(text, "[[note:<id>|<title>]]") {
		t.Error("contract should show the token grammar")
	}

	// The example tokens must be well-formed.
	refs := reference.Extract(ReferenceFormatContract)
	if len(refs) != 2 {
		t.Fatalf("example tokens = %+v", refs)
	}

	contents, err := srv.readReferenceFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
}
