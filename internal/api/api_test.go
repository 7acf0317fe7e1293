package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/notegraph/internal/graph"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/layout"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/reference"
	"github.com/starford/notegraph/internal/testutil"
)

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (n *recordingNotifier) PublishGraphEvent(kind string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
}

func (n *recordingNotifier) Kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.kinds...)
}

// testEnv sets up a temp vault, SQLite DB, service, and router for testing.
// A non-empty authToken switches the router to token mode.
func testEnv(t *testing.T, authToken string) (*noteservice.Service, http.Handler) {
	t.Helper()
	return testEnvWith(t, RouterConfig{AuthEnabled: authToken != "", Token: authToken})
}

func testEnvWith(t *testing.T, cfg RouterConfig) (*noteservice.Service, http.Handler) {
	t.Helper()
	svc, _, _ := testutil.TestService(t)
	if cfg.Graph.Layout == "" {
		cfg.Graph = GraphSettings{Viewport: layout.Viewport{Width: 1000, Height: 800}, Layout: layout.Circular}
	}
	return svc, NewRouter(svc, cfg)
}

func do(t *testing.T, router http.Handler, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createNote(t *testing.T, router http.Handler, title, content string) NoteDetail {
	t.Helper()
	w := do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Title: title, Content: content})
	if w.Code != http.StatusCreated {
		t.Fatalf("create %s = %d, body = %s", title, w.Code, w.Body.String())
	}
	var d NoteDetail
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatal(err)
	}
	return d
}

func getGraph(t *testing.T, router http.Handler, query string) GraphView {
	t.Helper()
	w := do(t, router, http.MethodGet, "/graph"+query, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("graph = %d, body = %s", w.Code, w.Body.String())
	}
	var v GraphView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "")
	created := createNote(t, router, "Hello", "World")

	w := do(t, router, http.MethodGet, "/notes/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.ID != created.ID || note.Title != "Hello" || note.Content != "World" {
		t.Errorf("unexpected note %+v", note)
	}
	if note.Checksum == "" {
		t.Error("missing checksum")
	}
}

func TestCreateNote_MissingTitle(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/notes", map[string]string{"content": "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("create without title = %d, want 400", w.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")
	created := createNote(t, router, "Lock", "v1")

	body := map[string]string{"content": "v2"}
	w := do(t, router, http.MethodPatch, "/notes/"+created.ID, body, "If-Match", `"`+created.Checksum+`"`)
	if w.Code != http.StatusOK {
		t.Fatalf("update with correct checksum = %d, body = %s", w.Code, w.Body.String())
	}

	// The checksum is stale now.
	w = do(t, router, http.MethodPatch, "/notes/"+created.ID, body, "If-Match", created.Checksum)
	if w.Code != http.StatusConflict {
		t.Errorf("update with stale checksum = %d, want 409", w.Code)
	}
}

func TestUpdateNote_Position(t *testing.T) {
	svc, router := testEnv(t, "")
	created := createNote(t, router, "Placed", "")

	w := do(t, router, http.MethodPatch, "/notes/"+created.ID, map[string]any{
		"position": map[string]any{"x": 5, "y": 6, "layout": "grid"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("patch position = %d, body = %s", w.Code, w.Body.String())
	}
	d, err := svc.GetNote(context.Background(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !d.HasPosition() || *d.PositionX != 5 || d.LayoutType != "grid" {
		t.Errorf("position not stored: %+v", d.Note)
	}

	w = do(t, router, http.MethodPatch, "/notes/"+created.ID, map[string]any{
		"position": map[string]any{"x": 5, "layout": "grid"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("half position = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPatch, "/notes/"+created.ID, map[string]any{
		"position": map[string]any{"layout": "spiral"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown layout = %d, want 400", w.Code)
	}
}

func TestUpdateNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPatch, "/notes/deadbeef", map[string]string{"content": "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	_, router := testEnv(t, "")
	created := createNote(t, router, "Gone", "")

	w := do(t, router, http.MethodDelete, "/notes/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/notes/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestListNotes(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "One", "")
	createNote(t, router, "Two", "")
	trashed := createNote(t, router, "Three", "")
	do(t, router, http.MethodPatch, "/notes/"+trashed.ID, map[string]bool{"is_trashed": true})

	w := do(t, router, http.MethodGet, "/notes?limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || len(resp.Notes) != 2 {
		t.Errorf("total = %d, notes = %d, want 2", resp.Total, len(resp.Notes))
	}

	w = do(t, router, http.MethodGet, "/notes?trashed=true", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 3 {
		t.Errorf("total with trashed = %d, want 3", resp.Total)
	}
}

func TestReferencesEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	b := createNote(t, router, "Target", "")
	a := createNote(t, router, "Source", reference.Encode(b.ID, "Target"))

	w := do(t, router, http.MethodGet, "/notes/"+b.ID+"/references", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("references = %d", w.Code)
	}
	var resp ReferencesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.References) != 0 || len(resp.Backlinks) != 1 || resp.Backlinks[0] != a.ID {
		t.Errorf("unexpected references for target: %+v", resp)
	}

	w = do(t, router, http.MethodGet, "/notes/"+a.ID+"/references", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.References) != 1 || resp.References[0].ID != b.ID || resp.References[0].Title != "Target" {
		t.Errorf("unexpected references for source: %+v", resp)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "Go Notes", "Go is a statically typed language.")

	w := do(t, router, http.MethodGet, "/search?q=statically", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) == 0 {
		t.Error("expected at least 1 search result")
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("search without q = %d, want 400", w.Code)
	}
}

func TestGraph_ConnectThenDisconnect(t *testing.T) {
	notifier := &recordingNotifier{}
	svc, router := testEnvWith(t, RouterConfig{Notifier: notifier})
	a := createNote(t, router, "A", "")
	b := createNote(t, router, "B", "")

	w := do(t, router, http.MethodPost, "/graph/edges", ConnectRequest{Source: a.ID, Target: b.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("connect = %d, body = %s", w.Code, w.Body.String())
	}
	var edge graph.Edge
	_ = json.Unmarshal(w.Body.Bytes(), &edge)
	if edge.ID != graph.EdgeID(a.ID, b.ID, graph.DefaultSourceAnchor, graph.DefaultTargetAnchor) {
		t.Errorf("edge id = %q", edge.ID)
	}

	d, _ := svc.GetNote(context.Background(), a.ID)
	if d.Content != reference.Encode(b.ID, "B") {
		t.Errorf("source content = %q", d.Content)
	}

	v := getGraph(t, router, "")
	if len(v.Nodes) != 2 || len(v.Edges) != 1 || v.Edges[0].ID != edge.ID {
		t.Fatalf("graph after connect = %+v", v)
	}

	w = do(t, router, http.MethodDelete, "/graph/edges/"+edge.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("disconnect = %d, body = %s", w.Code, w.Body.String())
	}
	d, _ = svc.GetNote(context.Background(), a.ID)
	if d.Content != "" {
		t.Errorf("source content after disconnect = %q", d.Content)
	}
	if v := getGraph(t, router, ""); len(v.Edges) != 0 {
		t.Errorf("edges after disconnect = %+v", v.Edges)
	}

	want := []string{"edge.connected", "edge.disconnected"}
	if got := notifier.Kinds(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestGraph_ConnectErrors(t *testing.T) {
	_, router := testEnv(t, "")
	a := createNote(t, router, "A", "")

	cases := []struct {
		name string
		req  ConnectRequest
		want int
	}{
		{"missing target", ConnectRequest{Source: a.ID}, http.StatusBadRequest},
		{"unknown target", ConnectRequest{Source: a.ID, Target: "ffff"}, http.StatusNotFound},
		{"self", ConnectRequest{Source: a.ID, Target: a.ID}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/graph/edges", tc.req)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tc.want, w.Body.String())
			}
		})
	}

	w := do(t, router, http.MethodDelete, "/graph/edges/edge-x-y-source-bottom-target-top", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("disconnect unknown edge = %d, want 404", w.Code)
	}
}

func TestGraph_DisconnectManualAnchorEdge(t *testing.T) {
	svc, router := testEnv(t, "")
	a := createNote(t, router, "A", "")
	b := createNote(t, router, "B", "")

	w := do(t, router, http.MethodPost, "/graph/edges", ConnectRequest{
		Source: a.ID, Target: b.ID, SourceAnchor: "source-right", TargetAnchor: "target-left",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("connect = %d, body = %s", w.Code, w.Body.String())
	}
	var edge graph.Edge
	_ = json.Unmarshal(w.Body.Bytes(), &edge)
	if edge.ID != graph.EdgeID(a.ID, b.ID, "source-right", "target-left") {
		t.Fatalf("edge id = %q", edge.ID)
	}

	w = do(t, router, http.MethodDelete, "/graph/edges/"+edge.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("disconnect with returned id = %d, body = %s", w.Code, w.Body.String())
	}
	if d, _ := svc.GetNote(context.Background(), a.ID); d.Content != "" {
		t.Errorf("source content after disconnect = %q", d.Content)
	}
	if v := getGraph(t, router, ""); len(v.Edges) != 0 {
		t.Errorf("edges after disconnect = %+v", v.Edges)
	}
}

func TestGraph_ConnectToExternallyWrittenNotes(t *testing.T) {
	svc, store, db := testutil.TestService(t)
	router := NewRouter(svc, RouterConfig{Graph: GraphSettings{Viewport: layout.DefaultViewport, Layout: layout.Circular}})
	a := createNote(t, router, "A", "")

	external := map[string][]byte{
		// No frontmatter: the file name is not a usable id.
		"Meeting Notes.md": []byte("# Meeting Notes\n"),
		// Explicit id that no reference token can carry.
		"legacy.md": []byte("---\nid: Legacy Note\ntitle: Legacy\n---\n"),
	}
	for p, data := range external {
		if err := store.Write(p, data); err != nil {
			t.Fatal(err)
		}
		if err := index.IndexFile(db, p, data); err != nil {
			t.Fatal(err)
		}
	}

	var meetingID string
	for _, n := range getGraph(t, router, "").Nodes {
		if n.Label == "Meeting Notes" {
			meetingID = n.ID
		}
	}
	if !reference.ValidID(meetingID) {
		t.Fatalf("meeting note id = %q", meetingID)
	}

	w := do(t, router, http.MethodPost, "/graph/edges", ConnectRequest{Source: a.ID, Target: meetingID})
	if w.Code != http.StatusCreated {
		t.Fatalf("connect = %d, body = %s", w.Code, w.Body.String())
	}
	if v := getGraph(t, router, ""); len(v.Edges) != 1 || v.Edges[0].Target != meetingID {
		t.Errorf("edges after reload = %+v", v.Edges)
	}

	w = do(t, router, http.MethodPost, "/graph/edges", ConnectRequest{Source: a.ID, Target: "Legacy Note"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("connect to unreferenceable id = %d, want 400", w.Code)
	}
	if d, _ := svc.GetNote(context.Background(), a.ID); len(reference.ExtractIDs(d.Content)) != 1 {
		t.Errorf("source content = %q", d.Content)
	}
}

func TestGraph_MoveNodeHonouredForMatchingLayout(t *testing.T) {
	_, router := testEnv(t, "")
	a := createNote(t, router, "A", "")
	createNote(t, router, "B", "")

	w := do(t, router, http.MethodPut, "/graph/nodes/"+a.ID+"/position", MoveRequest{X: 42, Y: 24, Layout: "grid"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("move = %d, body = %s", w.Code, w.Body.String())
	}

	v := getGraph(t, router, "?layout=grid")
	if v.Nodes[0].ID != a.ID || v.Nodes[0].Position != (graph.Position{X: 42, Y: 24}) {
		t.Errorf("grid position = %+v", v.Nodes[0])
	}

	v = getGraph(t, router, "?layout=vertical&width=1000&height=800")
	if v.Nodes[0].Position != (graph.Position{X: 250, Y: 0}) {
		t.Errorf("vertical position should ignore the grid placement, got %+v", v.Nodes[0].Position)
	}
}

func TestGraph_ApplyLayout(t *testing.T) {
	svc, router := testEnv(t, "")
	a := createNote(t, router, "A", "")
	createNote(t, router, "B", "")
	createNote(t, router, "C", "")

	do(t, router, http.MethodPut, "/graph/nodes/"+a.ID+"/position", MoveRequest{X: 1, Y: 1, Layout: "grid"})

	w := do(t, router, http.MethodPost, "/graph/layout", LayoutRequest{Layout: "grid", Width: 1000, Height: 800})
	if w.Code != http.StatusOK {
		t.Fatalf("apply layout = %d, body = %s", w.Code, w.Body.String())
	}
	var v GraphView
	_ = json.Unmarshal(w.Body.Bytes(), &v)
	if v.Layout != layout.Grid || len(v.Nodes) != 3 {
		t.Fatalf("view = %+v", v)
	}
	if v.Nodes[0].Position != (graph.Position{X: 0, Y: 0}) || v.Nodes[2].Position != (graph.Position{X: 0, Y: 200}) {
		t.Errorf("grid positions = %+v", v.Nodes)
	}

	notes, err := svc.ListNotes(context.Background(), models.Scope{})
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range notes {
		if n.HasPosition() || n.LayoutType != "grid" {
			t.Errorf("note %s not cleared: %+v", n.ID, n)
		}
	}

	w = do(t, router, http.MethodPost, "/graph/layout", LayoutRequest{Layout: "spiral"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown layout = %d, want 400", w.Code)
	}
}

func TestGraph_UnknownLayoutQuery(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/graph?layout=spiral", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("graph with unknown layout = %d, want 400", w.Code)
	}
}

func TestGraph_Select(t *testing.T) {
	_, router := testEnv(t, "")
	a := createNote(t, router, "A", "")
	b := createNote(t, router, "B", "")
	if w := do(t, router, http.MethodPost, "/graph/edges", ConnectRequest{Source: a.ID, Target: b.ID}); w.Code != http.StatusCreated {
		t.Fatalf("connect = %d", w.Code)
	}

	v := getGraph(t, router, "?select="+b.ID)
	if v.Selection.NodeID != b.ID || v.Selection.EdgeID != "" {
		t.Errorf("node selection = %+v", v.Selection)
	}

	edgeID := graph.EdgeID(a.ID, b.ID, graph.DefaultSourceAnchor, graph.DefaultTargetAnchor)
	v = getGraph(t, router, "?select="+edgeID)
	if v.Selection.EdgeID != edgeID || v.Selection.NodeID != "" {
		t.Errorf("edge selection = %+v", v.Selection)
	}

	if w := do(t, router, http.MethodGet, "/graph?select=nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown selection = %d, want 404", w.Code)
	}
}

func TestGraph_MutationsRateLimited(t *testing.T) {
	_, router := testEnvWith(t, RouterConfig{Limiter: rate.NewLimiter(rate.Every(time.Hour), 1)})
	a := createNote(t, router, "A", "")

	move := MoveRequest{X: 1, Y: 1, Layout: "circular"}
	if w := do(t, router, http.MethodPut, "/graph/nodes/"+a.ID+"/position", move); w.Code != http.StatusNoContent {
		t.Fatalf("first move = %d", w.Code)
	}
	w := do(t, router, http.MethodPut, "/graph/nodes/"+a.ID+"/position", move)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second move = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	// Reads are not limited.
	if w := do(t, router, http.MethodGet, "/graph", nil); w.Code != http.StatusOK {
		t.Errorf("graph read = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodGet, "/notes", nil, "Authorization", "Bearer secret123")
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodPost, "/graph/layout", LayoutRequest{Layout: "grid"}, "Authorization", "Bearer wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusOK {
		t.Errorf("auth disabled = %d, want 200", w.Code)
	}
}

// sseStub writes headers and blocks until the request context is done.
var sseStub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWith(t, RouterConfig{AuthEnabled: true, Token: "tok", Events: sseStub})
	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE without token = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWith(t, RouterConfig{AuthEnabled: true, Token: "tok", Events: sseStub})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}
