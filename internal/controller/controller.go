// Package controller applies user edits on the reference graph (connect,
// disconnect, move, relayout) by rewriting note content and placement through
// a note repository, and keeps the in-memory graph in step with what was
// persisted.
//
// Every operation persists first and touches in-memory state only after the
// repository call succeeded. Failed operations are logged, returned to the
// caller and never retried.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/graph"
	"github.com/starford/notegraph/internal/layout"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/reference"
)

// Graph event kinds published through the Notifier.
const (
	EventEdgeConnected    = "edge.connected"
	EventEdgeDisconnected = "edge.disconnected"
	EventNodeMoved        = "node.moved"
	EventLayoutApplied    = "layout.applied"
)

// Repository is the note persistence the controller writes through.
type Repository interface {
	ListNotes(ctx context.Context, scope models.Scope) ([]models.Note, error)
	UpdateNote(ctx context.Context, id string, patch models.NotePatch) (*models.Note, error)
}

// Notifier receives graph events after successful mutations. Implementations
// must not block.
type Notifier interface {
	PublishGraphEvent(kind string, data any)
}

// Selection is the currently selected node or edge. At most one is set.
type Selection struct {
	NodeID string `json:"node_id,omitempty"`
	EdgeID string `json:"edge_id,omitempty"`
}

// View is a snapshot of the controller state for rendering.
type View struct {
	Layout    layout.Type     `json:"layout"`
	Viewport  layout.Viewport `json:"viewport"`
	Nodes     []graph.Node    `json:"nodes"`
	Edges     []graph.Edge    `json:"edges"`
	Selection Selection       `json:"selection"`
}

// Controller owns one rendered graph. Operations are serialised.
type Controller struct {
	repo     Repository
	notifier Notifier
	logger   *slog.Logger
	scope    models.Scope
	viewport layout.Viewport
	layout   layout.Type

	mu        sync.Mutex
	notes     []models.Note
	byID      map[string]*models.Note
	nodes     []graph.Node
	nodeIdx   map[string]int
	edges     *graph.EdgeSet
	selection Selection
}

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier sets the event sink.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithScope restricts the graph to a notebook.
func WithScope(s models.Scope) Option {
	return func(c *Controller) { c.scope = s }
}

// WithViewport sets the canvas size used by the layout formulas.
func WithViewport(vp layout.Viewport) Option {
	return func(c *Controller) { c.viewport = vp }
}

// WithLayout sets the initial layout strategy.
func WithLayout(t layout.Type) Option {
	return func(c *Controller) { c.layout = t }
}

// New creates a controller. Call Load before anything else.
func New(repo Repository, opts ...Option) *Controller {
	c := &Controller{
		repo:     repo,
		logger:   slog.Default(),
		viewport: layout.DefaultViewport,
		layout:   layout.Default,
		edges:    graph.NewEdgeSet(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Graphs never include trashed or archived notes.
	c.scope.IncludeTrashed = false
	c.scope.IncludeArchived = false
	return c
}

// Load fetches the notes in scope and rebuilds the graph from scratch.
func (c *Controller) Load(ctx context.Context) error {
	notes, err := c.repo.ListNotes(ctx, c.scope)
	if err != nil {
		return fmt.Errorf("controller: load notes: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.notes = graph.Eligible(notes)
	c.byID = graph.Index(c.notes)
	c.edges = graph.NewEdgeSet(graph.BuildEdges(c.notes)...)
	c.rebuildNodes()
	if c.selection.NodeID != "" && c.byID[c.selection.NodeID] == nil {
		c.selection.NodeID = ""
	}
	if c.selection.EdgeID != "" && !c.edges.Has(c.selection.EdgeID) {
		c.selection.EdgeID = ""
	}
	return nil
}

// Connect appends a reference to target in the source note, persists it,
// and adds the edge for the given anchors. Empty anchors use the defaults.
func (c *Controller) Connect(ctx context.Context, sourceID, targetID, sourceAnchor, targetAnchor string) (graph.Edge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	src, tgt := c.byID[sourceID], c.byID[targetID]
	if src == nil || tgt == nil {
		return graph.Edge{}, fmt.Errorf("controller: connect %s -> %s: %w", sourceID, targetID, apperr.ErrNotFound)
	}
	if sourceID == targetID {
		return graph.Edge{}, fmt.Errorf("controller: connect %s to itself: %w", sourceID, apperr.ErrInvalidArgument)
	}

	title := reference.SanitizeTitle(tgt.Title)
	if !reference.Valid(tgt.ID, title) {
		return graph.Edge{}, fmt.Errorf("controller: connect to %q: id cannot be referenced: %w", targetID, apperr.ErrInvalidArgument)
	}

	edge := graph.NewEdge(sourceID, targetID, sourceAnchor, targetAnchor)
	content := reference.Append(src.Content, tgt.ID, title)

	updated, err := c.repo.UpdateNote(ctx, src.ID, models.NotePatch{Content: &content})
	if err != nil {
		c.logger.Error("connect failed",
			slog.String("source", sourceID),
			slog.String("target", targetID),
			slog.String("error", err.Error()))
		return graph.Edge{}, fmt.Errorf("controller: connect: %w", err)
	}

	*src = *updated
	c.edges.Add(edge)
	c.publish(EventEdgeConnected, edge)
	return edge, nil
}

// Disconnect removes the references from edge.Source to edge.Target,
// persists the content, and drops every edge between the two notes.
func (c *Controller) Disconnect(ctx context.Context, edge graph.Edge) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnect(ctx, edge)
}

// DisconnectByID looks the edge up by id and disconnects it. An id with
// anchors other than the loaded edge's still matches the same note pair.
func (c *Controller) DisconnectByID(ctx context.Context, edgeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	edge, ok := c.edges.Resolve(edgeID)
	if !ok {
		return fmt.Errorf("controller: edge %s: %w", edgeID, apperr.ErrNotFound)
	}
	return c.disconnect(ctx, edge)
}

func (c *Controller) disconnect(ctx context.Context, edge graph.Edge) error {
	src := c.byID[edge.Source]
	if src == nil {
		return fmt.Errorf("controller: disconnect source %s: %w", edge.Source, apperr.ErrNotFound)
	}

	content := reference.Remove(src.Content, edge.Target)
	if content != src.Content {
		updated, err := c.repo.UpdateNote(ctx, src.ID, models.NotePatch{Content: &content})
		if err != nil {
			c.logger.Error("disconnect failed",
				slog.String("edge", edge.ID),
				slog.String("error", err.Error()))
			return fmt.Errorf("controller: disconnect: %w", err)
		}
		*src = *updated
	}

	removed := c.edges.RemoveFunc(func(e graph.Edge) bool {
		return e.Source == edge.Source && e.Target == edge.Target
	})
	for _, e := range removed {
		if c.selection.EdgeID == e.ID {
			c.selection.EdgeID = ""
		}
	}
	c.publish(EventEdgeDisconnected, edge)
	return nil
}

// MoveNode persists a dragged position under layoutType. Content and edges
// are not touched.
func (c *Controller) MoveNode(ctx context.Context, noteID string, x, y float64, layoutType layout.Type) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.byID[noteID]
	if n == nil {
		return fmt.Errorf("controller: move %s: %w", noteID, apperr.ErrNotFound)
	}

	patch := models.NotePatch{Placement: &models.Placement{X: &x, Y: &y, Layout: string(layoutType)}}
	updated, err := c.repo.UpdateNote(ctx, noteID, patch)
	if err != nil {
		c.logger.Error("move node failed",
			slog.String("note", noteID),
			slog.String("error", err.Error()))
		return fmt.Errorf("controller: move node: %w", err)
	}

	*n = *updated
	if i, ok := c.nodeIdx[noteID]; ok {
		c.nodes[i].Position = layout.Position(n, i, len(c.nodes), c.layout, c.viewport)
	}
	c.publish(EventNodeMoved, map[string]any{"id": noteID, "x": x, "y": y, "layout": layoutType})
	return nil
}

// ApplyLayout clears the stored position of every note in scope and records
// t as its layout, one note at a time, then repositions all nodes under t.
//
// A failure stops the pass: notes already written stay cleared, the rest
// keep their old placement, and the active layout is not switched.
func (c *Controller) ApplyLayout(ctx context.Context, t layout.Type) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.notes {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("controller: apply layout: %w", err)
		}
		id := c.notes[i].ID
		patch := models.NotePatch{Placement: &models.Placement{Layout: string(t)}}
		updated, err := c.repo.UpdateNote(ctx, id, patch)
		if err != nil {
			c.logger.Error("apply layout failed",
				slog.String("note", id),
				slog.String("layout", string(t)),
				slog.Int("cleared", i),
				slog.String("error", err.Error()))
			return fmt.Errorf("controller: apply layout: note %s: %w", id, err)
		}
		c.notes[i] = *updated
	}

	c.layout = t
	c.rebuildNodes()
	c.publish(EventLayoutApplied, map[string]any{"layout": t, "nodes": len(c.nodes)})
	return nil
}

// SelectNode selects the node with id, clearing any edge selection. An empty
// id clears the selection. It reports whether the node exists.
func (c *Controller) SelectNode(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id == "" {
		c.selection = Selection{}
		return true
	}
	if _, ok := c.nodeIdx[id]; !ok {
		return false
	}
	c.selection = Selection{NodeID: id}
	return true
}

// SelectEdge selects the edge with id, clearing any node selection.
func (c *Controller) SelectEdge(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id == "" {
		c.selection = Selection{}
		return true
	}
	if !c.edges.Has(id) {
		return false
	}
	c.selection = Selection{EdgeID: id}
	return true
}

// Selection returns the current selection.
func (c *Controller) Selection() Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection
}

// Layout returns the active layout strategy.
func (c *Controller) Layout() layout.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layout
}

// Edge looks up an edge by id.
func (c *Controller) Edge(id string) (graph.Edge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.edges.Get(id)
}

// Note returns a copy of the in-memory note with id.
func (c *Controller) Note(id string) (models.Note, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.byID[id]
	if n == nil {
		return models.Note{}, false
	}
	return *n, true
}

// View returns a snapshot of the graph.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	nodes := make([]graph.Node, len(c.nodes))
	copy(nodes, c.nodes)
	return View{
		Layout:    c.layout,
		Viewport:  c.viewport,
		Nodes:     nodes,
		Edges:     c.edges.Edges(),
		Selection: c.selection,
	}
}

// rebuildNodes recomputes nodes and their positions. Caller holds mu.
func (c *Controller) rebuildNodes() {
	c.nodes = graph.BuildNodes(c.notes)
	layout.Apply(c.nodes, c.layout, c.viewport)
	c.nodeIdx = make(map[string]int, len(c.nodes))
	for i, n := range c.nodes {
		c.nodeIdx[n.ID] = i
	}
}

func (c *Controller) publish(kind string, data any) {
	if c.notifier != nil {
		c.notifier.PublishGraphEvent(kind, data)
	}
}
