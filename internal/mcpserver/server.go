// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notegraph tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/controller"
	"github.com/starford/notegraph/internal/graph"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/layout"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/noteservice"
)

// Server wraps the MCP server with notegraph tools.
type Server struct {
	mcp      *server.MCPServer
	svc      *noteservice.Service
	layout   layout.Type
	viewport layout.Viewport
	notifier controller.Notifier
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithGraphDefaults sets the layout and viewport used by get_graph when the
// caller does not choose one.
func WithGraphDefaults(t layout.Type, vp layout.Viewport) Option {
	return func(s *Server) {
		s.layout = t
		s.viewport = vp
	}
}

// WithNotifier forwards graph events from connect/disconnect tools.
func WithNotifier(n controller.Notifier) Option {
	return func(s *Server) { s.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a new MCP server with all notegraph tools registered.
func New(svc *noteservice.Service, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		layout:   layout.Default,
		viewport: layout.DefaultViewport,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		"notegraph",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note with its references and backlinks."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note and return its id. "+
			"To reference other notes inside content use the token format from "+
			"get_reference_format or the "+ReferenceFormatURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Description("Note content")),
		mcp.WithString("notebook", mcp.Description("Optional notebook id")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, one \"<id>\\t<title>\" per line."),
		mcp.WithString("notebook", mcp.Description("Optional notebook to list (empty for all)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that reference the specified note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Id of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Return the reference graph: positioned nodes and edges."),
		mcp.WithString("notebook", mcp.Description("Optional notebook to restrict the graph to")),
		mcp.WithString("layout", mcp.Description("circular, grid, horizontal or vertical")),
	), s.getGraph)

	s.mcp.AddTool(mcp.NewTool("connect_notes",
		mcp.WithDescription("Reference the target note from the source note. "+
			"Appends a reference token to the end of the source content."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Id of the note that gets the reference")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Id of the referenced note")),
	), s.connectNotes)

	s.mcp.AddTool(mcp.NewTool("disconnect_notes",
		mcp.WithDescription("Remove every reference to the target from the source note."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Id of the note holding the references")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Id of the referenced note")),
	), s.disconnectNotes)

	s.mcp.AddTool(mcp.NewTool("get_reference_format",
		mcp.WithDescription("Returns the inline reference token format. "+
			"Call this before writing content that links notes."),
	), s.getReferenceFormat)

	s.mcp.AddResource(
		mcp.NewResource(ReferenceFormatURI, "Reference Format",
			mcp.WithResourceDescription("Inline token format notes use to reference each other."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readReferenceFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func optionalString(req mcp.CallToolRequest, key string) string {
	if v, err := req.RequireString(key); err == nil {
		return v
	}
	return ""
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) openGraph(ctx context.Context, notebook string, t layout.Type) (*controller.Controller, error) {
	c := controller.New(s.svc,
		controller.WithScope(models.Scope{NotebookID: notebook}),
		controller.WithLayout(t),
		controller.WithViewport(s.viewport),
		controller.WithNotifier(s.notifier),
		controller.WithLogger(s.logger),
	)
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return toolError(err), nil
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	return jsonResult(results)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.GetNote(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return toolError(err), nil
	}
	return jsonResult(d)
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.CreateNote(ctx, noteservice.CreateInput{
		Title:      title,
		Content:    optionalString(req, "content"),
		NotebookID: optionalString(req, "notebook"),
	})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", d.ID)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := s.svc.ListNotes(ctx, models.Scope{NotebookID: optionalString(req, "notebook")})
	if err != nil {
		return toolError(err), nil
	}
	lines := make([]string, len(notes))
	for i, n := range notes {
		lines[i] = n.ID + "\t" + n.Title
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) getGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t := s.layout
	if name := optionalString(req, "layout"); name != "" {
		parsed, err := layout.ParseType(name)
		if err != nil {
			return toolError(err), nil
		}
		t = parsed
	}
	c, err := s.openGraph(ctx, optionalString(req, "notebook"), t)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(c.View())
}

func (s *Server) connectNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.openGraph(ctx, "", s.layout)
	if err != nil {
		return toolError(err), nil
	}
	edge, err := c.Connect(ctx, source, target, "", "")
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("connected: %s", edge.ID)), nil
}

func (s *Server) disconnectNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.openGraph(ctx, "", s.layout)
	if err != nil {
		return toolError(err), nil
	}
	if err := c.Disconnect(ctx, graph.NewEdge(source, target, "", "")); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("disconnected: %s -> %s", source, target)), nil
}

func (s *Server) getReferenceFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ReferenceFormatContract), nil
}

func (s *Server) readReferenceFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ReferenceFormatURI,
			MIMEType: "text/markdown",
			Text:     ReferenceFormatContract,
		},
	}, nil
}
