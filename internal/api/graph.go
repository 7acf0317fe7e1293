package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/controller"
	"github.com/starford/notegraph/internal/layout"
	"github.com/starford/notegraph/internal/models"
)

// GraphSettings are the graph defaults used when a request does not carry
// its own viewport or layout.
type GraphSettings struct {
	Viewport layout.Viewport
	Layout   layout.Type
}

// openGraph builds a controller over the notes of notebook and loads it.
// The graph is recomputed from the repository on every request.
func (h *Handler) openGraph(ctx context.Context, notebook string, t layout.Type, vp layout.Viewport) (*controller.Controller, error) {
	c := controller.New(h.svc,
		controller.WithScope(models.Scope{NotebookID: notebook}),
		controller.WithLayout(t),
		controller.WithViewport(vp),
		controller.WithNotifier(h.notifier),
		controller.WithLogger(h.logger),
	)
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// viewport merges the requested size into the configured one. Missing or
// non-positive dimensions keep the default.
func (h *Handler) viewport(width, height float64) layout.Viewport {
	vp := h.graph.Viewport
	if width > 0 {
		vp.Width = width
	}
	if height > 0 {
		vp.Height = height
	}
	return vp
}

func (h *Handler) layoutOrDefault(s string) (layout.Type, error) {
	if s == "" {
		return h.graph.Layout, nil
	}
	return layout.ParseType(s)
}

func queryFloat(r *http.Request, key string) float64 {
	v, _ := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	return v
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the reference graph with positioned nodes
//	@Tags			graph
//	@Produce		json
//	@Param			notebook	query		string	false	"Restrict to a notebook"
//	@Param			layout		query		string	false	"Layout strategy"	Enums(circular, grid, horizontal, vertical)
//	@Param			width		query		number	false	"Viewport width"
//	@Param			height		query		number	false	"Viewport height"
//	@Param			select		query		string	false	"Node or edge id to mark as selected"
//	@Success		200			{object}	GraphView
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	t, err := h.layoutOrDefault(r.URL.Query().Get("layout"))
	if err != nil {
		writeError(w, h.logger, "graph", err)
		return
	}
	vp := h.viewport(queryFloat(r, "width"), queryFloat(r, "height"))

	c, err := h.openGraph(r.Context(), r.URL.Query().Get("notebook"), t, vp)
	if err != nil {
		writeError(w, h.logger, "graph", err)
		return
	}
	if id := r.URL.Query().Get("select"); id != "" {
		if !c.SelectNode(id) && !c.SelectEdge(id) {
			writeError(w, h.logger, "graph", fmt.Errorf("select %s: %w", id, apperr.ErrNotFound))
			return
		}
	}
	writeJSON(w, http.StatusOK, c.View())
}

// Connect handles POST /api/graph/edges.
//
//	@Summary		Connect two notes
//	@Description	Appends a reference to the target at the end of the source note.
//	@Tags			graph
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ConnectRequest	true	"Edge to create"
//	@Success		201		{object}	graph.Edge
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph/edges [post]
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, h.logger, "connect", invalid(err))
		return
	}

	c, err := h.openGraph(r.Context(), req.Notebook, h.graph.Layout, h.graph.Viewport)
	if err != nil {
		writeError(w, h.logger, "connect", err)
		return
	}
	edge, err := c.Connect(r.Context(), req.Source, req.Target, req.SourceAnchor, req.TargetAnchor)
	if err != nil {
		writeError(w, h.logger, "connect", err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

// Disconnect handles DELETE /api/graph/edges/{edgeID}.
//
//	@Summary		Disconnect two notes
//	@Description	Removes every reference from the edge source to its target.
//	@Tags			graph
//	@Param			edgeID		path	string	true	"Edge id"
//	@Param			notebook	query	string	false	"Notebook the graph is scoped to"
//	@Success		204			"Edge removed"
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph/edges/{edgeID} [delete]
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	c, err := h.openGraph(r.Context(), r.URL.Query().Get("notebook"), h.graph.Layout, h.graph.Viewport)
	if err != nil {
		writeError(w, h.logger, "disconnect", err)
		return
	}
	if err := c.DisconnectByID(r.Context(), chi.URLParam(r, "edgeID")); err != nil {
		writeError(w, h.logger, "disconnect", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveNode handles PUT /api/graph/nodes/{id}/position.
//
//	@Summary		Persist a dragged node position
//	@Tags			graph
//	@Accept			json
//	@Param			id		path	string		true	"Note id"
//	@Param			body	body	MoveRequest	true	"New position"
//	@Success		204		"Position stored"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph/nodes/{id}/position [put]
func (h *Handler) MoveNode(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, h.logger, "move node", invalid(err))
		return
	}
	t := layout.Type(req.Layout)

	c, err := h.openGraph(r.Context(), req.Notebook, t, h.graph.Viewport)
	if err != nil {
		writeError(w, h.logger, "move node", err)
		return
	}
	if err := c.MoveNode(r.Context(), chi.URLParam(r, "id"), req.X, req.Y, t); err != nil {
		writeError(w, h.logger, "move node", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyLayout handles POST /api/graph/layout.
//
//	@Summary		Switch layout and clear stored positions
//	@Tags			graph
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LayoutRequest	true	"Layout to apply"
//	@Success		200		{object}	GraphView
//	@Failure		400		{object}	errResponse
//	@Failure		500		{object}	errResponse	"Some notes may already be cleared"
//	@Security		BearerAuth
//	@Router			/graph/layout [post]
func (h *Handler) ApplyLayout(w http.ResponseWriter, r *http.Request) {
	var req LayoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, h.logger, "apply layout", invalid(err))
		return
	}
	vp := h.viewport(req.Width, req.Height)

	c, err := h.openGraph(r.Context(), req.Notebook, h.graph.Layout, vp)
	if err != nil {
		writeError(w, h.logger, "apply layout", err)
		return
	}
	if err := c.ApplyLayout(r.Context(), layout.Type(req.Layout)); err != nil {
		writeError(w, h.logger, "apply layout", err)
		return
	}
	writeJSON(w, http.StatusOK, c.View())
}
