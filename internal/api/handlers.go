package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/controller"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc      *noteservice.Service
	graph    GraphSettings
	notifier controller.Notifier
	logger   *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service, graph GraphSettings, notifier controller.Notifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, graph: graph, notifier: notifier, logger: logger}
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err)
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes with optional pagination and filtering
//	@Tags			notes
//	@Produce		json
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Param			notebook	query		string	false	"Filter by notebook"
//	@Param			trashed		query		bool	false	"Include trashed notes"
//	@Param			archived	query		bool	false	"Include archived notes"
//	@Param			sort		query		string	false	"Sort field"	Enums(updated_at, created_at, title)
//	@Success		200			{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListPage(r.Context(), index.ListQuery{
		Scope: models.Scope{
			NotebookID:      q.Get("notebook"),
			IncludeTrashed:  queryBool(r, "trashed"),
			IncludeArchived: queryBool(r, "archived"),
		},
		Limit:  limit,
		Offset: offset,
		Sort:   q.Get("sort"),
	})
	if err != nil {
		writeError(w, h.logger, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note by id
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	note, err := h.svc.GetNote(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, h.logger, "create note", invalid(err))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), noteservice.CreateInput{
		Title:      req.Title,
		Content:    req.Content,
		NotebookID: req.NotebookID,
	})
	if err != nil {
		writeError(w, h.logger, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PATCH /api/notes/{id}.
//
//	@Summary		Patch a note with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"Note id"
//	@Param			If-Match	header		string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body		UpdateNoteRequest	true	"Fields to change"
//	@Success		200			{object}	models.Note
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [patch]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, h.logger, "update note", invalid(err))
		return
	}

	patch := models.NotePatch{
		Title:      req.Title,
		Content:    req.Content,
		NotebookID: req.NotebookID,
		IsTrashed:  req.IsTrashed,
		IsArchived: req.IsArchived,
		// Strip surrounding quotes if present (standard ETag format).
		IfMatch: strings.Trim(r.Header.Get("If-Match"), `"`),
	}
	if p := req.Position; p != nil {
		patch.Placement = &models.Placement{X: p.X, Y: p.Y, Layout: p.Layout}
	}

	note, err := h.svc.UpdateNote(r.Context(), id, patch)
	if err != nil {
		writeError(w, h.logger, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Success		204	"Note deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.DeleteNote(r.Context(), id); err != nil {
		writeError(w, h.logger, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// References handles GET /api/notes/{id}/references.
//
//	@Summary		Outgoing references and backlinks of a note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	ReferencesResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/references [get]
func (h *Handler) References(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	refs, err := h.svc.References(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "references", err)
		return
	}
	bl, err := h.svc.Backlinks(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, ReferencesResponse{References: refs, Backlinks: bl})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		h.logger.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
