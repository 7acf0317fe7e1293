package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/starford/notegraph/internal/controller"
	"github.com/starford/notegraph/internal/noteservice"
)

// RouterConfig carries the collaborators and settings of the API router.
type RouterConfig struct {
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	// Notifier receives graph events from mutations. May be nil.
	Notifier controller.Notifier
	Graph    GraphSettings
	// Limiter throttles graph mutations. Nil disables limiting.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *noteservice.Service, cfg RouterConfig) chi.Router {
	h := NewHandler(svc, cfg.Graph, cfg.Notifier, cfg.Logger)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Route("/notes/{id}", func(r chi.Router) {
		r.Get("/", h.GetNote)
		r.Patch("/", h.UpdateNote)
		r.Delete("/", h.DeleteNote)
		r.Get("/references", h.References)
	})

	// Search.
	r.Get("/search", h.Search)

	// Graph.
	r.Route("/graph", func(r chi.Router) {
		r.Get("/", h.Graph)
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(cfg.Limiter))
			r.Post("/edges", h.Connect)
			r.Delete("/edges/{edgeID}", h.Disconnect)
			r.Put("/nodes/{id}/position", h.MoveNode)
			r.Post("/layout", h.ApplyLayout)
		})
	})

	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}
