// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notegraph/internal/api"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/mcpserver"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/sse"
	"github.com/starford/notegraph/internal/storage"
)

// runtime holds the components shared by the HTTP and MCP entry points.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  storage.Provider
	db     *index.DB
	svc    *noteservice.Service
	broker *sse.Broker
}

func (rt *runtime) close() {
	rt.broker.Close()
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close index failed", slog.String("error", err.Error()))
	}
}

// watch re-indexes external vault edits and forwards them to SSE clients.
func (rt *runtime) watch(ctx context.Context) error {
	err := index.Watch(ctx, rt.db, rt.store, rt.cfg.Vault.Path, rt.logger, func(kind, path string) {
		rt.broker.PublishNoteEvent(kind, path)
	})
	if err != nil {
		rt.logger.Error("watcher stopped", slog.String("error", err.Error()))
	}
	return nil
}

func setup(opts ...Option) (*runtime, error) {
	app := &application{logOutput: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("default_layout", string(cfg.Graph.Layout())),
		slog.Bool("live_titles", cfg.Graph.LiveTitles),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	return &runtime{
		cfg:    cfg,
		logger: logger,
		store:  store,
		db:     db,
		svc:    noteservice.NewService(store, db, noteservice.WithLiveTitles(cfg.Graph.LiveTitles)),
		broker: sse.NewBroker(cfg.Graph.EventThrottle),
	}, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts...)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg, logger := rt.cfg, rt.logger

	apiRouter := api.NewRouter(rt.svc, api.RouterConfig{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      rt.broker,
		Notifier:    rt.broker,
		Graph: api.GraphSettings{
			Viewport: cfg.Graph.Viewport(),
			Layout:   cfg.Graph.Layout(),
		},
		Limiter: cfg.App.RateLimit.Limiter(),
		Logger:  logger,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rt.watch(gCtx)
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio until stdin closes. The vault
// watcher keeps the index fresh meanwhile.
func RunMCP(ctx context.Context, opts ...Option) error {
	rt, err := setup(append([]Option{WithLogOutput(os.Stderr)}, opts...)...)
	if err != nil {
		return err
	}
	defer rt.close()

	srv := mcpserver.New(rt.svc,
		mcpserver.WithGraphDefaults(rt.cfg.Graph.Layout(), rt.cfg.Graph.Viewport()),
		mcpserver.WithNotifier(rt.broker),
		mcpserver.WithLogger(rt.logger),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.watch(gCtx)
	})
	g.Go(func() error {
		defer cancel()
		rt.logger.Info("Serving MCP over stdio")
		if err := srv.ServeStdio(); err != nil {
			return fmt.Errorf("mcp server error: %w", err)
		}
		return nil
	})

	return g.Wait()
}
