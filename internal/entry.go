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

	"github.com/starford/ambient/internal/api"
	"github.com/starford/ambient/internal/mcpserver"
	"github.com/starford/ambient/internal/models"
	"github.com/starford/ambient/internal/sse"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	cfg := app.config
	logger := app.logger
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_dir", cfg.Storage.DataDir),
		slog.String("sqlite_driver", cfg.SQLite.Driver),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	stores := OpenStores(cfg, logger, Hooks{
		TranscriptSaved: func(rec models.TranscriptRecord) {
			broker.PublishChange("transcript", "created", rec)
		},
		TodoChanged: func(kind, id string) {
			broker.PublishChange("todo", kind, map[string]string{"id": id})
		},
		CaptureChanged: func(kind string, c models.Capture) {
			broker.PublishChange("capture", kind, c)
		},
	})
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Error("close stores", slog.String("error", err.Error()))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newRouter(cfg, stores, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if stores.Captures != nil {
		captures := stores.Captures

		// Drop entries whose files are removed behind our back.
		g.Go(func() error {
			if err := captures.Watch(gCtx); err != nil {
				logger.Warn("capture watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})

		// Periodic retention purge.
		if cfg.Captures.PurgeInterval > 0 {
			g.Go(func() error {
				ticker := time.NewTicker(cfg.Captures.PurgeInterval)
				defer ticker.Stop()
				for {
					select {
					case <-gCtx.Done():
						return nil
					case <-ticker.C:
						if n := captures.PurgeOldCaptures(cfg.Captures.RetentionDays); n > 0 {
							logger.Info("purged old captures", slog.Int("count", n))
						}
					}
				}
			})
		}
	}

	// Start HTTP server.
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

		logger.Info("Shutting down server...")

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

// errShutdown cancels the group so background workers exit with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio until the client disconnects.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	slog.SetDefault(app.logger)

	stores := OpenStores(app.config, app.logger, Hooks{})
	defer func() {
		if err := stores.Close(); err != nil {
			app.logger.Error("close stores", slog.String("error", err.Error()))
		}
	}()

	var captures mcpserver.Captures
	if stores.Captures != nil {
		captures = stores.Captures
	}

	srv := mcpserver.New(stores.Transcripts, stores.Tasks, captures)
	app.logger.Info("MCP server listening on stdio")
	return srv.ServeStdio()
}

// newRouter builds the top-level router: health checks plus the API
// under /api.
func newRouter(cfg *Config, stores *Stores, broker *sse.Broker) chi.Router {
	deps := api.Deps{
		Transcripts:   stores.Transcripts,
		Tasks:         stores.Tasks,
		RetentionDays: cfg.Captures.RetentionDays,
	}
	if stores.Captures != nil {
		deps.Captures = stores.Captures
	}
	apiRouter := api.NewRouter(deps, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !stores.Transcripts.Available() || !stores.Tasks.Available() || stores.Captures == nil {
			writeStatus(w, http.StatusServiceUnavailable, "degraded")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}
