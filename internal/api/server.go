// Package api provides the HTTP server for the scanner.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/narvanalabs/qrscan/internal/api/handlers"
	"github.com/narvanalabs/qrscan/internal/api/health"
	"github.com/narvanalabs/qrscan/internal/api/middleware"
	"github.com/narvanalabs/qrscan/internal/camera"
	"github.com/narvanalabs/qrscan/internal/history"
	"github.com/narvanalabs/qrscan/internal/logs"
	"github.com/narvanalabs/qrscan/pkg/config"
)

// Version is the current version of the server.
// This should be set at build time using ldflags.
var Version = "dev"

// Scanner is the scan controller as used by the HTTP surface.
type Scanner interface {
	handlers.ScannerService
	handlers.StatusFeed
	handlers.RecentResetter
}

// Deps are the services the server exposes.
type Deps struct {
	Scanner Scanner
	Events  *logs.EventLog
	History *history.ScanHistory
	Cameras handlers.CameraFeed
	Mounts  handlers.MountRegistry
	Capture camera.MediaCapture
}

// Server represents the HTTP server.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	deps          Deps
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates a new server with the given dependencies.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:   deps,
		config: cfg,
		logger: logger,
	}
	s.healthChecker = health.NewChecker(deps.Capture, deps.Scanner, Version)

	s.setupRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // feed connections stay open
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	if s.deps.Events != nil {
		r.Use(middleware.Recovery(s.logger, s.deps.Events))
	} else {
		r.Use(middleware.Recovery(s.logger, nil))
	}

	r.Get("/", s.servePage)
	r.Get("/health", s.healthChecker.Handler())

	r.Route("/api", func(r chi.Router) {
		// The feed is long-lived and must not inherit the request timeout.
		feedHandler := handlers.NewFeedHandler(s.deps.Scanner, s.deps.Events, s.deps.History, s.deps.Cameras, s.deps.Mounts, s.config.Scanner.MountID, s.logger)
		r.Get("/feed", feedHandler.Serve)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(60 * time.Second))

			scannerHandler := handlers.NewScannerHandler(s.deps.Scanner, s.logger)
			r.Route("/scanner", func(r chi.Router) {
				r.Get("/", scannerHandler.Get)
				r.Post("/start", scannerHandler.Start)
				r.Post("/stop", scannerHandler.Stop)
				r.Post("/mode", scannerHandler.Mode)
			})
			r.Get("/cameras", scannerHandler.Cameras)

			recordsHandler := handlers.NewRecordsHandler(s.deps.Events, s.deps.History, s.deps.Scanner)
			r.Get("/logs", recordsHandler.ListLogs)
			r.Delete("/logs", recordsHandler.ClearLogs)
			r.Get("/history", recordsHandler.ListHistory)
			r.Delete("/history", recordsHandler.ClearHistory)
		})
	})

	s.router = r
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting scanner server", "addr", s.httpServer.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down scanner server")
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
