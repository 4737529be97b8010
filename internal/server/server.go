// Package server wires the HTTP router, middleware and handlers together and
// runs the server with graceful shutdown.
package server

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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/fargate-executor/internal/auth"
	"github.com/sakif/fargate-executor/internal/executor"
	"github.com/sakif/fargate-executor/internal/handler"
	"github.com/sakif/fargate-executor/internal/middleware"
	sqliteRepo "github.com/sakif/fargate-executor/internal/repository/sqlite"
	"github.com/sakif/fargate-executor/internal/service"
)

// Config holds server configuration.
type Config struct {
	Port    int
	DBPath  string
	Backend string
	// JWTSecret enables bearer-token auth on /api when set.
	JWTSecret string
	// AllowedOrigins enables CORS for browser clients. Empty disables it.
	AllowedOrigins []string
	// ExecutionTimeout is the longest a single execution may take. The HTTP
	// write timeout is derived from it so responses are not cut off.
	ExecutionTimeout time.Duration
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB // owned by the server, closed on shutdown
}

// New opens the history database and builds the router around exec.
func New(cfg Config, logger *slog.Logger, exec executor.Executor) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(exec); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes configures middleware and routes:
//
//	GET  /healthz
//	POST /api/execute
//	GET  /api/executions
//	GET  /api/executions/{id}
func (s *Server) setupRoutes(exec executor.Executor) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	if len(s.config.AllowedOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	svc := service.NewExecutionService(exec, s.config.Backend, s.db, s.logger)
	executeHandler := handler.NewExecuteHandler(svc, s.logger)
	executionsHandler := handler.NewExecutionsHandler(svc, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.config.Backend, s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)

	var requireAuth func(http.Handler) http.Handler
	if s.config.JWTSecret != "" {
		tokens, err := auth.NewTokenService(s.config.JWTSecret)
		if err != nil {
			return err
		}
		requireAuth = auth.RequireAuth(tokens)
	} else {
		s.logger.Warn("JWT_SECRET not set, API is unauthenticated")
	}

	s.router.Route("/api", func(r chi.Router) {
		if requireAuth != nil {
			r.Use(requireAuth)
		}
		r.Post("/execute", executeHandler.HandleExecute)
		r.Get("/executions", executionsHandler.HandleList)
		r.Get("/executions/{id}", executionsHandler.HandleGet)
	})

	return nil
}

// Start runs the server until SIGINT or SIGTERM, then drains in-flight
// requests and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	// A Fargate run includes image pull and task start-up on top of the
	// execution timeout.
	writeTimeout := s.config.ExecutionTimeout + 2*time.Minute

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("backend", s.config.Backend),
			slog.String("database", s.config.DBPath),
			slog.Bool("auth", s.config.JWTSecret != ""),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Running executions block their requests, so give them the same
		// budget they were promised.
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
