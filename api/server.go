package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strand-ai/strand/internal/config"
	"github.com/strand-ai/strand/internal/log"
)

const shutdownTimeout = 10 * time.Second

// ServerConfig carries the dependencies of the HTTP server.
type ServerConfig struct {
	Logger   log.Logger
	Engine   TurnRunner
	Sessions SessionStore
	Config   *config.Config

	// Pool backs the readiness probe. Optional; without it readiness
	// reports ready unconditionally.
	Pool *pgxpool.Pool
}

// Server is the JSON API over the turn engine and session store.
type Server struct {
	handler http.Handler
	logger  log.Logger
	cfg     *config.Config
}

// NewServer wires the routes and middleware.
func NewServer(sc ServerConfig) (*Server, error) {
	if sc.Engine == nil {
		return nil, errors.New("turn engine is required")
	}
	if sc.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if sc.Config == nil {
		return nil, errors.New("config is required")
	}
	logger := sc.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	turns := &turnsHandler{
		engine:   sc.Engine,
		sessions: sc.Sessions,
		cfg:      sc.Config,
		logger:   logger,
	}
	sessions := &sessionsHandler{
		store:  sc.Sessions,
		cfg:    sc.Config,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/turns", turns.run)
	mux.HandleFunc("POST /api/sessions", sessions.create)
	mux.HandleFunc("GET /api/sessions", sessions.list)
	mux.HandleFunc("GET /api/sessions/{id}", sessions.get)
	mux.HandleFunc("PATCH /api/sessions/{id}", sessions.rename)
	mux.HandleFunc("DELETE /api/sessions/{id}", sessions.delete)
	mux.HandleFunc("GET /api/sessions/{id}/messages", sessions.messages)
	mux.HandleFunc("GET /api/sessions/{id}/notes", sessions.notes)
	mux.HandleFunc("POST /api/sessions/{id}/notes", sessions.addNote)
	mux.HandleFunc("DELETE /api/notes/{id}", sessions.deleteNote)

	handler := chain(mux,
		recoveryMiddleware(logger),
		loggingMiddleware(logger, sc.Config.Server.TrustProxy),
		corsMiddleware(sc.Config.Server.CORSOrigins),
	)

	// Probes stay outside the middleware chain so orchestrator polling
	// does not flood the request log.
	top := http.NewServeMux()
	top.HandleFunc("GET /health", health)
	top.Handle("GET /ready", readiness(sc.Pool, logger))
	top.Handle("/", handler)

	return &Server{handler: top, logger: logger, cfg: sc.Config}, nil
}

// Handler exposes the full routing tree, probes included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then drains in-flight requests.
// A blank addr falls back to the configured listen address.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = s.cfg.Server.Addr
	}
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: turn streams run for as long as the model
		// takes, and a fixed cap would sever them mid-answer.
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("http server draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
