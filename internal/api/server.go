package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/adpulse/internal/service/insight"
)

// Server wraps the HTTP API over the insight service.
type Server struct {
	handlers *Handlers
	handler  http.Handler
	server   *http.Server
}

// NewServer creates the API server. db and redisClient are only used by
// the health endpoint and may be nil in tests.
func NewServer(svc *insight.Service, db *sql.DB, redisClient *redis.Client) *Server {
	handlers := NewHandlers(svc, NewHealthChecker(db, redisClient))
	return &Server{
		handlers: handlers,
		handler:  SetupRoutes(handlers),
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
