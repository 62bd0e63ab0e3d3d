// Package api provides the GraphQL API server for gqutils.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/99designs/gqlgen/graphql/handler/lru"
	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/pradyumna-smpx/gqutils/internal/engine"
	"github.com/pradyumna-smpx/gqutils/pkg/config"
)

const (
	// apqCacheSize is the number of persisted queries kept.
	apqCacheSize = 100

	// keepAliveInterval is the websocket keep-alive period.
	keepAliveInterval = 10 * time.Second
)

// Server is the GraphQL API server.
type Server struct {
	cfg        *config.Config
	engine     *engine.Engine
	httpServer *http.Server

	apq      *lru.LRU[string]
	upgrader websocket.Upgrader
}

// NewServer creates a new API server.
//
// Parameters:
//   - cfg (*config.Config): application configuration
//   - eng (*engine.Engine): engine serving the current schema
//
// Returns:
//   - *Server: initialized server
func NewServer(cfg *config.Config, eng *engine.Engine) *Server {
	s := &Server{
		cfg:    cfg,
		engine: eng,
		apq:    lru.New[string](apqCacheSize),
	}
	s.upgrader = websocket.Upgrader{
		Subprotocols:    []string{wsProtocol},
		CheckOrigin:     s.allowedOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return s
}

// Handler returns the HTTP handler serving every route.
//
// Returns:
//   - http.Handler: the route multiplexer
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// GraphQL endpoint, upgraded to graphql-ws for subscriptions
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.serveWebsocket(w, r)
			return
		}
		s.serveHTTP(w, r)
	})

	// GraphQL playground (development)
	mux.Handle("/", playground.Handler("gqutils", "/graphql"))

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return mux
}

// Start starts the API server.
//
// Parameters:
//   - ctx (context.Context): context for shutdown
//
// Returns:
//   - error: nil on graceful shutdown, error on failure
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.GraphQLPort)
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	log.Info().
		Int("port", s.cfg.Server.GraphQLPort).
		Msg("starting GraphQL server")

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down GraphQL server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// StartMetrics starts the metrics server.
//
// Parameters:
//   - ctx (context.Context): context for shutdown
//
// Returns:
//   - error: nil on graceful shutdown, error on failure
func (s *Server) StartMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", s.cfg.Server.MetricsPort)
	metricsServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info().
		Int("port", s.cfg.Server.MetricsPort).
		Msg("starting metrics server")

	errCh := make(chan error, 1)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("metrics server error: %w", err)
	}
}

// allowedOrigin reports whether a browser origin may use the API. Requests
// without an Origin header are always allowed.
func (s *Server) allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
