// Package web serves the run history over a read-only JSON API.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/spotmatch/internal/debug"
	"github.com/spotmatch/internal/web/handlers"
	"github.com/spotmatch/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     *Config
	store      handlers.RunStore
	httpServer *http.Server
	router     *mux.Router
}

// NewServer creates a new web server instance
func NewServer(config *Config, store handlers.RunStore) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	server := &Server{
		config: config,
		store:  store,
	}

	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	runsHandler := &handlers.RunsHandler{Store: s.store, Started: time.Now()}

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", runsHandler.Health).Methods("GET")
	api.HandleFunc("/runs", runsHandler.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", runsHandler.GetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/correlations", runsHandler.GetCorrelations).Methods("GET")
	api.HandleFunc("/runs/{id}/proposals", runsHandler.GetProposals).Methods("GET")
	api.HandleFunc("/runs/{id}/geojson", runsHandler.GetGeoJSON).Methods("GET")

	// preflight requests are answered by the CORS middleware
	api.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	s.router.Use(middleware.CORS(s.config.AllowedOrigins))
	s.router.Use(middleware.RequestLogging())
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		debug.Logger().Info().Str("addr", s.httpServer.Addr).Msg("starting server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	debug.Logger().Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	debug.Logger().Info().Msg("server stopped")
	return nil
}
