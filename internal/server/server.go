// Package server exposes the agent host over HTTP. Inbound protocol calls
// arrive as JSON requests; outbound calls to the peer flow through the event
// bus and out over the SSE feed.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/opencode-ai/chathost/internal/config"
	"github.com/opencode-ai/chathost/internal/event"
	"github.com/opencode-ai/chathost/internal/host"
	"github.com/opencode-ai/chathost/internal/session"
	"github.com/opencode-ai/chathost/internal/transcript"
)

// Server is the HTTP front of the host.
type Server struct {
	config      *config.Config
	router      *chi.Mux
	httpSrv     *http.Server
	registry    *host.Registry
	coordinator *host.Coordinator
	sessions    *session.Registry
	bus         *event.Bus
	archive     *transcript.Archive
}

// New creates a server around an assembled host. The archive is optional;
// without one the transcript endpoints serve empty results.
func New(cfg *config.Config, registry *host.Registry, coordinator *host.Coordinator, sessions *session.Registry, bus *event.Bus, archive *transcript.Archive) *Server {
	s := &Server{
		config:      cfg,
		router:      chi.NewRouter(),
		registry:    registry,
		coordinator: coordinator,
		sessions:    sessions,
		bus:         bus,
		archive:     archive,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// No write timeout; the event feed holds connections open.
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
