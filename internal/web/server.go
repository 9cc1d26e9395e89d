// Package web is the HTTP front of the relay: it mounts the admin API, its
// documentation and the dashboard websocket on one chi router.
package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Config holds server configuration
type Config struct {
	Port int
	// AllowedOrigins defaults to any origin.
	AllowedOrigins []string
	DocsTitle      string
	DocsDesc       string
}

// API is the admin API mounted under /api and /health.
type API interface {
	Handler() http.Handler
	MountDocsOn(r interface {
		Get(pattern string, handlerFn http.HandlerFunc)
	}, title, description string)
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	config     *Config
	hub        *Hub

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates the front router. api and hub may be nil.
func NewServer(cfg *Config, api API, hub *Hub) *Server {
	srv := &Server{
		router: chi.NewRouter(),
		config: cfg,
		hub:    hub,
	}
	srv.setupMiddleware()
	srv.setupRoutes(api)
	return srv
}

func (s *Server) setupMiddleware() {
	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
}

func (s *Server) setupRoutes(api API) {
	if s.hub != nil {
		s.router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			ServeWs(s.hub, w, r)
		})
	}

	if api == nil {
		s.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok","version":"dev"}`))
		})
		return
	}

	h := api.Handler()
	s.router.Handle("/health", h)
	s.router.Handle("/api/*", h)

	title := s.config.DocsTitle
	if title == "" {
		title = "Relay API"
	}
	api.MountDocsOn(s.router, title, s.config.DocsDesc)
}

// Start listens on the configured port and serves until Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// BaseURL returns the server's base URL
func (s *Server) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Sprintf("http://%s", s.listener.Addr().String())
	}
	return fmt.Sprintf("http://localhost:%d", s.config.Port)
}

// Router returns the underlying Chi router for external route mounting.
func (s *Server) Router() *chi.Mux {
	return s.router
}
