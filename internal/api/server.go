package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-fuego/fuego"
	"github.com/go-fuego/fuego/option"
)

// Server represents the Fuego API server.
type Server struct {
	fuego   *fuego.Server
	deps    *Dependencies
	port    int
	version string
}

// Dependencies contains all service dependencies.
type Dependencies struct {
	Sessions SessionStore
	Tasks    TaskStore
	Manager  TransferManager
	// Stats is nil when the database is not postgres.
	Stats  StatsRepository
	Admins AdminChecker
}

// Config holds API server configuration.
type Config struct {
	Port        int
	Title       string
	Description string
	Version     string
}

// NewServer creates a new Fuego API server.
func NewServer(cfg *Config, deps *Dependencies) *Server {
	s := fuego.NewServer(
		fuego.WithAddr(fmt.Sprintf(":%d", cfg.Port)),
		fuego.WithEngineOptions(
			fuego.WithOpenAPIConfig(fuego.OpenAPIConfig{
				PrettyFormatJSON: true,
				DisableLocalSave: true,
				SwaggerURL:       "/docs",
				SpecURL:          "/openapi.json",
				UIHandler: func(specURL string) http.Handler {
					return ScalarHandler(specURL, cfg.Title, cfg.Description)
				},
			}),
		),
	)

	s.OpenAPI.Description().Info.Title = cfg.Title
	s.OpenAPI.Description().Info.Description = cfg.Description
	s.OpenAPI.Description().Info.Version = cfg.Version

	// Chi middleware works on fuego since both are net/http
	fuego.Use(s, middleware.RequestID)
	fuego.Use(s, middleware.RealIP)
	fuego.Use(s, middleware.Recoverer)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	srv := &Server{
		fuego:   s,
		deps:    deps,
		port:    cfg.Port,
		version: version,
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) registerRoutes() {
	fuego.Get(s.fuego, "/health", s.healthCheck,
		option.Summary("Health Check"),
		option.Description("Returns the health status and the number of transfers scanning"),
		option.Tags("System"),
	)

	// Sessions API
	sessionsGroup := fuego.Group(s.fuego, "/api/v1/sessions",
		option.Tags("Sessions"),
	)

	fuego.Get(sessionsGroup, "/", s.listSessions,
		option.Summary("List Sessions"),
		option.Description("Returns every session account in selection order"),
	)

	fuego.Post(sessionsGroup, "/", s.createSession,
		option.Summary("Add Session"),
		option.Description("Adds a session account from an exported session string"),
	)

	fuego.Get(sessionsGroup, "/stats", s.sessionStats,
		option.Summary("Session Pool Stats"),
		option.Description("Returns total, active, available and flood-waiting counts"),
	)

	fuego.Get(sessionsGroup, "/{id}", s.getSession,
		option.Summary("Get Session"),
		option.Description("Returns a single session account by ID"),
	)

	fuego.Patch(sessionsGroup, "/{id}", s.updateSession,
		option.Summary("Update Session"),
		option.Description("Changes the name, priority, session string or user ID"),
	)

	fuego.Delete(sessionsGroup, "/{id}", s.deleteSession,
		option.Summary("Delete Session"),
		option.Description("Removes a session account from the pool"),
	)

	fuego.Post(sessionsGroup, "/{id}/toggle", s.toggleSession,
		option.Summary("Toggle Session"),
		option.Description("Enables or disables a session account"),
	)

	fuego.Post(sessionsGroup, "/{id}/reset-flood", s.resetSessionFlood,
		option.Summary("Reset Flood Wait"),
		option.Description("Makes a flood-waiting session account available immediately"),
	)

	// Transfers API
	transfersGroup := fuego.Group(s.fuego, "/api/v1/transfers",
		option.Tags("Transfers"),
	)

	fuego.Post(transfersGroup, "/", s.startTransfer,
		option.Summary("Start Transfer"),
		option.Description("Records a transfer task for an administrator and starts scanning"),
	)

	fuego.Get(transfersGroup, "/", s.listTransfers,
		option.Summary("List Transfers"),
		option.Description("Returns an owner's latest transfer tasks"),
		option.Query("owner_id", "Telegram ID of the task owner (required)"),
		option.Query("limit", "Maximum tasks returned (default: 20, max: 100)"),
	)

	fuego.Get(transfersGroup, "/running", s.runningTransfers,
		option.Summary("Running Transfers"),
		option.Description("Returns the runs in progress in this process"),
	)

	fuego.Get(transfersGroup, "/{id}", s.getTransfer,
		option.Summary("Get Transfer"),
		option.Description("Returns a transfer task with its counters and cursor"),
	)

	fuego.Post(transfersGroup, "/{id}/resume", s.resumeTransfer,
		option.Summary("Resume Transfer"),
		option.Description("Resumes a paused transfer from its cursor"),
	)

	fuego.Post(transfersGroup, "/{id}/stop", s.stopTransfer,
		option.Summary("Stop Transfer"),
		option.Description("Stops a running transfer; it pauses at its last processed message"),
	)

	// Stats API
	fuego.Get(s.fuego, "/api/v1/stats", s.getStats,
		option.Summary("Get Statistics"),
		option.Description("Returns task, transfer, collection and session counters"),
		option.Tags("Analytics"),
	)
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.fuego.Run()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.fuego.Shutdown(ctx)
}

// Handler returns the router serving the registered API routes, for mounting
// under another router.
func (s *Server) Handler() http.Handler {
	return s.fuego.Mux
}

// MountDocsOn mounts the OpenAPI documentation routes (/docs, /openapi.json)
// on a Chi router.
func (s *Server) MountDocsOn(r interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}, title, description string) {
	scalarHandler := ScalarHandler("/openapi.json", title, description)
	r.Get("/docs", func(w http.ResponseWriter, req *http.Request) {
		scalarHandler.ServeHTTP(w, req)
	})

	r.Get("/openapi.json", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		spec := s.fuego.OpenAPI.Description()
		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	})
}
