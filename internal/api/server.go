package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/sleepgrind/internal/engine"
	"github.com/nerrad567/sleepgrind/internal/infrastructure/config"
	"github.com/nerrad567/sleepgrind/internal/infrastructure/logging"
	"github.com/nerrad567/sleepgrind/internal/script"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Server timeouts. Every response is small.
const (
	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
)

// RunSource provides the run snapshot served at /api/v1/run.
// *engine.Tracker implements it.
type RunSource interface {
	Snapshot() (engine.State, *engine.StepReport, bool)
}

// HealthCheck reports whether a component is usable.
type HealthCheck func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Runs    RunSource
	Scripts script.Repository

	// Gatherer backs /metrics. nil disables the route.
	Gatherer prometheus.Gatherer

	// Checks are reported by /api/v1/health, keyed by component name.
	Checks map[string]HealthCheck

	Version string
}

// Server is the HTTP status server.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	runs     RunSource
	scripts  script.Repository
	gatherer prometheus.Gatherer
	checks   map[string]HealthCheck
	version  string

	hub      *Hub
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Logger is required; Runs, Scripts and Gatherer enable routes
//
// Returns:
//   - *Server: Server ready to Start
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		runs:     deps.Runs,
		scripts:  deps.Scripts,
		gatherer: deps.Gatherer,
		checks:   deps.Checks,
		version:  deps.Version,
		hub:      NewHub(deps.Logger),
	}, nil
}

// Hub returns the WebSocket event hub. Register it as an engine observer
// to stream run events to clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in a background goroutine.
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close disconnects WebSocket clients and gracefully shuts down the API server, waiting up to 10 seconds
// for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	s.hub.closeAll()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
