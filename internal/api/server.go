package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/lockgate/internal/coordinator"
	"github.com/nerrad567/lockgate/internal/infrastructure/config"
	"github.com/nerrad567/lockgate/internal/infrastructure/logging"
	"github.com/nerrad567/lockgate/internal/lock"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller is the coordinator surface the API drives.
// Satisfied by *coordinator.Coordinator.
type Controller interface {
	Devices() []*lock.Device
	Device(id string) (*lock.Device, error)
	Health() coordinator.HealthStatus
	LastCycle() (coordinator.CycleReport, bool)
	Execute(ctx context.Context, id string, verb coordinator.Verb) error
	Refresh(ctx context.Context) ([]*lock.Device, error)
	RequestRefresh()
}

// HealthChecker is implemented by infrastructure clients (database, MQTT,
// InfluxDB) that report on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Coordinator Controller

	// Components are optional health checks reported by name on /health.
	Components map[string]HealthChecker

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware and WebSocket hub. The
// hub exists from New so it can be registered as a coordinator listener
// before Start.
//
// Thread Safety: All methods are safe for concurrent use.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	ctrl       Controller
	components map[string]HealthChecker
	version    string
	startTime  time.Time

	hub     *Hub
	tickets *ticketStore

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server. It is not listening until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		ctrl:       deps.Coordinator,
		components: deps.Components,
		version:    deps.Version,
		startTime:  time.Now(),
		hub:        NewHub(deps.Logger),
		tickets:    newTicketStore(),
	}
	s.hub.replay = s.replayState
	return s, nil
}

// Hub returns the WebSocket hub. It implements coordinator.Listener.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in the background.
//
// The hub and ticket cleanup run until Close or until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return srvCtx },
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())
	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close waits up to 10 seconds for in-flight requests, then closes
// remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	err := srv.Shutdown(ctx)
	// Cancelling after Shutdown lets in-flight verbs finish; websocket
	// connections are hijacked and closed by the hub.
	cancel()
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server is started.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
