package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/smartpot-core/internal/audit"
	"github.com/nerrad567/smartpot-core/internal/binding"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/config"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/logging"
	"github.com/nerrad567/smartpot-core/internal/live"
	"github.com/nerrad567/smartpot-core/internal/plant"
	"github.com/nerrad567/smartpot-core/internal/telemetry"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Binder performs binding operations. *binding.Manager satisfies it.
type Binder interface {
	Connect(ctx context.Context, flowerID, serial string) (*binding.Result, error)
	Disconnect(ctx context.Context, flowerID string) (*binding.Result, error)
	TransplantFlowerWithPot(ctx context.Context, flowerID, householdID string) (*binding.Result, error)
	TransplantFlowerWithoutPot(ctx context.Context, flowerID, householdID, assignTo string) (*binding.Result, error)
	TransplantFlowerToPot(ctx context.Context, flowerID, smartPotID string) (*binding.Result, error)
	TransplantPotWithFlower(ctx context.Context, smartPotID, householdID string) (*binding.Result, error)
	TransplantPotWithoutFlower(ctx context.Context, smartPotID, householdID, assignTo string) (*binding.Result, error)
	TransplantPotToFlower(ctx context.Context, smartPotID, flowerID string) (*binding.Result, error)
	Reconcile(ctx context.Context, dryRun bool) (*binding.Report, error)
}

// Ingester accepts device samples. *telemetry.Pipeline satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, sample telemetry.Sample) (*telemetry.Result, error)
}

// FlowerLookup resolves flowers and the households that own them.
// *plant.SQLiteRepository satisfies it.
type FlowerLookup interface {
	GetFlower(ctx context.Context, id string) (*plant.Flower, error)
	GetHousehold(ctx context.Context, id string) (*plant.Household, error)
}

// AuditLister pages through the binding audit trail.
// *audit.SQLiteRepository satisfies it.
type AuditLister interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// LiveRegistry tracks live connections. *live.Registry satisfies it.
type LiveRegistry interface {
	Register(userID, flowerID string, conn live.Conn)
	Release(userID string, conn live.Conn) bool
	Count() int
}

// HealthChecker is a component reported by the health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server. Audit and Checks are
// optional.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Security     config.SecurityConfig
	Logger       *logging.Logger
	Binder       Binder
	Ingester     Ingester
	Measurements telemetry.Store
	Flowers      FlowerLookup
	Audit        AuditLister
	Live         LiveRegistry
	Checks       map[string]HealthChecker
	Version      string
}

// Server is the HTTP API and live channel server.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	binder       Binder
	ingester     Ingester
	measurements telemetry.Store
	flowers      FlowerLookup
	audit        AuditLister
	live         LiveRegistry
	checks       map[string]HealthChecker
	version      string

	server   *http.Server
	listener net.Listener
}

// New creates a server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Binder == nil:
		return nil, fmt.Errorf("binder is required")
	case deps.Ingester == nil:
		return nil, fmt.Errorf("ingester is required")
	case deps.Measurements == nil:
		return nil, fmt.Errorf("measurement store is required")
	case deps.Flowers == nil:
		return nil, fmt.Errorf("flower lookup is required")
	case deps.Live == nil:
		return nil, fmt.Errorf("live registry is required")
	}

	return &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		binder:       deps.Binder,
		ingester:     deps.Ingester,
		measurements: deps.Measurements,
		flowers:      deps.Flowers,
		audit:        deps.Audit,
		live:         deps.Live,
		checks:       deps.Checks,
		version:      deps.Version,
	}, nil
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background. Binding errors
// such as a port in use are returned; later serve errors are logged.
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())
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

// Close waits up to gracefulShutdownTimeout for in-flight requests.
// Hijacked WebSocket connections are not tracked by the HTTP server and
// must be closed through the live registry.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
