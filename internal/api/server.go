package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-mesh/internal/audit"
	"github.com/nerrad567/gray-logic-mesh/internal/commissioning"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh/registry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller is the commissioning surface driven by the API.
// *commissioning.Controller satisfies it.
type Controller interface {
	Trigger(mode commissioning.Mode, target commissioning.Target) (registry.Record, error)
	Reset()
	Devices(all bool) []registry.Record
	Snapshot() commissioning.Snapshot
}

// Journal reads recorded commissioning outcomes.
// *commissioning.SQLiteJournal satisfies it.
type Journal interface {
	Recent(ctx context.Context, limit int) ([]commissioning.JournalEntry, error)
}

// AuditLog stores operator actions.
// *audit.SQLiteRepository satisfies it.
type AuditLog interface {
	Record(ctx context.Context, e *audit.Entry) error
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// HealthChecker is implemented by the database, MQTT and InfluxDB clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Controller Controller

	// Journal is optional; without it the journal route returns 503.
	Journal Journal

	// Audit is optional; without it actions are only logged and the audit
	// route returns 503.
	Audit AuditLog

	// SecondaryGroup is the group selected by {"group": "secondary"}.
	SecondaryGroup mesh.Address

	// Checks are reported by the health route, keyed by component name.
	Checks map[string]HealthChecker

	// Hub is optional; New creates one when nil. Passing it in lets the
	// hub be registered as an event publisher before the controller exists.
	Hub *Hub

	Version string
}

// Server is the installer HTTP API.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	controller Controller
	journal    Journal
	audit      AuditLog
	secondary  mesh.Address
	checks     map[string]HealthChecker
	version    string
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If the logger, controller or JWT secret is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("commissioning controller is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.WS, deps.Logger)
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		controller: deps.Controller,
		journal:    deps.Journal,
		audit:      deps.Audit,
		secondary:  deps.SecondaryGroup,
		checks:     deps.Checks,
		version:    deps.Version,
		hub:        hub,
	}, nil
}

// Hub returns the WebSocket hub. It publishes commissioning events to
// clients subscribed to ChannelCommissioning.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start runs the hub and begins listening in a background goroutine.
//
// Returns:
//   - error: Currently always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close stops the hub and waits up to 10 seconds for in-flight requests.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
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
