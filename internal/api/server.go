package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wattbridge/ecoflow-bridge/internal/coordinator"
	"github.com/wattbridge/ecoflow-bridge/internal/device"
	"github.com/wattbridge/ecoflow-bridge/internal/infrastructure/config"
	"github.com/wattbridge/ecoflow-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceLister fetches the account's device list from the cloud.
// *ecoflow.Client satisfies it.
type DeviceLister interface {
	DeviceList(ctx context.Context) ([]device.Info, error)
}

// DeviceCoordinator is the per-device surface the API exposes.
// *coordinator.Coordinator and *coordinator.Hybrid satisfy it.
type DeviceCoordinator interface {
	SN() string
	State() device.Snapshot
	LastError() error
	Refresh(ctx context.Context) error
	UpdateInterval() time.Duration
	SetUpdateInterval(ctx context.Context, interval time.Duration) error
	ExecuteCommand(ctx context.Context, req coordinator.CommandRequest) error
	Diagnostics() coordinator.Report
	AddListener(listener coordinator.Listener) func()
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.API
	WS           config.WebSocket
	Logger       *logging.Logger
	Cloud        DeviceLister
	Coordinators map[string]DeviceCoordinator // keyed by serial number
	History      device.StateHistoryRepository
	Version      string
}

// Server is the HTTP API server for the bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub,
// and relays coordinator snapshots to WebSocket subscribers.
type Server struct {
	cfg          config.API
	wsCfg        config.WebSocket
	logger       *logging.Logger
	cloud        DeviceLister
	coordinators map[string]DeviceCoordinator
	history      device.StateHistoryRepository
	version      string

	server          *http.Server
	hub             *Hub
	cancel          context.CancelFunc
	removeListeners []func()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, coordinators)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if len(deps.Coordinators) == 0 {
		return nil, fmt.Errorf("at least one device coordinator is required")
	}

	return &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		logger:       deps.Logger,
		cloud:        deps.Cloud,
		coordinators: deps.Coordinators,
		history:      deps.History,
		version:      deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, registers snapshot listeners on every
// coordinator for real-time broadcast, and launches the HTTP listener
// in a background goroutine. Stop with Close().
//
// Parameters:
//   - ctx: Context for background goroutine lifetime
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Relay every coordinator snapshot to WebSocket subscribers.
	for sn, coord := range s.coordinators {
		remove := coord.AddListener(func(snapshot device.Snapshot) {
			s.hub.Broadcast(ChannelStateChanged, snapshot)
		})
		s.removeListeners = append(s.removeListeners, remove)
		s.logger.Debug("websocket relay attached", "sn", sn)
	}

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
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
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

// Close gracefully shuts down the API server.
//
// It detaches coordinator listeners, stops the WebSocket hub, then
// waits up to 10 seconds for in-flight requests before forcefully
// closing remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	for _, remove := range s.removeListeners {
		remove()
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
