package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stagelink/tally-core/internal/device"
	"github.com/stagelink/tally-core/internal/discovery"
	"github.com/stagelink/tally-core/internal/gateway"
	"github.com/stagelink/tally-core/internal/infrastructure/config"
	"github.com/stagelink/tally-core/internal/infrastructure/logging"
	"github.com/stagelink/tally-core/internal/relay"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.ServerConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Store      *device.Store
	Dispatcher *device.Dispatcher
	Relay      *relay.Relay
	Gateway    *gateway.Gateway
	Scanner    *discovery.Scanner // optional; discover endpoint returns 503 when nil
	Version    string
}

// Server is the HTTP API server for Tally Core.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket
// hub. The server is created with New() and started with Start().
type Server struct {
	cfg        config.ServerConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	store      *device.Store
	dispatcher *device.Dispatcher
	relay      *relay.Relay
	gateway    *gateway.Gateway
	scanner    *discovery.Scanner
	version    string

	server      *http.Server
	hub         *Hub
	cancel      context.CancelFunc
	unsubscribe func()
	startedAt   time.Time
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("device store is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Relay == nil {
		return nil, fmt.Errorf("relay is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("device gateway is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		relay:      deps.Relay,
		gateway:    deps.Gateway,
		scanner:    deps.Scanner,
		version:    deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, bridges dispatcher events onto it, and
// launches the HTTP listener in a background goroutine. Stop the server
// with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	s.startedAt = time.Now()

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Every dispatcher event becomes a WebSocket broadcast; the hub
	// fans out to subscribed clients.
	s.unsubscribe = s.dispatcher.Subscribe(device.SubscriberFunc(func(event string, payload any) {
		s.hub.Broadcast(event, payload)
	}))

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.unsubscribe != nil {
		s.unsubscribe()
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
