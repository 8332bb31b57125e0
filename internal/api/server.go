package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-rrd/internal/auth"
	"github.com/nerrad567/gray-logic-rrd/internal/catalog"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-rrd/internal/ingest"
	"github.com/nerrad567/gray-logic-rrd/internal/process"
	"github.com/nerrad567/gray-logic-rrd/internal/rrdtool"
	"github.com/nerrad567/gray-logic-rrd/internal/serialqueue"
)

// gracefulShutdownTimeout bounds the wait for in-flight requests on Close.
const gracefulShutdownTimeout = 10 * time.Second

// Databases is the rrd file surface the API serves. *rrdtool.Manager
// satisfies it.
type Databases interface {
	catalog.Source
	Create(ctx context.Context, name string, definitions []string, opts rrdtool.CreateOptions) (*rrdtool.Database, error)
	Get(ctx context.Context, name string) (*rrdtool.Database, error)
	QueueStats() []serialqueue.Stats
}

// Updater applies samples. *ingest.Service satisfies it.
type Updater interface {
	Apply(ctx context.Context, req ingest.Request, source string) (ingest.Event, error)
}

// ToolStats reports rrdtool invocation counters. *process.Runner satisfies it.
type ToolStats interface {
	Stats() process.Stats
}

// BrokerStats reports MQTT counters. *mqtt.Client satisfies it.
type BrokerStats interface {
	Stats() mqtt.Stats
}

// WriterStats reports InfluxDB write counters. *influxdb.Client satisfies it.
type WriterStats interface {
	Stats() influxdb.Stats
}

// HealthChecker is a component whose health /health reports.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps wires the server to the rest of rrdcore.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Auth      *auth.Authenticator
	Databases Databases
	Updater   Updater
	Catalog   catalog.Repository       // optional: history and catalog entries
	Health    map[string]HealthChecker // optional: components reported by /health
	Tool      ToolStats                // optional: rrdtool counters reported by /metrics
	Broker    BrokerStats              // optional: MQTT counters reported by /metrics
	Influx    WriterStats              // optional: InfluxDB counters reported by /metrics
	Hub       *Hub                     // If set, the server uses this hub instead of creating its own
	Version   string
}

// Server serves the rrdcore HTTP API and WebSocket event stream.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	auth      *auth.Authenticator
	databases Databases
	updater   Updater
	catalog   catalog.Repository
	health    map[string]HealthChecker
	tool      ToolStats
	broker    BrokerStats
	influx    WriterStats
	version   string
	startTime time.Time
	hub       *Hub

	server   *http.Server
	listener net.Listener
	stopHub  context.CancelFunc
}

// New validates deps and builds an unstarted server.
//
// Parameters:
//   - deps: Logger, Auth, Databases and Updater are required
//
// Returns:
//   - *Server: Server ready for Start
//   - error: Naming the first missing dependency
func New(deps Deps) (*Server, error) {
	required := []struct {
		name    string
		missing bool
	}{
		{"logger", deps.Logger == nil},
		{"authenticator", deps.Auth == nil},
		{"databases", deps.Databases == nil},
		{"updater", deps.Updater == nil},
	}
	for _, r := range required {
		if r.missing {
			return nil, fmt.Errorf("api: %s is required", r.name)
		}
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.WS, deps.Logger)
	}
	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		auth:      deps.Auth,
		databases: deps.Databases,
		updater:   deps.Updater,
		catalog:   deps.Catalog,
		health:    deps.Health,
		tool:      deps.Tool,
		broker:    deps.Broker,
		influx:    deps.Influx,
		version:   deps.Version,
		hub:       hub,
		startTime: time.Now(),
	}, nil
}

// Hub returns the WebSocket hub, for components that broadcast events.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener, then serves in the background until Close.
// The hub lives until ctx is cancelled or Close is called. Port 0 picks a
// free port; Addr reports it.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	hubCtx, stop := context.WithCancel(ctx)
	go s.hub.Run(hubCtx)

	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }
	s.stopHub = stop
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       seconds(s.cfg.Timeouts.Read),
		ReadHeaderTimeout: seconds(s.cfg.Timeouts.Read),
		WriteTimeout:      seconds(s.cfg.Timeouts.Write),
		IdleTimeout:       seconds(s.cfg.Timeouts.Idle),
	}

	go s.serve(ln)
	return nil
}

func (s *Server) serve(ln net.Listener) {
	var err error
	if tlsCfg := s.cfg.TLS; tlsCfg.Enabled {
		s.logger.Info("API listening", "address", ln.Addr().String(), "tls", true, "cert", tlsCfg.CertFile)
		err = s.server.ServeTLS(ln, tlsCfg.CertFile, tlsCfg.KeyFile)
	} else {
		s.logger.Info("API listening", "address", ln.Addr().String())
		err = s.server.Serve(ln)
	}
	if !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("API server stopped", "error", err)
	}
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close disconnects WebSocket clients and shuts the listener down, giving
// in-flight requests up to gracefulShutdownTimeout to finish.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	s.stopHub()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API shutting down")
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
		return errors.New("api server not started")
	}
	return nil
}
