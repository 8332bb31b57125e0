package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-rrd/internal/api"
	"github.com/nerrad567/gray-logic-rrd/internal/auth"
	"github.com/nerrad567/gray-logic-rrd/internal/catalog"
	"github.com/nerrad567/gray-logic-rrd/internal/export"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-rrd/internal/ingest"
	"github.com/nerrad567/gray-logic-rrd/internal/process"
	_ "github.com/nerrad567/gray-logic-rrd/migrations"
)

// managerCloseTimeout bounds the wait for queued rrdtool work at shutdown.
const managerCloseTimeout = 30 * time.Second

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MQTT ingest, InfluxDB export and HTTP API service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadOrDefault(opts.path())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}
}

// run is the service lifecycle, separated from the command for testability.
// Components are closed in reverse order of start by deferred calls.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - cfg: Validated configuration
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, cfg *config.Config) error { //nolint:gocognit,gocyclo // Linear startup sequence
	log := logging.New(cfg.Logging, version)
	log.Info("starting rrdcore",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Open catalog database
	db, err := database.Open(database.FromConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")
	repo := catalog.NewSQLiteRepository(db.DB)

	// rrdtool
	runner := process.NewRunner(process.Config{
		Name:    "rrdtool",
		Binary:  cfg.RRDTool.Binary,
		Timeout: cfg.GetCommandTimeout(),
	})
	runner.SetLogger(log.Component("process"))
	mgr := newManager(cfg, runner)
	mgr.SetLogger(log.Component("rrdtool"))
	defer func() {
		log.Info("closing databases")
		closeCtx, cancel := context.WithTimeout(context.Background(), managerCloseTimeout)
		defer cancel()
		if closeErr := mgr.Close(closeCtx); closeErr != nil {
			log.Error("error closing databases", "error", closeErr)
		}
	}()

	synced, err := catalog.Sync(ctx, repo, mgr)
	if err != nil {
		log.Warn("catalog sync incomplete", "error", err)
	}
	log.Info("catalog synchronised",
		"data_dir", cfg.RRDTool.DataDir,
		"registered", synced.Registered,
		"removed", synced.Removed,
	)

	health := map[string]api.HealthChecker{"database": db}
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	ingestDeps := ingest.Deps{
		Store:    mgr,
		Catalog:  repo,
		Source:   mgr,
		Notifier: hub,
		Logger:   log.Component("ingest"),
		Timeout:  cfg.GetCommandTimeout(),
	}

	// MQTT (optional)
	var brokerStats api.BrokerStats
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connection established")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		ingestDeps.Broker = mqttClient
		health["mqtt"] = mqttClient
		brokerStats = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	var writerStats api.WriterStats
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		ingestDeps.Samples = influxClient
		health["influxdb"] = influxClient
		writerStats = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Ingest
	ingestSvc, err := ingest.New(ingestDeps)
	if err != nil {
		return fmt.Errorf("creating ingest service: %w", err)
	}
	if startErr := ingestSvc.Start(); startErr != nil {
		return fmt.Errorf("starting ingest: %w", startErr)
	}
	defer func() {
		log.Info("stopping ingest")
		if stopErr := ingestSvc.Stop(); stopErr != nil {
			log.Error("error stopping ingest", "error", stopErr)
		}
	}()

	// Export (optional, requires InfluxDB; enforced by config validation)
	if cfg.Export.Enabled && influxClient != nil {
		exportCfg, exportErr := export.FromConfig(cfg.Export)
		if exportErr != nil {
			return fmt.Errorf("configuring export: %w", exportErr)
		}
		mirror, exportErr := export.NewMirror(repo, mgr, influxClient, exportCfg)
		if exportErr != nil {
			return fmt.Errorf("creating export mirror: %w", exportErr)
		}
		mirror.SetLogger(log.Component("export"))
		exportCtx, stopExport := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			mirror.Run(exportCtx)
		}()
		defer func() {
			log.Info("stopping export")
			stopExport()
			<-done
		}()
		log.Info("export started", "interval", exportCfg.Interval, "cf", exportCfg.CF)
	}

	// HTTP API (optional)
	if cfg.API.Enabled {
		authenticator, authErr := auth.NewAuthenticator(cfg.Security)
		if authErr != nil {
			return fmt.Errorf("creating authenticator: %w", authErr)
		}
		server, apiErr := api.New(api.Deps{
			Config:    cfg.API,
			WS:        cfg.WebSocket,
			Logger:    log.Component("api"),
			Auth:      authenticator,
			Databases: mgr,
			Updater:   ingestSvc,
			Catalog:   repo,
			Health:    health,
			Tool:      runner,
			Broker:    brokerStats,
			Influx:    writerStats,
			Hub:       hub,
			Version:   version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API server listening", "address", server.Addr(), "users", len(cfg.Security.Users))
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, health); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	log.Info("rrdcore stopped")
	return nil
}

// healthCheck verifies every started component.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for _, name := range []string{"database", "mqtt", "influxdb"} {
		check, ok := checks[name]
		if !ok {
			continue
		}
		if err := check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
