// EcoFlow Bridge - local control plane for EcoFlow portable power stations.
//
// The bridge polls the EcoFlow cloud REST API for authoritative device
// state, overlays real-time push updates from the vendor MQTT broker,
// and exposes the merged view over a local HTTP/WebSocket API with
// SQLite persistence and optional InfluxDB telemetry.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/wattbridge/ecoflow-bridge/internal/api"
	"github.com/wattbridge/ecoflow-bridge/internal/coordinator"
	"github.com/wattbridge/ecoflow-bridge/internal/device"
	"github.com/wattbridge/ecoflow-bridge/internal/ecoflow"
	"github.com/wattbridge/ecoflow-bridge/internal/ecoflow/mqtt"
	"github.com/wattbridge/ecoflow-bridge/internal/infrastructure/config"
	"github.com/wattbridge/ecoflow-bridge/internal/infrastructure/database"
	"github.com/wattbridge/ecoflow-bridge/internal/infrastructure/influxdb"
	"github.com/wattbridge/ecoflow-bridge/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting EcoFlow Bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	historyRepo := device.NewSQLiteStateHistoryRepository(db.DB)
	settingsRepo := device.NewSQLiteSettingsRepository(db.DB)

	// Bound the state_history table; every poll tick and push overlay
	// inserts a row, so a chatty device fills the table quickly.
	if cfg.Database.HistoryRetentionDays > 0 {
		retention := time.Duration(cfg.Database.HistoryRetentionDays) * 24 * time.Hour
		go pruneHistory(ctx, historyRepo, retention, historyPruneInterval, log)
		log.Info("history pruning enabled", "retention_days", cfg.Database.HistoryRetentionDays)
	} else {
		log.Info("history pruning disabled")
	}

	// Cloud REST client
	cloudOpts := []ecoflow.Option{
		ecoflow.WithTimeout(cfg.GetRequestTimeout()),
		ecoflow.WithLogger(log),
	}
	if cfg.EcoFlow.BaseURL != "" {
		cloudOpts = append(cloudOpts, ecoflow.WithBaseURL(cfg.EcoFlow.BaseURL))
	}
	cloud := ecoflow.NewClient(cfg.EcoFlow.AccessKey, cfg.EcoFlow.SecretKey, cloudOpts...)
	log.Info("cloud client initialised", "base_url", cfg.EcoFlow.BaseURL)

	// Connect to the vendor MQTT broker. Failure here degrades the
	// bridge to REST-only polling instead of aborting startup.
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient = connectMQTT(ctx, cfg, cloud, log)
		if mqttClient != nil {
			defer func() {
				log.Info("disconnecting from MQTT")
				if closeErr := mqttClient.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
		}
	} else {
		log.Info("MQTT disabled, running REST-only")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start one coordinator per configured device
	coordinators := make(map[string]api.DeviceCoordinator, len(cfg.Devices))
	for _, dev := range cfg.Devices {
		coordCfg := coordinator.Config{
			SN:          dev.SN,
			Client:      cloud,
			Interval:    time.Duration(dev.UpdateInterval) * time.Second,
			Settings:    settingsRepo,
			History:     historyRepo,
			Diagnostics: dev.Diagnostics,
			Logger:      log,
		}
		if influxClient != nil {
			coordCfg.OnCommand = influxClient.WriteCommandResult
		}

		var (
			coord api.DeviceCoordinator
			base  *coordinator.Coordinator
		)
		if mqttClient != nil {
			hybrid := coordinator.NewHybrid(coordCfg, mqttClient)
			coord, base = hybrid, hybrid.Coordinator
		} else {
			rest := coordinator.New(coordCfg)
			coord, base = rest, rest
		}

		if startErr := base.Start(ctx); startErr != nil {
			if fatalStartError(startErr) {
				return fmt.Errorf("starting coordinator for %s: %w", dev.SN, startErr)
			}
			// The polling loop is already running and retries on its
			// own schedule, so a transient cloud outage at boot is
			// not fatal.
			log.Warn("initial refresh failed, polling continues",
				"sn", dev.SN,
				"error", startErr,
			)
		}
		defer base.Stop()

		// Mirror snapshots into the telemetry sink
		if influxClient != nil {
			coord.AddListener(influxClient.WriteSnapshot)
		}

		coordinators[dev.SN] = coord
		log.Info("coordinator started",
			"sn", dev.SN,
			"name", dev.Name,
			"mode", coordinatorMode(mqttClient),
			"interval_seconds", dev.UpdateInterval,
		)
	}

	// Start the HTTP/WebSocket API
	apiServer, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WS,
		Logger:       log,
		Cloud:        cloud,
		Coordinators: coordinators,
		History:      historyRepo,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, apiServer, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Coordinators
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if connected)
	// 5. Database

	log.Info("EcoFlow Bridge stopped")
	return nil
}

// historyPruneInterval is how often old state-history rows are swept.
const historyPruneInterval = time.Hour

// historyPruner removes state-history rows older than a cutoff.
// *device.SQLiteStateHistoryRepository satisfies it.
type historyPruner interface {
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneHistory sweeps the history table once at startup and then on a
// fixed cadence until the context ends.
func pruneHistory(ctx context.Context, repo historyPruner, retention, every time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		pruned, err := repo.PruneHistory(ctx, retention)
		switch {
		case err != nil:
			log.Warn("history prune failed", "error", err)
		case pruned > 0:
			log.Info("history pruned", "rows", pruned)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// fatalStartError reports whether a coordinator start failure should
// abort boot. Only credential rejection is unrecoverable; anything
// transient self-heals on the polling schedule.
func fatalStartError(err error) bool {
	return errors.Is(err, ecoflow.ErrAuthentication)
}

// connectMQTT resolves broker credentials and connects.
//
// When the config carries no certificate credentials, they are
// exchanged at startup via the certification endpoint using the REST
// key pair. Any failure logs a warning and returns nil so the bridge
// runs REST-only.
func connectMQTT(ctx context.Context, cfg *config.Config, cloud *ecoflow.Client, log *logging.Logger) *mqtt.Client {
	creds := mqtt.Credentials{
		Host:                cfg.MQTT.Host,
		Port:                cfg.MQTT.Port,
		CertificateAccount:  cfg.MQTT.CertificateAccount,
		CertificatePassword: cfg.MQTT.Password,
	}
	if creds.CertificateAccount == "" {
		creds.CertificateAccount = cfg.MQTT.Username
	}

	if creds.CertificateAccount == "" || creds.CertificatePassword == "" {
		cert, err := cloud.IssueCertificate(ctx)
		if err != nil {
			log.Warn("certificate exchange failed, running REST-only", "error", err)
			return nil
		}
		creds.CertificateAccount = cert.CertificateAccount
		creds.CertificatePassword = cert.CertificatePassword
		if cert.URL != "" {
			creds.Host = cert.URL
		}
		if port, convErr := strconv.Atoi(cert.Port); convErr == nil && port > 0 {
			creds.Port = port
		}
		log.Info("MQTT certificate issued", "account", creds.CertificateAccount)
	}

	client, err := mqtt.Connect(creds, log)
	if err != nil {
		log.Warn("MQTT connect failed, running REST-only", "error", err)
		return nil
	}

	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", creds.Host, creds.Port),
		"account", creds.CertificateAccount,
	)
	return client
}

// coordinatorMode describes the refresh strategy for startup logging.
func coordinatorMode(mqttClient *mqtt.Client) string {
	if mqttClient != nil {
		return "hybrid"
	}
	return "rest"
}

// getConfigPath returns the configuration file path.
// Uses ECOFLOW_BRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ECOFLOW_BRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - apiServer: API server to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, apiServer *api.Server, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// MQTT health is best-effort: paho reconnects in the background and
	// the coordinators keep polling regardless.

	return nil
}
