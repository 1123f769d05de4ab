package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/airlink/internal/api"
	"github.com/nerrad567/airlink/internal/appliance"
	"github.com/nerrad567/airlink/internal/infrastructure/config"
	"github.com/nerrad567/airlink/internal/infrastructure/database"
	"github.com/nerrad567/airlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/airlink/internal/infrastructure/logging"
	"github.com/nerrad567/airlink/internal/infrastructure/metrics"
	"github.com/nerrad567/airlink/internal/journal"
	"github.com/nerrad567/airlink/migrations"
)

// pruneInterval is how often journal entries older than the retention window
// are deleted.
const pruneInterval = time.Hour

func newRunCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the appliance and serve until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath())
		},
	}
}

// run is the service lifecycle, separated from the command for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting airlink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	m := metrics.New(metrics.DefaultNamespace)

	dev, err := newDevice(cfg, log, m)
	if err != nil {
		return err
	}
	serial := dev.Profile().Serial
	log.Info("appliance configured",
		"serial", serial,
		"product_type", dev.Profile().ProductType,
		"policy", dev.Profile().Policy,
	)

	dev.AddStatusCallback(func(ev appliance.ConnectionEvent) {
		log.Info("appliance connection changed",
			"previous", ev.Previous,
			"current", ev.Current,
			"fallback", ev.Fallback,
		)
	})

	// Record telemetry in InfluxDB (optional)
	var sink *influxdb.Client
	if cfg.InfluxDB.Enabled {
		sink, err = influxdb.Connect(ctx, cfg.InfluxDB, influxdb.Options{
			Serial: serial,
			Logger: log.With("component", "telemetry"),
		})
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if closeErr := sink.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
			log.Info("telemetry closed", "write_failures", sink.WriteFailures())
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		detach := attachTelemetry(dev, sink)
		defer detach()
	} else {
		log.Info("InfluxDB disabled")
	}

	// Open the event journal (optional)
	var db *database.DB
	var repo journal.Repository
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", db.Path())

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		sqliteRepo := journal.NewSQLiteRepository(db.DB)
		repo = sqliteRepo

		recorder := journal.NewRecorder(sqliteRepo, serial)
		recorder.SetLogger(log.With("component", "journal"))
		detach := recorder.Attach(dev)
		defer detach()

		if cfg.Database.Retention > 0 {
			go pruneJournal(ctx, sqliteRepo, cfg.Database.Retention, log)
		}
	} else {
		log.Info("event journal disabled")
	}

	// Start the HTTP API (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.With("component", "api"),
			Device:  dev,
			Journal: repo,
			Metrics: m.Handler(),
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		if cfg.API.Auth.JWTSecret == "" {
			log.Warn("control routes disabled; set AIRLINK_API_JWT_SECRET to enable commands over HTTP")
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	// Verify infrastructure before handing control to the supervisor
	if err := healthCheck(ctx, db, sink); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, supervising appliance connection")

	// Run blocks until ctx is cancelled and disconnects on the way out.
	if err := dev.Run(ctx); err != nil {
		return fmt.Errorf("running appliance: %w", err)
	}

	log.Info("airlink stopped")
	return nil
}

// attachTelemetry writes environmental readings, connection changes and the
// active fault count to InfluxDB. It returns a function that detaches it.
func attachTelemetry(dev *appliance.Device, sink *influxdb.Client) func() {
	envID := dev.AddEnvironmentalCallback(func(readings map[string]string) {
		sink.RecordEnvironmental(readings, time.Now())
	})
	statusID := dev.AddStatusCallback(func(ev appliance.ConnectionEvent) {
		sink.RecordStatus(string(ev.Current), ev.Fallback, ev.Time)
	})
	msgID := dev.AddMessageCallback(func(_ string, msg appliance.Message) {
		if msg.Type() == appliance.MsgCurrentFaults {
			sink.RecordActiveFaults(len(dev.Faults()), time.Now())
		}
	})

	return func() {
		dev.RemoveEnvironmentalCallback(envID)
		dev.RemoveStatusCallback(statusID)
		dev.RemoveMessageCallback(msgID)
	}
}

// pruneJournal deletes expired journal entries at startup and then hourly.
func pruneJournal(ctx context.Context, repo journal.Repository, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		deleted, err := repo.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("pruning journal", "error", err)
		case deleted > 0:
			log.Info("journal pruned", "deleted", deleted, "retention", retention)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// healthCheck verifies the optional infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Journal database (may be nil if disabled)
//   - sink: InfluxDB telemetry sink (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, sink *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if sink != nil {
		if err := sink.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// The appliance itself is not checked; the supervisor owns reconnection.
	return nil
}
