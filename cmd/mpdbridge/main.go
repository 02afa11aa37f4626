// Gray Logic MPD bridge
//
// Connects Gray Logic items on the MQTT bus to Music Player Daemon
// instances: item commands drive playback, volume and outputs; daemon
// notifications come back as retained item state.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/gray-logic-mpd/migrations"

	"github.com/nerrad567/gray-logic-mpd/internal/api"
	"github.com/nerrad567/gray-logic-mpd/internal/bridges/mpd"
	"github.com/nerrad567/gray-logic-mpd/internal/history"
	"github.com/nerrad567/gray-logic-mpd/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-mpd/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-mpd/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-mpd/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-mpd/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-mpd/internal/scheduler"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/mpd-bridge.yaml"

// pruneSchedule runs the update history prune daily at 03:15.
const pruneSchedule = "0 15 3 * * *"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command line flags.
type options struct {
	configPath  string
	showVersion bool
	migrateDown bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("mpdbridge", pflag.ContinueOnError)
	flags.StringVarP(&opts.configPath, "config", "c", "",
		"configuration file (default $MPDBRIDGE_CONFIG or "+defaultConfigPath+")")
	flags.BoolVarP(&opts.showVersion, "version", "v", false, "print version and exit")
	flags.BoolVar(&opts.migrateDown, "migrate-down", false,
		"roll back the most recent database migration and exit")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	if opts.configPath == "" {
		opts.configPath = getConfigPath()
	}
	return opts, nil
}

// getConfigPath returns the configuration file path.
// Uses MPDBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MPDBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Printf("mpdbridge %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()
	log.Info("starting Gray Logic MPD bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", opts.configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	if opts.migrateDown {
		return rollbackMigration(ctx, log, cfg.Database)
	}

	bindings, err := loadBindings(cfg.MPD.BindingsFile)
	if err != nil {
		return err
	}
	log.Info("bindings loaded", "path", cfg.MPD.BindingsFile, "items", len(bindings.Items()))

	checks := map[string]api.HealthCheck{}
	var sinks []mpd.Publisher

	// Update history (optional)
	var historyRepo *history.Repository
	if cfg.Database.Enabled {
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database ready", "path", cfg.Database.Path)

		historyRepo = history.NewRepository(db.DB)
		sinks = append(sinks, historyRepo)
		checks["database"] = db.HealthCheck
	} else {
		log.Info("update history disabled")
	}

	// Metrics (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		sinks = append(sinks, newInfluxSink(influxClient))
		checks["influxdb"] = influxClient.HealthCheck
	}

	// Bus
	var topics mqtt.Topics
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics.BridgeHealth(mpd.Protocol))
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	checks["mqtt"] = mqttClient.HealthCheck
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Live update stream
	hub := api.NewHub(log.Component("websocket"))
	if cfg.API.Enabled {
		sinks = append(sinks, hub)
	}

	cron := scheduler.New(log.Component("scheduler"))
	cron.Start()
	defer cron.Stop()

	if historyRepo != nil && cfg.Database.HistoryRetention > 0 {
		retention := cfg.Database.GetHistoryRetention()
		if err := schedulePrune(ctx, cron, historyRepo, retention, log.Component("history")); err != nil {
			return err
		}
		log.Info("update history pruning scheduled", "retention", retention.String())
	}

	bridge, err := mpd.NewBridge(mpd.BridgeOptions{
		Config:     bridgeConfig(cfg),
		MQTTClient: &mqttAdapter{client: mqttClient},
		Dialer:     &mpd.GompdDialer{Logger: log.Component("mpd")},
		Scheduler:  cron,
		Bindings:   bindings,
		Players:    cfg.MPD.Players,
		Sinks:      sinks,
		Logger:     log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating MPD bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting MPD bridge: %w", err)
	}
	defer func() {
		log.Info("stopping MPD bridge")
		bridge.Stop()
	}()

	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.Component("api"),
			Bridge:  bridge,
			History: optionalHistory(historyRepo),
			Hub:     hub,
			Checks:  checks,
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	waitForShutdown(ctx, log, opts.configPath, bridge)

	// Deferred calls run in reverse order: API, bridge (sweep cancelled,
	// players disconnected), scheduler, MQTT, InfluxDB, database.
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// waitForShutdown blocks until ctx ends. SIGHUP reloads the player
// configuration and bindings from the configuration file.
func waitForShutdown(ctx context.Context, log *logging.Logger, configPath string, bridge *mpd.Bridge) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			log.Info("SIGHUP received, reloading configuration", "path", configPath)
			if err := reload(ctx, configPath, bridge); err != nil {
				log.Error("reload failed", "error", err)
				continue
			}
			log.Info("configuration reloaded")
		}
	}
}

// reload re-reads the configuration file and applies its bindings and
// player map. Other sections need a restart.
func reload(ctx context.Context, configPath string, bridge *mpd.Bridge) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	bindings, err := loadBindings(cfg.MPD.BindingsFile)
	if err != nil {
		return err
	}
	bridge.ReloadBindings(bindings)
	return bridge.Updated(ctx, cfg.MPD.Players)
}

func loadBindings(path string) (*mpd.BindingSet, error) {
	if path == "" {
		return mpd.NewBindingSet(), nil
	}
	set, err := mpd.LoadBindings(path)
	if err != nil {
		return nil, fmt.Errorf("loading bindings: %w", err)
	}
	return set, nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// rollbackMigration reverts the most recently applied migration.
func rollbackMigration(ctx context.Context, log *logging.Logger, cfg config.DatabaseConfig) error {
	if !cfg.Enabled {
		return errors.New("database is disabled, nothing to roll back")
	}
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // one-shot command

	if err := db.MigrateDown(ctx); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	log.Info("most recent migration rolled back", "path", cfg.Path)
	return nil
}

// jobScheduler is the part of scheduler.Cron used for housekeeping jobs.
type jobScheduler interface {
	Schedule(expr string, job func()) (int, error)
}

// historyPruner deletes update history older than a cut-off.
type historyPruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// schedulePrune registers a daily job that deletes history older than
// retention.
func schedulePrune(ctx context.Context, sched jobScheduler, repo historyPruner, retention time.Duration, log *logging.Logger) error {
	_, err := sched.Schedule(pruneSchedule, func() {
		removed, err := repo.Prune(ctx, retention)
		if err != nil {
			log.Error("pruning update history failed", "error", err)
			return
		}
		log.Info("update history pruned", "removed", removed)
	})
	if err != nil {
		return fmt.Errorf("scheduling history prune: %w", err)
	}
	return nil
}

func bridgeConfig(cfg *config.Config) mpd.Config {
	return mpd.Config{
		BridgeID:       cfg.Bridge.ID,
		Version:        version,
		HealthInterval: cfg.GetHealthInterval(),
		ConnectTimeout: cfg.MPD.GetConnectTimeout(),
		VolumeStep:     cfg.MPD.VolumeStep,
		SweepSchedule:  cfg.MPD.SweepSchedule,
		QoS:            byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0..2
	}
}

// optionalHistory keeps a nil repository from becoming a non-nil interface.
func optionalHistory(repo *history.Repository) api.HistoryStore {
	if repo == nil {
		return nil
	}
	return repo
}
