// Naboom MQTT Service - community message ingestion
//
// This is the main entry point for the Naboom community portal's MQTT
// service. It maintains a single connection to the broker, routes
// community/system/notification/alert/health traffic to handlers, and
// exposes the service's own health over HTTP for supervision.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	_ "github.com/naboomcommunity/mqtt-core/migrations"

	"github.com/naboomcommunity/mqtt-core/internal/api"
	"github.com/naboomcommunity/mqtt-core/internal/health"
	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/config"
	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/database"
	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/influxdb"
	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/logging"
	"github.com/naboomcommunity/mqtt-core/internal/ingest"
	"github.com/naboomcommunity/mqtt-core/internal/journal"
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

// options holds the parsed command line flags.
type options struct {
	configPath string
	websocket  bool
	ssl        bool
	daemon     bool
}

func main() {
	opts := parseFlags(os.Args[1:])

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads the CLI surface. --daemon is accepted for
// compatibility with the deployment scripts but process supervision is
// left to systemd.
func parseFlags(args []string) options {
	var opts options

	fs := flag.NewFlagSet("naboom-mqtt", flag.ExitOnError)
	fs.StringVar(&opts.configPath, "config", "", "path to config.yaml (overrides NABOOM_CONFIG)")
	fs.BoolVar(&opts.websocket, "websocket", false, "connect over WebSocket transport")
	fs.BoolVar(&opts.ssl, "ssl", false, "force TLS to the broker")
	fs.BoolVar(&opts.daemon, "daemon", false, "reserved, accepted and ignored")
	//nolint:errcheck // ExitOnError flag set never returns an error
	fs.Parse(args)

	return opts
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently: nil on clean shutdown, non-nil (exit 1) on startup
// failure or connect-retry exhaustion.
func run(ctx context.Context, opts options) error {
	// .env is optional; real deployments use systemd environment files.
	//nolint:errcheck
	godotenv.Load()

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Naboom MQTT service",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath(opts)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Flags override the config transport
	if opts.websocket {
		cfg.Broker.Websocket = true
	}
	if opts.ssl {
		cfg.Broker.TLS = true
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the message journal (optional)
	var journalStore *journal.Store
	if cfg.Journal.Enabled {
		db, err := database.Open(database.Config{
			Path:        cfg.Journal.Path,
			WALMode:     true,
			BusyTimeout: cfg.Journal.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening journal database: %w", err)
		}
		defer func() {
			log.Info("closing journal database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal database", "error", closeErr)
			}
		}()

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running journal migrations: %w", migrateErr)
		}
		journalStore = journal.NewStore(db)
		log.Info("message journal enabled", "path", cfg.Journal.Path)
	} else {
		log.Info("message journal disabled")
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// The shared health store: written by the connection manager and
	// dispatcher, read by the HTTP endpoints and the reporter.
	state := health.NewState(health.ConnectionInfo{
		BrokerHost: cfg.Broker.Host,
		BrokerPort: cfg.BrokerPort(),
		ClientID:   cfg.Broker.ClientID,
		Keepalive:  cfg.Broker.Keepalive,
	})

	// Message dispatcher with optional side writers
	var dispatcherOpts []ingest.DispatcherOption
	if journalStore != nil {
		dispatcherOpts = append(dispatcherOpts, ingest.WithJournal(journalStore))
	}
	if influxClient != nil {
		dispatcherOpts = append(dispatcherOpts, ingest.WithTelemetry(influxClient))
	}
	dispatcher := ingest.NewDispatcher(state, log, byte(cfg.QoS), dispatcherOpts...)

	// HTTP monitoring surface
	apiServer, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Health:  state,
		Journal: journalStore,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Periodic health publisher
	var sampler ingest.HealthSampler
	if influxClient != nil {
		sampler = influxClient
	}
	reporter := ingest.NewReporter(dispatcher, state, cfg.ReportInterval(), sampler, log)
	reporter.Start(ctx)
	defer reporter.Stop()

	// The connection manager runs in the foreground until shutdown or
	// retry exhaustion. The reporter's final publish must happen while
	// the broker connection is still up, so it runs as a shutdown hook
	// inside Run rather than relying on the deferred Stop above.
	service := ingest.NewService(*cfg, state, dispatcher, log)
	service.OnShutdown(reporter.Stop)

	log.Info("initialisation complete, connecting to broker",
		"host", cfg.Broker.Host,
		"port", cfg.BrokerPort(),
		"tls", cfg.Broker.TLS,
		"websocket", cfg.Broker.Websocket,
	)

	if err := service.Run(ctx); err != nil {
		if errors.Is(err, ingest.ErrRetriesExhausted) {
			log.Error("broker unreachable, giving up", "error", err)
		}
		return err
	}

	log.Info("Naboom MQTT service stopped")
	return nil
}

// getConfigPath returns the configuration file path: the --config flag
// wins, then the NABOOM_CONFIG environment variable, then the default.
func getConfigPath(opts options) string {
	if opts.configPath != "" {
		return opts.configPath
	}
	if path := os.Getenv("NABOOM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
