// lockgate polls the locks behind a smart-lock gateway and exposes them over
// MQTT and an HTTP/WebSocket API.
//
// Usage:
//
//	lockgate                        run the daemon
//	lockgate -issue-token <subject> print an API bearer token and exit
//	lockgate -version               print build information and exit
//
// The configuration file is read from -config, LOCKGATE_CONFIG, or
// configs/config.yaml in that order.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/lockgate/migrations"

	"github.com/nerrad567/lockgate/internal/api"
	"github.com/nerrad567/lockgate/internal/bridge"
	"github.com/nerrad567/lockgate/internal/coordinator"
	"github.com/nerrad567/lockgate/internal/gateway"
	"github.com/nerrad567/lockgate/internal/infrastructure/config"
	"github.com/nerrad567/lockgate/internal/infrastructure/database"
	"github.com/nerrad567/lockgate/internal/infrastructure/influxdb"
	"github.com/nerrad567/lockgate/internal/infrastructure/logging"
	"github.com/nerrad567/lockgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/lockgate/internal/lock"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (overrides LOCKGATE_CONFIG)")
	issueFor := flag.String("issue-token", "", "print a bearer token for `subject` and exit")
	tokenTTL := flag.Duration("token-ttl", 0, "lifetime of -issue-token tokens (default security.jwt.access_token_ttl)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.PathFromEnv()
	}

	switch {
	case *showVersion:
		fmt.Printf("lockgate %s (commit %s, built %s)\n", version, commit, date)
		return
	case *issueFor != "":
		if err := issueToken(os.Stdout, path, *issueFor, *tokenTTL); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// issueToken loads the config at path and writes a signed token to w.
func issueToken(w io.Writer, path, subject string, ttl time.Duration) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	token, err := api.IssueToken(cfg.Security.JWT, subject, ttl)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// run is the daemon, separated from main for testability. It returns nil
// after a clean shutdown once ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting lockgate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	repo := lock.NewSQLiteRepository(db.DB)
	registry, err := loadDirectory(ctx, cfg, repo, log)
	if err != nil {
		return err
	}

	var influxClient *influxdb.Client
	var metrics coordinator.MetricsSink
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
		metrics = newInfluxSink(influxClient)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	coord, err := coordinator.New(coordinator.Options{
		Config: coordinator.Config{
			GatewayID:        cfg.Gateway.ID,
			InterDeviceDelay: cfg.Polling.InterDeviceDelay,
			BusyWait:         cfg.Polling.BusyWait,
			SyncWait:         cfg.Polling.SyncWait,
		},
		Registry: registry,
		Logger:   log.Component("coordinator"),
		Metrics:  metrics,
	})
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	if sink, ok := metrics.(coordinator.Listener); ok {
		coord.AddListener(sink)
	}

	components := map[string]api.HealthChecker{"database": db}
	if influxClient != nil {
		components["influxdb"] = influxClient
	}

	if cfg.MQTT.Enabled {
		mqttClient, br, startErr := startMQTT(ctx, cfg.MQTT, coord, log)
		if startErr != nil {
			return startErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			br.Stop()
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		components["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Security:    cfg.Security,
			Logger:      log.Component("api"),
			Coordinator: coord,
			Components:  components,
			Version:     version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		coord.AddListener(srv.Hub())
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	scheduler := coordinator.NewScheduler(coord, cfg.Polling.Interval, log.Component("scheduler"))
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer scheduler.Stop()
	// Runs first: ends a shared cycle so its waits cannot hold up shutdown.
	defer coord.Close()

	log.Info("initialisation complete, waiting for shutdown signal",
		"gateway_id", cfg.Gateway.ID,
		"locks", len(coord.Devices()),
	)
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: coordinator, scheduler, API, MQTT, InfluxDB, database.
	return nil
}

// lockRecords converts the config's directory seed into lock records.
func lockRecords(cfg *config.Config) []lock.Record {
	records := make([]lock.Record, 0, len(cfg.Locks))
	for _, l := range cfg.Locks {
		records = append(records, lock.Record{
			ID:         l.ID,
			Identifier: l.Identifier,
			Name:       l.Name,
			ShareCode:  l.ShareCode,
			GatewayID:  cfg.Gateway.ID,
			Host:       l.Host,
		})
	}
	return records
}

// loadDirectory seeds the lock directory from config, resolves the gateway
// host and returns a registry holding the gateway and its locks.
func loadDirectory(ctx context.Context, cfg *config.Config, repo lock.Repository, log *logging.Logger) (*lock.Registry, error) {
	if err := lock.Seed(ctx, repo, lockRecords(cfg)); err != nil {
		return nil, fmt.Errorf("seeding lock directory: %w", err)
	}

	host := cfg.Gateway.Host
	if host == "" {
		records, err := repo.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing lock directory: %w", err)
		}
		host = lock.DiscoverHost(records, cfg.Gateway.ID)
		if host == "" {
			return nil, fmt.Errorf("gateway.host is not set and no lock record carries one")
		}
		log.Info("gateway host discovered from lock directory", "host", host)
	}

	client, err := gateway.NewClient(gateway.Config{
		ID:             cfg.Gateway.ID,
		Host:           host,
		HeavyDelay:     cfg.Gateway.HeavyDelay,
		LightDelay:     cfg.Gateway.LightDelay,
		RequestTimeout: cfg.Gateway.RequestTimeout,
		ProbeTimeout:   cfg.Gateway.ProbeTimeout,
		Logger:         log.Component("gateway").With("gateway_id", cfg.Gateway.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("creating gateway client: %w", err)
	}

	registry := lock.NewRegistry()
	registry.SetLogger(log.Component("registry"))
	if err := registry.AddGateway(client); err != nil {
		return nil, fmt.Errorf("registering gateway: %w", err)
	}
	if err := registry.Load(ctx, repo); err != nil {
		return nil, err
	}
	return registry, nil
}

// startMQTT connects to the broker and starts the lock bridge. On reconnect
// the bridge republishes retained state.
func startMQTT(ctx context.Context, cfg config.MQTTConfig, coord *coordinator.Coordinator, log *logging.Logger) (*mqtt.Client, *bridge.Bridge, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)

	br, err := bridge.New(bridge.Options{
		MQTT:       client,
		Topics:     client.Topics(),
		Controller: coord,
		QoS:        client.QoS(),
		Logger:     log.Component("bridge"),
	})
	if err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}
	if err := br.Start(ctx); err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}
	coord.AddListener(br)

	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		br.PublishAll()
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	return client, br, nil
}
