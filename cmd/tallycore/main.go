// Tally Core - OBS tally light relay
//
// This is the main entry point for the Tally Core server. It bridges
// OBS Studio scene state to ESP32 tally lights and browser dashboards:
// devices register and heartbeat over HTTP, scene changes arrive over
// obs-websocket, and tally state fans out over WebSocket, MQTT and
// direct device pushes.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/stagelink/tally-core/migrations"

	"github.com/stagelink/tally-core/internal/api"
	"github.com/stagelink/tally-core/internal/device"
	"github.com/stagelink/tally-core/internal/discovery"
	"github.com/stagelink/tally-core/internal/gateway"
	"github.com/stagelink/tally-core/internal/infrastructure/config"
	"github.com/stagelink/tally-core/internal/infrastructure/database"
	"github.com/stagelink/tally-core/internal/infrastructure/influxdb"
	"github.com/stagelink/tally-core/internal/infrastructure/logging"
	"github.com/stagelink/tally-core/internal/infrastructure/mqtt"
	"github.com/stagelink/tally-core/internal/obs"
	"github.com/stagelink/tally-core/internal/relay"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
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
//
//nolint:gocognit // linear wiring of all components
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Tally Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	// Database and schema
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}

	// Device record store, warmed from SQLite
	livenessWindow := time.Duration(cfg.Liveness.Window) * time.Second
	store := device.NewStore(device.NewSQLiteRepository(db.DB), livenessWindow)
	store.SetLogger(log.With("component", "store"))
	if loadErr := store.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading device store: %w", loadErr)
	}
	log.Info("device store initialised", "devices", store.Count())

	dispatcher := device.NewDispatcher()
	dispatcher.SetLogger(log.With("component", "dispatch"))

	// Device command gateway
	gw := gateway.New(cfg.Gateway)
	gw.SetLogger(log.With("component", "gateway"))

	// MQTT mirror (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Heartbeat telemetry (optional)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Relay pipeline. Optional collaborators are typed interfaces, so a
	// nil concrete pointer must not be wrapped into a non-nil interface.
	deps := relay.Deps{
		Store:      store,
		Dispatcher: dispatcher,
		Pusher:     gw,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.Telemetry = influxClient
	}
	rly, err := relay.New(deps)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}
	rly.SetLogger(log.With("component", "relay"))

	// Liveness sweeps
	sweepInterval := time.Duration(cfg.Liveness.SweepInterval) * time.Second
	tracker := device.NewTracker(store, dispatcher, sweepInterval)
	tracker.SetLogger(log.With("component", "liveness"))
	go tracker.Run(ctx)

	// OBS control-plane client (optional)
	if cfg.OBS.Enabled {
		obsClient := obs.New(cfg.OBS)
		obsClient.SetLogger(log.With("component", "obs"))
		obsClient.SetOnSourceStates(func(states map[string]device.TallyState) {
			rly.HandleSourceStates(ctx, states)
		})
		obsClient.SetOnStatus(rly.HandleOBSStatus)
		go obsClient.Run(ctx)
		log.Info("OBS client started", "host", cfg.OBS.Host, "port", cfg.OBS.Port)
	} else {
		log.Info("OBS client disabled")
	}

	// Passive UDP discovery (optional)
	if cfg.Discovery.Enabled {
		listener := discovery.NewListener(cfg.Discovery.Port, func(payload map[string]any, from net.Addr) {
			rly.HandleAnnouncement(ctx, payload, from)
		})
		listener.SetLogger(log.With("component", "discovery"))
		go func() {
			if runErr := listener.Run(ctx); runErr != nil {
				log.Error("discovery listener stopped", "error", runErr)
			}
		}()
		log.Info("discovery listener started", "port", cfg.Discovery.Port)
	} else {
		log.Info("discovery listener disabled")
	}

	// Active subnet scanner, exposed through the discover endpoint
	var scanner *discovery.Scanner
	if cfg.Discovery.ScanCIDR != "" {
		scanner = discovery.NewScanner(cfg.Discovery.ScanCIDR, cfg.Discovery.ScanConcurrency, gw.DeviceInfo)
		scanner.SetLogger(log.With("component", "discovery"))
	}

	// HTTP + WebSocket server
	server, err := api.New(api.Deps{
		Config:     cfg.Server,
		WS:         cfg.WebSocket,
		Logger:     log.With("component", "api"),
		Store:      store,
		Dispatcher: dispatcher,
		Relay:      rly,
		Gateway:    gw,
		Scanner:    scanner,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.Server.Host, "port", cfg.Server.Port)

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("Tally Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TALLYCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TALLYCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
