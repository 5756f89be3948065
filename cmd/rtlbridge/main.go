// rtl-bridge - Sensor to Home Assistant MQTT Bridge
//
// This is the main entry point for the rtl-bridge application.
// The bridge collects readings from newline-JSON TCP sensors and
// rtl_433 radio receivers, tracks the devices it hears, and publishes
// them to Home Assistant over MQTT discovery with no manual
// configuration on the Home Assistant side.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/halnode/rtl-bridge/migrations"

	"github.com/halnode/rtl-bridge/internal/adapters/rtl"
	"github.com/halnode/rtl-bridge/internal/adapters/sysmon"
	"github.com/halnode/rtl-bridge/internal/adapters/tcp"
	"github.com/halnode/rtl-bridge/internal/availability"
	"github.com/halnode/rtl-bridge/internal/bridge"
	"github.com/halnode/rtl-bridge/internal/device"
	"github.com/halnode/rtl-bridge/internal/discovery"
	"github.com/halnode/rtl-bridge/internal/identity"
	"github.com/halnode/rtl-bridge/internal/infrastructure/config"
	"github.com/halnode/rtl-bridge/internal/infrastructure/database"
	"github.com/halnode/rtl-bridge/internal/infrastructure/influxdb"
	"github.com/halnode/rtl-bridge/internal/infrastructure/logging"
	"github.com/halnode/rtl-bridge/internal/infrastructure/mqtt"
	"github.com/halnode/rtl-bridge/internal/ingest"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		// An identity failure means an ephemeral bridge ID, which would
		// duplicate every device in Home Assistant. Distinct exit code so
		// supervisors can tell it apart from transient startup failures.
		if errors.Is(err, identity.ErrStorage) {
			os.Exit(2)
		}
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
	log.Info("starting rtl-bridge",
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

	// Resolve the bridge identity. Everything downstream - topics,
	// unique_ids, the device registry - is keyed on it.
	ident, err := identity.Resolve(ctx, identity.NewStore(db), cfg.Bridge)
	if err != nil {
		return fmt.Errorf("resolving bridge identity: %w", err)
	}
	log.Info("bridge identity resolved", "id", ident.ID, "name", ident.Name)

	topics := mqtt.Topics{BridgeID: ident.ID}

	// Connect to MQTT broker. The bridge availability topic doubles as
	// the LWT topic so Home Assistant sees an unclean exit.
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics.BridgeAvailability())
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

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

	// Build the pipeline
	queue := ingest.NewQueue(cfg.Queue.Size)

	resolver := ingest.NewResolver(ingest.Config{
		BridgeID:   ident.ID,
		BridgeName: ident.Name,
		SkipKeys:   cfg.Ingest.SkipKeys,
		Whitelist:  cfg.Ingest.Whitelist,
		Blacklist:  cfg.Ingest.Blacklist,
		DewPoint:   cfg.Ingest.DewPoint,
	})

	registry := device.NewRegistry(ident.ID)
	registry.SetLogger(log)

	announcer := discovery.NewAnnouncer(mqttClient, discovery.BridgeInfo{
		ID:      ident.ID,
		Name:    ident.Name,
		Version: version,
	})
	announcer.SetLogger(log)

	states := discovery.NewStatePublisher(mqttClient, ident.ID, byte(cfg.MQTT.QoS))
	states.SetLogger(log)

	tracker := availability.NewTracker(registry, mqttClient, ident.ID, map[ingest.Channel]time.Duration{
		ingest.ChannelTCP:    time.Duration(cfg.Availability.TCPTimeout) * time.Second,
		ingest.ChannelRadio:  time.Duration(cfg.Availability.RadioTimeout) * time.Second,
		ingest.ChannelSystem: time.Duration(cfg.Availability.SystemTimeout) * time.Second,
	})
	tracker.SetLogger(log)

	opts := bridge.Options{
		Queue:            queue,
		Resolver:         resolver,
		Registry:         registry,
		Announcer:        announcer,
		States:           states,
		Tracker:          tracker,
		SweepInterval:    cfg.GetSweepInterval(),
		ThrottleInterval: time.Duration(cfg.Ingest.ThrottleInterval) * time.Second,
		ShutdownGrace:    cfg.GetShutdownGrace(),
		MultiRadio:       len(cfg.Radios) > 1,
	}
	// Assign only when non-nil: a nil *influxdb.Client in the interface
	// field would not compare equal to nil inside the engine.
	if influxClient != nil {
		opts.Archive = influxClient
	}

	engine := bridge.New(opts)
	engine.SetLogger(log)

	// Wire MQTT callbacks into the engine's command channel
	if err := mqttClient.Subscribe(topics.CleanupCommand(), byte(cfg.MQTT.QoS), func(_ string, payload []byte) error {
		engine.EnqueueCleanup(string(payload))
		return nil
	}); err != nil {
		return fmt.Errorf("subscribing to cleanup commands: %w", err)
	}

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		engine.NotifyReconnect()
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Start the TCP listener (if enabled)
	var listener *tcp.Listener
	if cfg.TCP.Enabled {
		listener = tcp.NewListener(cfg.TCP, queue)
		listener.SetLogger(log)
		if startErr := listener.Start(ctx); startErr != nil {
			return fmt.Errorf("starting TCP listener: %w", startErr)
		}
		defer func() {
			log.Info("waiting for TCP connections to close")
			listener.Wait()
		}()
		engine.AddMalformedSource(listener.Malformed)
		log.Info("TCP listener started", "addr", listener.Addr())
	} else {
		log.Info("TCP listener disabled")
	}

	// Start the rtl_433 radios (if configured)
	if len(cfg.Radios) > 0 {
		supervisor := rtl.NewSupervisor(cfg.Radios, queue)
		supervisor.SetLogger(log)
		supervisor.SetOnStatusChange(engine.NotifyRadioStatus)
		for _, radio := range supervisor.Radios() {
			engine.AddMalformedSource(radio.Malformed)
		}
		supervisor.StartAll(ctx)
		defer func() {
			log.Info("stopping radios")
			supervisor.StopAll()
		}()
		log.Info("radios started", "count", len(cfg.Radios))
	} else {
		log.Info("no radios configured")
	}

	// Start the host system monitor (if enabled)
	if cfg.SystemMon.Enabled {
		collector := sysmon.NewCollector(cfg.SystemMon, queue)
		collector.SetLogger(log)
		go collector.Run(ctx)
		log.Info("system monitor started", "interval_s", cfg.SystemMon.Interval)
	} else {
		log.Info("system monitor disabled")
	}

	log.Info("initialisation complete, processing events")

	// Block until shutdown, consuming the queue
	engine.Run(ctx)

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Radios stop (SIGTERM, then SIGKILL)
	// 2. TCP connections drain
	// 3. InfluxDB flushes and closes (if enabled)
	// 4. MQTT publishes retained "offline" and disconnects
	// 5. Database closes

	log.Info("rtl-bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses RTLBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RTLBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
