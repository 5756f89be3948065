package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge       BridgeConfig       `yaml:"bridge"`
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	TCP          TCPConfig          `yaml:"tcp"`
	Radios       []RadioConfig      `yaml:"radios"`
	SystemMon    SystemMonConfig    `yaml:"system_monitor"`
	Ingest       IngestConfig       `yaml:"ingest"`
	Availability AvailabilityConfig `yaml:"availability"`
	Queue        QueueConfig        `yaml:"queue"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// BridgeConfig contains the bridge's own identity overrides.
//
// When ID is empty the bridge loads (or generates) a persisted identifier
// from the database. A non-empty ID takes precedence and is persisted back.
type BridgeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// TCPConfig contains the newline-JSON TCP listener settings.
type TCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	// MaxLineBytes limits the size of a single JSON line from a client.
	MaxLineBytes int `yaml:"max_line_bytes"`
	// ReadTimeout is the per-connection idle timeout in seconds.
	ReadTimeout int `yaml:"read_timeout"`
}

// RadioConfig describes one rtl_433 receiver to supervise.
type RadioConfig struct {
	// Name labels the radio's status entity. Defaults to "radio" for a
	// single unnamed radio.
	Name string `yaml:"name"`
	// Frequency in Hz, passed to rtl_433 -f (e.g. 433920000).
	Frequency int64 `yaml:"frequency"`
	// SampleRate in Hz, passed to rtl_433 -s.
	SampleRate int `yaml:"sample_rate"`
	// Device selects the dongle by index, passed as -d :index. -1 lets
	// rtl_433 pick.
	Device int `yaml:"device"`
	// Binary is the rtl_433 executable path.
	Binary string `yaml:"binary"`
	// ExtraArgs are appended verbatim to the command line.
	ExtraArgs []string `yaml:"extra_args"`
}

// UnmarshalYAML applies defaults the zero value cannot express: an
// omitted device index must mean "let rtl_433 pick", not dongle 0.
func (r *RadioConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain RadioConfig
	p := plain{Device: -1}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*r = RadioConfig(p)
	return nil
}

// SystemMonConfig contains host system monitor settings.
type SystemMonConfig struct {
	Enabled  bool `yaml:"enabled"`
	Interval int  `yaml:"interval"` // seconds
}

// IngestConfig contains event normalisation and filtering settings.
type IngestConfig struct {
	// SkipKeys are field names stripped from every event before publishing.
	SkipKeys []string `yaml:"skip_keys"`
	// Whitelist, when non-empty, admits only devices whose "model/id" matches
	// one of the glob patterns. Blacklist rejects matches and wins over the
	// whitelist.
	Whitelist []string `yaml:"whitelist"`
	Blacklist []string `yaml:"blacklist"`
	// DewPoint enables dew point enrichment when a reading carries both
	// temperature and humidity.
	DewPoint bool `yaml:"dew_point"`
	// ThrottleInterval, when > 0, buffers readings and flushes averaged
	// values every interval (seconds). 0 publishes every reading.
	ThrottleInterval int `yaml:"throttle_interval"`
}

// AvailabilityConfig contains offline detection settings (seconds).
type AvailabilityConfig struct {
	SweepInterval int `yaml:"sweep_interval"`
	TCPTimeout    int `yaml:"tcp_timeout"`
	RadioTimeout  int `yaml:"radio_timeout"`
	SystemTimeout int `yaml:"system_timeout"`
}

// QueueConfig contains inbound event queue settings.
type QueueConfig struct {
	Size int `yaml:"size"`
	// ShutdownGrace bounds the drain period on shutdown (seconds).
	ShutdownGrace int `yaml:"shutdown_grace"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RTLBRIDGE_SECTION_KEY
// For example: RTLBRIDGE_DATABASE_PATH, RTLBRIDGE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/rtlbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		TCP: TCPConfig{
			Enabled:      true,
			Host:         "0.0.0.0",
			Port:         8888,
			MaxLineBytes: 16384,
			ReadTimeout:  300,
		},
		SystemMon: SystemMonConfig{
			Enabled:  true,
			Interval: 60,
		},
		Ingest: IngestConfig{
			SkipKeys: []string{"time", "mod", "mic", "protocol"},
		},
		Availability: AvailabilityConfig{
			SweepInterval: 30,
			TCPTimeout:    150,
			RadioTimeout:  1800,
			SystemTimeout: 150,
		},
		Queue: QueueConfig{
			Size:          256,
			ShutdownGrace: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RTLBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Bridge identity
	if v := os.Getenv("RTLBRIDGE_BRIDGE_ID"); v != "" {
		cfg.Bridge.ID = v
	}
	if v := os.Getenv("RTLBRIDGE_BRIDGE_NAME"); v != "" {
		cfg.Bridge.Name = v
	}

	// Database
	if v := os.Getenv("RTLBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("RTLBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RTLBRIDGE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("RTLBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RTLBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// TCP listener
	if v := os.Getenv("RTLBRIDGE_TCP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.TCP.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("RTLBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("RTLBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}

	// TCP validation
	if c.TCP.Enabled && (c.TCP.Port < 1 || c.TCP.Port > 65535) {
		errs = append(errs, "tcp.port must be between 1 and 65535")
	}

	// Radio validation
	for i, r := range c.Radios {
		if r.Frequency <= 0 {
			errs = append(errs, fmt.Sprintf("radios[%d].frequency is required", i))
		}
	}

	// Queue validation
	if c.Queue.Size < 1 {
		errs = append(errs, "queue.size must be at least 1")
	}

	// Ingest validation
	if c.Ingest.ThrottleInterval < 0 {
		errs = append(errs, "ingest.throttle_interval must not be negative")
	}

	// Availability validation
	if c.Availability.SweepInterval < 1 {
		errs = append(errs, "availability.sweep_interval must be at least 1 second")
	}
	if c.Availability.TCPTimeout < 1 || c.Availability.RadioTimeout < 1 || c.Availability.SystemTimeout < 1 {
		errs = append(errs, "availability timeouts must be at least 1 second")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the TCP per-connection read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.TCP.ReadTimeout) * time.Second
}

// GetSweepInterval returns the availability sweep interval as a Duration.
func (c *Config) GetSweepInterval() time.Duration {
	return time.Duration(c.Availability.SweepInterval) * time.Second
}

// GetShutdownGrace returns the queue drain grace period as a Duration.
func (c *Config) GetShutdownGrace() time.Duration {
	return time.Duration(c.Queue.ShutdownGrace) * time.Second
}
