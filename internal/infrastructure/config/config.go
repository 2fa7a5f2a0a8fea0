package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Tally Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	OBS       OBSConfig       `yaml:"obs"`
	Database  DatabaseConfig  `yaml:"database"`
	Liveness  LivenessConfig  `yaml:"liveness"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP API server settings.
type ServerConfig struct {
	Host     string              `yaml:"host"`
	Port     int                 `yaml:"port"`
	Timeouts ServerTimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig          `yaml:"cors"`
}

// ServerTimeoutConfig contains HTTP timeout settings in seconds.
type ServerTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains browser WebSocket hub settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// OBSConfig contains the obs-websocket connection settings.
type OBSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`

	// ReconnectInitialDelay and ReconnectMaxDelay bound the reconnect
	// backoff in seconds when the OBS connection drops.
	ReconnectInitialDelay int `yaml:"reconnect_initial_delay"`
	ReconnectMaxDelay     int `yaml:"reconnect_max_delay"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LivenessConfig controls device offline detection.
type LivenessConfig struct {
	// SweepInterval is how often the tracker scans for stale devices (seconds).
	SweepInterval int `yaml:"sweep_interval"`

	// Window is the maximum gap since last contact before a device is
	// considered offline (seconds).
	Window int `yaml:"window"`
}

// GatewayConfig contains timeouts for outbound device commands, in seconds.
type GatewayConfig struct {
	CommandTimeout int `yaml:"command_timeout"`
	EraseTimeout   int `yaml:"erase_timeout"`
	UploadTimeout  int `yaml:"upload_timeout"`
	ProbeTimeout   int `yaml:"probe_timeout"`
}

// DiscoveryConfig contains device discovery settings.
type DiscoveryConfig struct {
	// Enabled controls the passive UDP announcement listener.
	Enabled bool `yaml:"enabled"`

	// Port is the UDP port devices broadcast announcements to.
	Port int `yaml:"port"`

	// ScanCIDR is the subnet swept by an active discovery scan
	// (e.g., "192.168.1.0/24"). Empty disables active scans.
	ScanCIDR string `yaml:"scan_cidr"`

	// ScanConcurrency bounds parallel probes during an active scan.
	ScanConcurrency int `yaml:"scan_concurrency"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for heartbeat telemetry.
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
// Environment variables follow the pattern: TALLYCORE_SECTION_KEY
// For example: TALLYCORE_DATABASE_PATH, TALLYCORE_OBS_PASSWORD
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: ServerTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		OBS: OBSConfig{
			Enabled:               true,
			Host:                  "localhost",
			Port:                  4455,
			ReconnectInitialDelay: 1,
			ReconnectMaxDelay:     30,
		},
		Database: DatabaseConfig{
			Path:        "./data/tallycore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Liveness: LivenessConfig{
			SweepInterval: 10,
			Window:        30,
		},
		Gateway: GatewayConfig{
			CommandTimeout: 5,
			EraseTimeout:   10,
			UploadTimeout:  90,
			ProbeTimeout:   2,
		},
		Discovery: DiscoveryConfig{
			Enabled:         true,
			Port:            3001,
			ScanConcurrency: 16,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tallycore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TALLYCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TALLYCORE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TALLYCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TALLYCORE_OBS_HOST"); v != "" {
		cfg.OBS.Host = v
	}
	if v := os.Getenv("TALLYCORE_OBS_PASSWORD"); v != "" {
		cfg.OBS.Password = v
	}
	if v := os.Getenv("TALLYCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TALLYCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TALLYCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("TALLYCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Liveness.SweepInterval < 1 {
		errs = append(errs, "liveness.sweep_interval must be at least 1 second")
	}
	if c.Liveness.Window < c.Liveness.SweepInterval {
		errs = append(errs, "liveness.window must not be shorter than liveness.sweep_interval")
	}
	if c.OBS.Enabled && (c.OBS.Port < 1 || c.OBS.Port > 65535) {
		errs = append(errs, "obs.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.Discovery.Enabled && (c.Discovery.Port < 1 || c.Discovery.Port > 65535) {
		errs = append(errs, "discovery.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the server read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the server write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the server idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Idle) * time.Second
}

// SweepIntervalDuration returns the liveness sweep interval as a Duration.
func (c *LivenessConfig) SweepIntervalDuration() time.Duration {
	return time.Duration(c.SweepInterval) * time.Second
}

// WindowDuration returns the liveness window as a Duration.
func (c *LivenessConfig) WindowDuration() time.Duration {
	return time.Duration(c.Window) * time.Second
}
