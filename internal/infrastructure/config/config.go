package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultUpdateInterval is the REST polling period in seconds when a
// device does not specify one.
const DefaultUpdateInterval = 15

// Config is the root configuration structure for EcoFlow Bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database Database  `yaml:"database"`
	EcoFlow  EcoFlow   `yaml:"ecoflow"`
	MQTT     MQTT      `yaml:"mqtt"`
	Devices  []Device  `yaml:"devices"`
	API      API       `yaml:"api"`
	InfluxDB InfluxDB  `yaml:"influxdb"`
	Logging  Logging   `yaml:"logging"`
	WS       WebSocket `yaml:"websocket"`
}

// Database contains SQLite database settings.
type Database struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetentionDays bounds the state_history table: rows older
	// than this are pruned periodically. Zero disables pruning.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// EcoFlow contains EcoFlow Developer API credentials and endpoint settings.
type EcoFlow struct {
	// AccessKey and SecretKey are issued by the EcoFlow developer portal
	// and authenticate signed REST requests.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// BaseURL is the cloud REST endpoint. Leave empty for the default
	// (https://api-e.ecoflow.com). Overridable mainly for tests.
	BaseURL string `yaml:"base_url"`

	// Timeout is the whole-request timeout in seconds. Default: 30.
	Timeout int `yaml:"timeout"`
}

// MQTT contains vendor MQTT broker settings shared by all devices.
type MQTT struct {
	// Enabled turns the push channel on. When false, or when credentials
	// are missing, the bridge runs in REST-only mode.
	Enabled bool `yaml:"enabled"`

	// Broker host/port. Defaults: mqtt.ecoflow.com:8883 (TLS).
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Username and Password authenticate against the vendor broker.
	// These are the certificate credentials, not the REST key pair.
	// Leave empty to exchange them at startup via the certification
	// endpoint using the REST credentials.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// CertificateAccount scopes the per-device topics. Defaults to
	// Username when empty.
	CertificateAccount string `yaml:"certificate_account"`
}

// Device describes one configured EcoFlow device.
type Device struct {
	// SN is the device serial number.
	SN string `yaml:"sn"`

	// Type is the device model identifier (e.g. "delta_pro_3").
	Type string `yaml:"type"`

	// Name is an optional human-readable label. Defaults to the SN.
	Name string `yaml:"name"`

	// UpdateInterval is the REST polling period in seconds. Default: 15.
	// May be changed at runtime; the stored setting wins over this value.
	UpdateInterval int `yaml:"update_interval"`

	// Diagnostics enables the bounded capture buffers for this device.
	Diagnostics bool `yaml:"diagnostics"`
}

// API contains HTTP API server settings.
type API struct {
	Host     string      `yaml:"host"`
	Port     int         `yaml:"port"`
	TLS      TLS         `yaml:"tls"`
	Timeouts APITimeouts `yaml:"timeouts"`

	// AuthToken protects all non-health endpoints via a static bearer
	// token. Empty disables authentication (local development only).
	AuthToken string `yaml:"auth_token"`
}

// TLS contains TLS certificate settings.
type TLS struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeouts contains HTTP timeout settings in seconds.
type APITimeouts struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocket contains WebSocket server settings.
type WebSocket struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDB contains InfluxDB connection settings for the telemetry sink.
type InfluxDB struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// Logging contains logging settings.
type Logging struct {
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
// Environment variables follow the pattern: ECOFLOW_BRIDGE_SECTION_KEY
// For example: ECOFLOW_BRIDGE_ACCESS_KEY, ECOFLOW_BRIDGE_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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
	applyDeviceDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: Database{
			Path:                 "./data/ecoflow-bridge.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 30,
		},
		EcoFlow: EcoFlow{
			Timeout: 30,
		},
		MQTT: MQTT{
			Enabled: true,
			Host:    "mqtt.ecoflow.com",
			Port:    8883,
		},
		API: API{
			Host: "0.0.0.0",
			Port: 8087,
			Timeouts: APITimeouts{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WS: WebSocket{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ECOFLOW_BRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("ECOFLOW_BRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// EcoFlow REST credentials
	if v := os.Getenv("ECOFLOW_BRIDGE_ACCESS_KEY"); v != "" {
		cfg.EcoFlow.AccessKey = v
	}
	if v := os.Getenv("ECOFLOW_BRIDGE_SECRET_KEY"); v != "" {
		cfg.EcoFlow.SecretKey = v
	}

	// MQTT credentials
	if v := os.Getenv("ECOFLOW_BRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("ECOFLOW_BRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}

	// API
	if v := os.Getenv("ECOFLOW_BRIDGE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("ECOFLOW_BRIDGE_API_AUTH_TOKEN"); v != "" {
		cfg.API.AuthToken = v
	}

	// InfluxDB
	if v := os.Getenv("ECOFLOW_BRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// applyDeviceDefaults fills per-device defaults after YAML parsing.
func applyDeviceDefaults(cfg *Config) {
	for i := range cfg.Devices {
		if cfg.Devices[i].UpdateInterval <= 0 {
			cfg.Devices[i].UpdateInterval = DefaultUpdateInterval
		}
		if cfg.Devices[i].Name == "" {
			cfg.Devices[i].Name = cfg.Devices[i].SN
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.HistoryRetentionDays < 0 {
		errs = append(errs, "database.history_retention_days must not be negative")
	}

	if c.EcoFlow.AccessKey == "" {
		errs = append(errs, "ecoflow.access_key is required (set ECOFLOW_BRIDGE_ACCESS_KEY environment variable)")
	}
	if c.EcoFlow.SecretKey == "" {
		errs = append(errs, "ecoflow.secret_key is required (set ECOFLOW_BRIDGE_SECRET_KEY environment variable)")
	}
	if c.EcoFlow.Timeout <= 0 {
		errs = append(errs, "ecoflow.timeout must be positive")
	}

	if len(c.Devices) == 0 {
		errs = append(errs, "at least one device must be configured")
	}
	seen := make(map[string]bool, len(c.Devices))
	for _, d := range c.Devices {
		if d.SN == "" {
			errs = append(errs, "devices[].sn is required")
			continue
		}
		if seen[d.SN] {
			errs = append(errs, fmt.Sprintf("duplicate device sn %q", d.SN))
		}
		seen[d.SN] = true
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetRequestTimeout returns the EcoFlow REST request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.EcoFlow.Timeout) * time.Second
}
