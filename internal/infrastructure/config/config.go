package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Naboom MQTT service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Broker    BrokerConfig    `yaml:"broker"`
	Auth      AuthConfig      `yaml:"auth"`
	TLS       TLSConfig       `yaml:"tls"`
	QoS       int             `yaml:"qos"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	API       APIConfig       `yaml:"api"`
	Journal   JournalConfig   `yaml:"journal"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Health    HealthConfig    `yaml:"health"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BrokerConfig contains MQTT broker connection details.
type BrokerConfig struct {
	Host string `yaml:"host"`

	// Port is the plain TCP listener port. TLSPort is used instead when
	// TLS is enabled.
	Port    int `yaml:"port"`
	TLSPort int `yaml:"tls_port"`

	ClientID string `yaml:"client_id"`

	// Keepalive is the MQTT keepalive interval in seconds.
	Keepalive int `yaml:"keepalive"`

	TLS bool `yaml:"tls"`

	// Websocket switches the transport from raw TCP to MQTT-over-WebSocket.
	Websocket     bool   `yaml:"websocket"`
	WebsocketPath string `yaml:"websocket_path"`
}

// AuthConfig contains MQTT authentication credentials.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TLSConfig contains TLS trust settings for the broker connection.
type TLSConfig struct {
	// CAFile is an optional PEM bundle for verifying the broker certificate.
	// When empty, the system certificate pool is used.
	CAFile string `yaml:"ca_file"`

	// Insecure disables certificate and hostname verification. Intended for
	// self-signed broker certificates in non-production deployments only.
	Insecure bool `yaml:"insecure"`
}

// ReconnectConfig contains connect-retry settings.
type ReconnectConfig struct {
	// InitialDelay is the first backoff delay in seconds.
	InitialDelay int `yaml:"initial_delay"`

	// MaxDelay caps the exponential backoff in seconds.
	MaxDelay int `yaml:"max_delay"`

	// MaxAttempts is the number of consecutive failed connect attempts
	// before the service gives up and exits. Zero means retry forever.
	MaxAttempts int `yaml:"max_attempts"`
}

// APIConfig contains the health exposition HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// JournalConfig contains the SQLite message journal settings.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// HealthConfig contains health reporting settings.
type HealthConfig struct {
	// ReportInterval is how often the health payload is published to the
	// broker, in seconds.
	ReportInterval int `yaml:"report_interval"`
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
// Environment variables follow the pattern: NABOOM_SECTION_KEY
// For example: NABOOM_MQTT_HOST, NABOOM_INFLUXDB_TOKEN
//
// A missing file is not an error: the service runs on defaults plus
// environment overrides, which is the normal containerised deployment mode.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults + env only.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with defaults suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host:          "localhost",
			Port:          1883,
			TLSPort:       8883,
			ClientID:      "naboom-mqtt",
			Keepalive:     60,
			WebsocketPath: "/mqtt",
		},
		QoS: 1,
		Reconnect: ReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
			MaxAttempts:  10,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		Journal: JournalConfig{
			Enabled:     false,
			Path:        "./data/naboom-mqtt.db",
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			URL:           "http://localhost:8086",
			Org:           "naboom",
			Bucket:        "mqtt",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Health: HealthConfig{
			ReportInterval: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NABOOM_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Broker
	if v := os.Getenv("NABOOM_MQTT_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("NABOOM_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = port
		}
	}
	if v := os.Getenv("NABOOM_MQTT_CLIENT_ID"); v != "" {
		cfg.Broker.ClientID = v
	}
	if v := os.Getenv("NABOOM_MQTT_USERNAME"); v != "" {
		cfg.Auth.Username = v
	}
	if v := os.Getenv("NABOOM_MQTT_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}

	// API
	if v := os.Getenv("NABOOM_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Journal
	if v := os.Getenv("NABOOM_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	// InfluxDB
	if v := os.Getenv("NABOOM_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Broker.Host == "" {
		errs = append(errs, "broker.host is required")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker.port must be between 1 and 65535")
	}
	if c.Broker.TLS && (c.Broker.TLSPort < 1 || c.Broker.TLSPort > 65535) {
		errs = append(errs, "broker.tls_port must be between 1 and 65535")
	}
	if c.Broker.ClientID == "" {
		errs = append(errs, "broker.client_id is required")
	}
	if c.Broker.Keepalive < 1 {
		errs = append(errs, "broker.keepalive must be at least 1 second")
	}
	if c.QoS < 0 || c.QoS > 2 {
		errs = append(errs, "qos must be 0, 1, or 2")
	}
	if c.Reconnect.InitialDelay < 1 {
		errs = append(errs, "reconnect.initial_delay must be at least 1 second")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		errs = append(errs, "reconnect.max_delay must be >= reconnect.initial_delay")
	}
	if c.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "reconnect.max_attempts must not be negative")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when journal is enabled")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.Health.ReportInterval < 1 {
		errs = append(errs, "health.report_interval must be at least 1 second")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BrokerPort returns the effective broker port for the configured transport.
func (c *Config) BrokerPort() int {
	if c.Broker.TLS {
		return c.Broker.TLSPort
	}
	return c.Broker.Port
}

// ReportInterval returns the health report interval as a Duration.
func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.Health.ReportInterval) * time.Second
}
