package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/mqtt-inspect/internal/topic"
)

// Config is the root configuration structure for mqttinspect.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	History  HistoryConfig  `yaml:"history"`
	Shell    ShellConfig    `yaml:"shell"`
	Demo     DemoConfig     `yaml:"demo"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// Subscriptions are the topic filters subscribed to on connect.
	Subscriptions []string `yaml:"subscriptions"`

	// Presence publishes a retained online/offline status for this client
	// and registers a matching Last Will.
	Presence bool `yaml:"presence"`
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

// HistoryConfig sizes the in-memory message history.
type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

// ShellConfig contains interactive shell settings.
type ShellConfig struct {
	Prompt string `yaml:"prompt"`

	// DefaultRule is applied at startup when non-empty.
	DefaultRule string `yaml:"default_rule"`

	// TimestampFormat is a Go time layout used for live output.
	TimestampFormat string `yaml:"timestamp_format"`

	// MaxPayloadDisplay truncates raw payloads in live output (0 = no limit).
	MaxPayloadDisplay int `yaml:"max_payload_display"`
}

// DemoConfig controls the offline traffic generator.
type DemoConfig struct {
	// Interval is the delay between simulated messages in milliseconds.
	Interval int `yaml:"interval"`

	// Seed makes the generated sequence reproducible (0 = time-based).
	Seed int64 `yaml:"seed"`
}

// DatabaseConfig contains SQLite database settings for saved rules.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for traffic metrics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains settings for the optional HTTP/WebSocket inspection API.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
	Auth      APIAuthConfig    `yaml:"auth"`
	UI        UIConfig         `yaml:"ui"`
}

// UIConfig controls the browser viewer served at the API root.
type UIConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir serves the viewer from disk instead of the embedded copy.
	Dir string `yaml:"dir"`
}

// APITimeoutConfig contains HTTP server timeouts (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
// An empty AllowedOrigins list allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains live stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"` // bytes
	PingInterval   int `yaml:"ping_interval"`    // seconds
	PongTimeout    int `yaml:"pong_timeout"`     // seconds
}

// APIAuthConfig controls bearer-token authentication.
type APIAuthConfig struct {
	// JWTSecret enables authentication when non-empty.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is the lifetime of tokens minted by `mqttinspect token`, in minutes.
	TokenTTL int `yaml:"token_ttl"`
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
// Environment variables follow the pattern: MQTTINSPECT_SECTION_KEY
// For example: MQTTINSPECT_MQTT_HOST, MQTTINSPECT_HISTORY_CAPACITY
func Load(path string) (*Config, error) {
	return load(path, false)
}

// LoadOptional behaves like Load but falls back to defaults (plus
// environment overrides) when the file does not exist. It is used when
// the operator did not name a config file explicitly.
func LoadOptional(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, optional bool) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
		// defaults only
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "mqttinspect",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     30,
			},
			Subscriptions: []string{"#"},
		},
		History: HistoryConfig{
			Capacity: 500,
		},
		Shell: ShellConfig{
			Prompt:            "mqtt> ",
			TimestampFormat:   "15:04:05.000",
			MaxPayloadDisplay: 512,
		},
		Demo: DemoConfig{
			Interval: 1000,
		},
		Database: DatabaseConfig{
			Path:        "./data/mqttinspect.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "mqttinspect",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8484,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
			Auth: APIAuthConfig{
				TokenTTL: 60,
			},
			UI: UIConfig{
				Enabled: true,
			},
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MQTTINSPECT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("MQTTINSPECT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MQTTINSPECT_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("MQTTINSPECT_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("MQTTINSPECT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MQTTINSPECT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("MQTTINSPECT_MQTT_SUBSCRIPTIONS"); v != "" {
		cfg.MQTT.Subscriptions = splitList(v)
	}

	// History
	if v := os.Getenv("MQTTINSPECT_HISTORY_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.History.Capacity = n
		}
	}

	// Shell
	if v := os.Getenv("MQTTINSPECT_SHELL_DEFAULT_RULE"); v != "" {
		cfg.Shell.DefaultRule = v
	}

	// Database
	if v := os.Getenv("MQTTINSPECT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("MQTTINSPECT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("MQTTINSPECT_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("MQTTINSPECT_API_JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}

	// Logging
	if v := os.Getenv("MQTTINSPECT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// splitList splits a comma-separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// minJWTSecretLength matches the shortest secret the auth package will sign with.
const minJWTSecretLength = 32

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	for _, sub := range c.MQTT.Subscriptions {
		if err := topic.ValidatePattern(sub); err != nil {
			errs = append(errs, fmt.Sprintf("mqtt.subscriptions: %q: %v", sub, err))
		}
	}
	if strings.ContainsAny(c.MQTT.Broker.ClientID, "+#/") {
		errs = append(errs, "mqtt.broker.client_id must not contain '+', '#' or '/'")
	}

	// History validation
	if c.History.Capacity < 1 {
		errs = append(errs, "history.capacity must be at least 1")
	}

	// Shell validation
	if c.Shell.MaxPayloadDisplay < 0 {
		errs = append(errs, "shell.max_payload_display must not be negative")
	}

	// Demo validation
	if c.Demo.Interval < 1 {
		errs = append(errs, "demo.interval must be at least 1 millisecond")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// InfluxDB validation (only when enabled)
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// API validation (only when enabled)
	if c.API.Enabled {
		if c.API.Port < 0 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 0 and 65535")
		}
		if c.API.WebSocket.PingInterval < 1 {
			errs = append(errs, "api.websocket.ping_interval must be at least 1 second")
		}
	}
	if s := c.API.Auth.JWTSecret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, fmt.Sprintf("api.auth.jwt_secret must be at least %d characters", minJWTSecretLength))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetDemoInterval returns the demo generator interval as a Duration.
func (c *Config) GetDemoInterval() time.Duration {
	return time.Duration(c.Demo.Interval) * time.Millisecond
}

// GetTokenTTL returns the lifetime of minted API tokens as a Duration.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.API.Auth.TokenTTL) * time.Minute
}

// GetBusyTimeout returns the SQLite busy timeout as a Duration.
func (c *Config) GetBusyTimeout() time.Duration {
	return time.Duration(c.Database.BusyTimeout) * time.Second
}
