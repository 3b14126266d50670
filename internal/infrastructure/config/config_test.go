package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
mqtt:
  broker:
    host: "broker.local"
    port: 8883
    tls: true
    client_id: "inspector-1"
  qos: 1
  subscriptions:
    - "sensors/#"
    - "alerts/+"
history:
  capacity: 1000
shell:
  default_rule: "SELECT * FROM 'alerts/#'"
database:
  path: "/tmp/rules.db"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if len(cfg.MQTT.Subscriptions) != 2 || cfg.MQTT.Subscriptions[1] != "alerts/+" {
		t.Errorf("MQTT.Subscriptions = %v, want [sensors/# alerts/+]", cfg.MQTT.Subscriptions)
	}
	if cfg.History.Capacity != 1000 {
		t.Errorf("History.Capacity = %d, want 1000", cfg.History.Capacity)
	}
	if cfg.Shell.DefaultRule != "SELECT * FROM 'alerts/#'" {
		t.Errorf("Shell.DefaultRule = %q", cfg.Shell.DefaultRule)
	}

	// Unset values keep their defaults.
	if cfg.Shell.Prompt != "mqtt> " {
		t.Errorf("Shell.Prompt = %q, want default %q", cfg.Shell.Prompt, "mqtt> ")
	}
	if cfg.Database.Path != "/tmp/rules.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/rules.db")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoadOptional_MissingFile(t *testing.T) {
	t.Setenv("MQTTINSPECT_MQTT_HOST", "env-broker")

	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOptional() error = %v", err)
	}
	if cfg.MQTT.Broker.Host != "env-broker" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
	if cfg.History.Capacity != 500 {
		t.Errorf("History.Capacity = %d, want default 500", cfg.History.Capacity)
	}
}

func TestLoadOptional_InvalidYAML(t *testing.T) {
	if _, err := LoadOptional(writeConfig(t, "invalid: [yaml: content")); err == nil {
		t.Error("LoadOptional() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
history:
  capacity: 0
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for zero history.capacity, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"missing host", func(c *Config) { c.MQTT.Broker.Host = "" }, "mqtt.broker.host"},
		{"bad port", func(c *Config) { c.MQTT.Broker.Port = 70000 }, "mqtt.broker.port"},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"bad subscription", func(c *Config) { c.MQTT.Subscriptions = []string{"a/#/b"} }, "mqtt.subscriptions"},
		{"client id with separator", func(c *Config) { c.MQTT.Broker.ClientID = "a/b" }, "mqtt.broker.client_id"},
		{"zero capacity", func(c *Config) { c.History.Capacity = 0 }, "history.capacity"},
		{"negative payload display", func(c *Config) { c.Shell.MaxPayloadDisplay = -1 }, "shell.max_payload_display"},
		{"zero demo interval", func(c *Config) { c.Demo.Interval = 0 }, "demo.interval"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"influx enabled without url", func(c *Config) { c.InfluxDB.Enabled = true }, "influxdb.url"},
		{"influx disabled without url", func(c *Config) { c.InfluxDB.URL = "" }, ""},
		{"api bad port", func(c *Config) { c.API.Enabled = true; c.API.Port = -1 }, "api.port"},
		{"api disabled bad port", func(c *Config) { c.API.Port = -1 }, ""},
		{"api zero ping interval", func(c *Config) { c.API.Enabled = true; c.API.WebSocket.PingInterval = 0 }, "api.websocket.ping_interval"},
		{"short jwt secret", func(c *Config) { c.API.Auth.JWTSecret = "short" }, "api.auth.jwt_secret"},
		{"long jwt secret", func(c *Config) { c.API.Auth.JWTSecret = strings.Repeat("s", 32) }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.QoS = 9
	cfg.History.Capacity = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want errors")
	}
	for _, want := range []string{"mqtt.qos", "history.capacity"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, missing %q", err, want)
		}
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		Demo:     DemoConfig{Interval: 250},
		Database: DatabaseConfig{BusyTimeout: 5},
		API:      APIConfig{Auth: APIAuthConfig{TokenTTL: 90}},
	}

	if got := cfg.GetDemoInterval().Milliseconds(); got != 250 {
		t.Errorf("GetDemoInterval() = %vms, want 250ms", got)
	}
	if got := cfg.GetBusyTimeout().Seconds(); got != 5 {
		t.Errorf("GetBusyTimeout() = %v, want 5", got)
	}
	if got := cfg.GetTokenTTL().Minutes(); got != 90 {
		t.Errorf("GetTokenTTL() = %v, want 90", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("MQTTINSPECT_MQTT_HOST", "mqtt.example.com")
	t.Setenv("MQTTINSPECT_MQTT_PORT", "1884")
	t.Setenv("MQTTINSPECT_MQTT_CLIENT_ID", "custom-id")
	t.Setenv("MQTTINSPECT_MQTT_USERNAME", "testuser")
	t.Setenv("MQTTINSPECT_MQTT_PASSWORD", "testpass")
	t.Setenv("MQTTINSPECT_MQTT_SUBSCRIPTIONS", "a/#, b/+ ,,")
	t.Setenv("MQTTINSPECT_HISTORY_CAPACITY", "42")
	t.Setenv("MQTTINSPECT_SHELL_DEFAULT_RULE", "SELECT * FROM 'a/#'")
	t.Setenv("MQTTINSPECT_DATABASE_PATH", "/custom/path.db")
	t.Setenv("MQTTINSPECT_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("MQTTINSPECT_API_PORT", "9090")
	t.Setenv("MQTTINSPECT_API_JWT_SECRET", "env-secret")
	t.Setenv("MQTTINSPECT_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 1884 {
		t.Errorf("MQTT.Broker.Port = %d, want 1884", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Broker.ClientID != "custom-id" {
		t.Errorf("MQTT.Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "custom-id")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if len(cfg.MQTT.Subscriptions) != 2 || cfg.MQTT.Subscriptions[0] != "a/#" || cfg.MQTT.Subscriptions[1] != "b/+" {
		t.Errorf("MQTT.Subscriptions = %v, want [a/# b/+]", cfg.MQTT.Subscriptions)
	}
	if cfg.History.Capacity != 42 {
		t.Errorf("History.Capacity = %d, want 42", cfg.History.Capacity)
	}
	if cfg.Shell.DefaultRule != "SELECT * FROM 'a/#'" {
		t.Errorf("Shell.DefaultRule = %q", cfg.Shell.DefaultRule)
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.API.Auth.JWTSecret != "env-secret" {
		t.Errorf("API.Auth.JWTSecret = %q, want %q", cfg.API.Auth.JWTSecret, "env-secret")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestApplyEnvOverrides_IgnoresBadNumbers(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("MQTTINSPECT_MQTT_PORT", "not-a-port")
	t.Setenv("MQTTINSPECT_HISTORY_CAPACITY", "lots")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.History.Capacity != 500 {
		t.Errorf("History.Capacity = %d, want default 500", cfg.History.Capacity)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Database.Path == "" {
		t.Error("Default() should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("Default() MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if len(cfg.MQTT.Subscriptions) != 1 || cfg.MQTT.Subscriptions[0] != "#" {
		t.Errorf("Default() MQTT.Subscriptions = %v, want [#]", cfg.MQTT.Subscriptions)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("Default() Logging.Output = %q, want stderr", cfg.Logging.Output)
	}
	if cfg.API.Enabled {
		t.Error("Default() API.Enabled = true, want false")
	}
	if !cfg.API.UI.Enabled {
		t.Error("Default() API.UI.Enabled = false, want true")
	}
}
