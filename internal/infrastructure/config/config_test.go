package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// validConfig returns a config that passes Validate.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Gateway.Host = "192.168.1.50"
	cfg.Security.JWT.Secret = validJWTSecret
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
gateway:
  id: "front"
  host: "192.168.1.50:8080"
  heavy_delay: 6s
polling:
  interval: 30s
  busy_wait: 4s
locks:
  - id: "door"
    identifier: "ABC123"
    name: "Front door"
    share_code: "s3cret"
database:
  path: "/tmp/test.db"
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
  qos: 1
api:
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway.ID != "front" || cfg.Gateway.Host != "192.168.1.50:8080" {
		t.Errorf("Gateway = %+v", cfg.Gateway)
	}
	if cfg.Gateway.HeavyDelay != 6*time.Second {
		t.Errorf("Gateway.HeavyDelay = %v, want 6s", cfg.Gateway.HeavyDelay)
	}
	if cfg.Gateway.LightDelay != time.Second {
		t.Errorf("Gateway.LightDelay = %v, want default 1s", cfg.Gateway.LightDelay)
	}
	if cfg.Polling.Interval != 30*time.Second || cfg.Polling.BusyWait != 4*time.Second {
		t.Errorf("Polling = %+v", cfg.Polling)
	}
	if cfg.Polling.SyncWait != 5*time.Second {
		t.Errorf("Polling.SyncWait = %v, want default 5s", cfg.Polling.SyncWait)
	}
	if len(cfg.Locks) != 1 || cfg.Locks[0].ShareCode != "s3cret" {
		t.Errorf("Locks = %+v", cfg.Locks)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.TopicPrefix != "lockgate" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
}

// The shipped example must load once a JWT secret is supplied, and must not
// drift from the defaults it documents.
func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("LOCKGATE_JWT_SECRET", validJWTSecret)

	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load(example) error = %v", err)
	}

	def := defaultConfig()
	if cfg.Polling != def.Polling {
		t.Errorf("polling = %+v, want defaults %+v", cfg.Polling, def.Polling)
	}
	if cfg.Gateway.HeavyDelay != def.Gateway.HeavyDelay || cfg.Gateway.LightDelay != def.Gateway.LightDelay {
		t.Errorf("gateway delays = %v/%v", cfg.Gateway.HeavyDelay, cfg.Gateway.LightDelay)
	}
	if cfg.MQTT.Enabled || cfg.InfluxDB.Enabled || !cfg.API.Enabled {
		t.Errorf("enabled flags mqtt=%v influxdb=%v api=%v", cfg.MQTT.Enabled, cfg.InfluxDB.Enabled, cfg.API.Enabled)
	}
	if len(cfg.Locks) != 1 || cfg.Locks[0].ID != "front" {
		t.Errorf("locks = %+v", cfg.Locks)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
gateway:
  host: "bad host!"
polling:
  interval: 5s
api:
  enabled: false
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"gateway.host", "polling.interval"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no host is allowed", func(c *Config) { c.Gateway.Host = "" }, ""},
		{"ipv6 host", func(c *Config) { c.Gateway.Host = "[fe80::1]:80" }, ""},
		{"missing gateway id", func(c *Config) { c.Gateway.ID = "" }, "gateway.id"},
		{"bad host", func(c *Config) { c.Gateway.Host = "host:99999" }, "gateway.host"},
		{"negative delay", func(c *Config) { c.Gateway.HeavyDelay = -time.Second }, "gateway delays"},
		{"zero heavy delay", func(c *Config) { c.Gateway.HeavyDelay = 0 }, "gateway delays must be positive"},
		{"zero light delay", func(c *Config) { c.Gateway.LightDelay = 0 }, "gateway delays must be positive"},
		{"username without password", func(c *Config) { c.Account.Username = "me" }, "account"},
		{"credentials pair", func(c *Config) { c.Account = AccountConfig{"me", "pw"} }, ""},
		{"interval too short", func(c *Config) { c.Polling.Interval = 9 * time.Second }, "polling.interval"},
		{"interval at minimum", func(c *Config) { c.Polling.Interval = MinPollingInterval }, ""},
		{"negative busy wait", func(c *Config) { c.Polling.BusyWait = -1 }, "polling delays"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"mqtt without prefix", func(c *Config) { c.MQTT.Enabled, c.MQTT.TopicPrefix = true, "" }, "topic_prefix"},
		{"influx without url", func(c *Config) { c.InfluxDB.Enabled = true }, "influxdb.url"},
		{"invalid port", func(c *Config) { c.API.Port = 70000 }, "api.port"},
		{"missing JWT secret", func(c *Config) { c.Security.JWT.Secret = "" }, "jwt.secret is required"},
		{"short JWT secret", func(c *Config) { c.Security.JWT.Secret = "short" }, "at least 32"},
		{"api disabled needs no secret", func(c *Config) {
			c.API.Enabled = false
			c.Security.JWT.Secret = ""
		}, ""},
		{"lock missing fields", func(c *Config) {
			c.Locks = []LockConfig{{ID: "a"}}
		}, "locks[0].identifier"},
		{"duplicate lock", func(c *Config) {
			l := LockConfig{ID: "a", Identifier: "x", ShareCode: "y"}
			c.Locks = []LockConfig{l, l}
		}, "duplicated"},
		{"lock bad host", func(c *Config) {
			c.Locks = []LockConfig{{ID: "a", Identifier: "x", ShareCode: "y", Host: "-bad-"}}
		}, "locks[0].host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			switch {
			case tt.wantErr == "" && err != nil:
				t.Errorf("Validate() error = %v, want nil", err)
			case tt.wantErr != "" && err == nil:
				t.Errorf("Validate() = nil, want error containing %q", tt.wantErr)
			case tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr):
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{API: APIConfig{Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60}}}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("LOCKGATE_GATEWAY_HOST", "10.0.0.2")
	t.Setenv("LOCKGATE_ACCOUNT_USERNAME", "owner")
	t.Setenv("LOCKGATE_ACCOUNT_PASSWORD", "pw")
	t.Setenv("LOCKGATE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("LOCKGATE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("LOCKGATE_MQTT_ENABLED", "true")
	t.Setenv("LOCKGATE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("LOCKGATE_POLLING_INTERVAL", "2m")
	t.Setenv("LOCKGATE_JWT_SECRET", "jwt-secret")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Gateway.Host != "10.0.0.2" {
		t.Errorf("Gateway.Host = %q", cfg.Gateway.Host)
	}
	if cfg.Account.Username != "owner" || cfg.Account.Password != "pw" {
		t.Errorf("Account = %+v", cfg.Account)
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" || !cfg.MQTT.Enabled {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q", cfg.InfluxDB.Token)
	}
	if cfg.Polling.Interval != 2*time.Minute {
		t.Errorf("Polling.Interval = %v", cfg.Polling.Interval)
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q", cfg.Security.JWT.Secret)
	}
}

func TestApplyEnvOverrides_BadValues(t *testing.T) {
	t.Setenv("LOCKGATE_POLLING_INTERVAL", "soon")
	t.Setenv("LOCKGATE_MQTT_ENABLED", "maybe")

	err := applyEnvOverrides(defaultConfig())
	if err == nil {
		t.Fatal("applyEnvOverrides() = nil, want error")
	}
	if !strings.Contains(err.Error(), "LOCKGATE_POLLING_INTERVAL") || !strings.Contains(err.Error(), "LOCKGATE_MQTT_ENABLED") {
		t.Errorf("error %q should name both variables", err)
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("LOCKGATE_CONFIG", "")
	if got := PathFromEnv(); got != DefaultPath {
		t.Errorf("PathFromEnv() = %q, want %q", got, DefaultPath)
	}
	t.Setenv("LOCKGATE_CONFIG", "/etc/lockgate.yaml")
	if got := PathFromEnv(); got != "/etc/lockgate.yaml" {
		t.Errorf("PathFromEnv() = %q", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Gateway.HeavyDelay != 5*time.Second || cfg.Gateway.LightDelay != time.Second {
		t.Errorf("gateway delays = %v / %v", cfg.Gateway.HeavyDelay, cfg.Gateway.LightDelay)
	}
	if cfg.Polling.Interval != 60*time.Second {
		t.Errorf("Polling.Interval = %v, want 60s", cfg.Polling.Interval)
	}
	if cfg.Polling.InterDeviceDelay != 500*time.Millisecond {
		t.Errorf("Polling.InterDeviceDelay = %v, want 500ms", cfg.Polling.InterDeviceDelay)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Enabled || cfg.InfluxDB.Enabled {
		t.Error("mqtt and influxdb should be opt-in")
	}
}
