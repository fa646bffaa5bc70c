package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/lockgate/internal/gateway"
)

// DefaultPath is used when LOCKGATE_CONFIG is not set.
const DefaultPath = "configs/config.yaml"

// MinPollingInterval is the shortest accepted polling.interval.
const MinPollingInterval = 10 * time.Second

// minJWTSecretLength is the shortest accepted security.jwt.secret.
const minJWTSecretLength = 32

// Config is the root configuration structure for lockgate.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Account   AccountConfig   `yaml:"account"`
	Polling   PollingConfig   `yaml:"polling"`
	Locks     []LockConfig    `yaml:"locks"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// GatewayConfig describes the lock gateway and its pacing.
type GatewayConfig struct {
	ID string `yaml:"id"`

	// Host is "host" or "host:port". When empty it is discovered from the
	// first lock record that carries one.
	Host string `yaml:"host"`

	HeavyDelay     time.Duration `yaml:"heavy_delay"`
	LightDelay     time.Duration `yaml:"light_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
}

// AccountConfig holds the cloud account credentials. They are only passed
// through to the login step and never stored by lockgate.
type AccountConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// PollingConfig tunes the refresh cycle.
type PollingConfig struct {
	Interval         time.Duration `yaml:"interval"`
	InterDeviceDelay time.Duration `yaml:"inter_device_delay"`
	BusyWait         time.Duration `yaml:"busy_wait"`
	SyncWait         time.Duration `yaml:"sync_wait"`
}

// LockConfig seeds one entry of the lock directory.
type LockConfig struct {
	ID         string `yaml:"id"`
	Identifier string `yaml:"identifier"`
	Name       string `yaml:"name"`
	ShareCode  string `yaml:"share_code"`
	Host       string `yaml:"host"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket hub settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	Issuer         string `yaml:"issuer"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// PathFromEnv returns LOCKGATE_CONFIG, or DefaultPath when unset.
func PathFromEnv() string {
	if v := os.Getenv("LOCKGATE_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern LOCKGATE_SECTION_KEY, for example
// LOCKGATE_GATEWAY_HOST or LOCKGATE_JWT_SECRET.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			ID:             "gateway",
			HeavyDelay:     gateway.DefaultHeavyDelay,
			LightDelay:     gateway.DefaultLightDelay,
			RequestTimeout: gateway.DefaultRequestTimeout,
			ProbeTimeout:   gateway.DefaultProbeTimeout,
		},
		Polling: PollingConfig{
			Interval:         60 * time.Second,
			InterDeviceDelay: 500 * time.Millisecond,
			BusyWait:         6 * time.Second,
			SyncWait:         5 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/lockgate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lockgate",
			},
			QoS:         1,
			TopicPrefix: "lockgate",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "lockgate",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer:         "lockgate",
				AccessTokenTTL: 15,
			},
		},
	}
}

// applyEnvOverrides applies LOCKGATE_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"LOCKGATE_GATEWAY_ID":       &cfg.Gateway.ID,
		"LOCKGATE_GATEWAY_HOST":     &cfg.Gateway.Host,
		"LOCKGATE_ACCOUNT_USERNAME": &cfg.Account.Username,
		"LOCKGATE_ACCOUNT_PASSWORD": &cfg.Account.Password,
		"LOCKGATE_DATABASE_PATH":    &cfg.Database.Path,
		"LOCKGATE_MQTT_HOST":        &cfg.MQTT.Broker.Host,
		"LOCKGATE_MQTT_USERNAME":    &cfg.MQTT.Auth.Username,
		"LOCKGATE_MQTT_PASSWORD":    &cfg.MQTT.Auth.Password,
		"LOCKGATE_API_HOST":         &cfg.API.Host,
		"LOCKGATE_INFLUXDB_URL":     &cfg.InfluxDB.URL,
		"LOCKGATE_INFLUXDB_TOKEN":   &cfg.InfluxDB.Token,
		"LOCKGATE_LOG_LEVEL":        &cfg.Logging.Level,
		"LOCKGATE_JWT_SECRET":       &cfg.Security.JWT.Secret,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	var errs []string
	if v := os.Getenv("LOCKGATE_POLLING_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("LOCKGATE_POLLING_INTERVAL: %v", err))
		} else {
			cfg.Polling.Interval = d
		}
	}
	if v := os.Getenv("LOCKGATE_MQTT_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("LOCKGATE_MQTT_ENABLED: %v", err))
		} else {
			cfg.MQTT.Enabled = b
		}
	}
	if v := os.Getenv("LOCKGATE_INFLUXDB_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("LOCKGATE_INFLUXDB_ENABLED: %v", err))
		} else {
			cfg.InfluxDB.Enabled = b
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors and security issues.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.ID == "" {
		errs = append(errs, "gateway.id is required")
	}
	if c.Gateway.Host != "" {
		if err := gateway.ValidateAddress(c.Gateway.Host); err != nil {
			errs = append(errs, fmt.Sprintf("gateway.host: %v", err))
		}
	}
	// The gateway client reads a zero delay as "use the default".
	if c.Gateway.HeavyDelay <= 0 || c.Gateway.LightDelay <= 0 {
		errs = append(errs, "gateway delays must be positive")
	}

	if (c.Account.Username == "") != (c.Account.Password == "") {
		errs = append(errs, "account.username and account.password must be set together")
	}

	if c.Polling.Interval < MinPollingInterval {
		errs = append(errs, fmt.Sprintf("polling.interval must be at least %s", MinPollingInterval))
	}
	if c.Polling.InterDeviceDelay < 0 || c.Polling.BusyWait < 0 || c.Polling.SyncWait < 0 {
		errs = append(errs, "polling delays must not be negative")
	}

	errs = append(errs, c.validateLocks()...)

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		// The API can open doors; a guessable secret means anyone can forge a token.
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set LOCKGATE_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateLocks() []string {
	var errs []string
	seen := make(map[string]bool, len(c.Locks))
	for i, l := range c.Locks {
		switch {
		case l.ID == "":
			errs = append(errs, fmt.Sprintf("locks[%d].id is required", i))
		case seen[l.ID]:
			errs = append(errs, fmt.Sprintf("locks[%d].id %q is duplicated", i, l.ID))
		}
		seen[l.ID] = true
		if l.Identifier == "" {
			errs = append(errs, fmt.Sprintf("locks[%d].identifier is required", i))
		}
		if l.ShareCode == "" {
			errs = append(errs, fmt.Sprintf("locks[%d].share_code is required", i))
		}
		if l.Host != "" {
			if err := gateway.ValidateAddress(l.Host); err != nil {
				errs = append(errs, fmt.Sprintf("locks[%d].host: %v", i, err))
			}
		}
	}
	return errs
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
