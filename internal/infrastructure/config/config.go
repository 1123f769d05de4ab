package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport policy values accepted by connection.policy.
const (
	PolicyLocalOnly      = "local-only"
	PolicyCloudOnly      = "cloud-only"
	PolicyLocalThenCloud = "local-then-cloud"
	PolicyCloudThenLocal = "cloud-then-local"
)

// Config is the root configuration structure for airlink.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Connection ConnectionConfig `yaml:"connection"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DeviceConfig identifies the appliance this instance maintains a connection to.
type DeviceConfig struct {
	// Serial is the device's unique identifier. It doubles as the local
	// broker username and the second MQTT topic level.
	Serial string `yaml:"serial"`

	// ProductType is the first MQTT topic level (e.g. "438").
	ProductType string `yaml:"product_type"`

	// Name is a human-friendly label used in logs and telemetry tags.
	Name string `yaml:"name"`
}

// ConnectionConfig holds both transports and the timers that govern
// transport selection.
type ConnectionConfig struct {
	Policy string               `yaml:"policy"`
	Local  LocalTransportConfig `yaml:"local"`
	Cloud  CloudTransportConfig `yaml:"cloud"`

	// ReconnectBackoff is the minimum spacing between Connect attempts.
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`

	// ReclaimInterval is how long to stay on the fallback transport before
	// trying the preferred one again.
	ReclaimInterval time.Duration `yaml:"reclaim_interval"`

	// ConnectTimeout bounds a single transport attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// SuperviseInterval is how often the supervisor re-evaluates the connection.
	SuperviseInterval time.Duration `yaml:"supervise_interval"`
}

// LocalTransportConfig describes the broker on the appliance's own network.
type LocalTransportConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Credential string `yaml:"credential"`
}

// CloudTransportConfig describes the remote broker reached over a WebSocket tunnel.
type CloudTransportConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Path string `yaml:"path"`

	// Credential is the serialized authorizer bundle (base64 or raw JSON).
	Credential string `yaml:"credential"`
}

// MQTTConfig contains MQTT session settings shared by both transports.
type MQTTConfig struct {
	QoS       int           `yaml:"qos"`
	KeepAlive time.Duration `yaml:"keep_alive"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Auth     APIAuthConfig    `yaml:"auth"`
}

// APIAuthConfig guards the control routes. With no secret the control
// routes refuse every request; read routes stay open.
type APIAuthConfig struct {
	// JWTSecret signs and verifies HS256 control tokens. Set it with
	// AIRLINK_API_JWT_SECRET rather than in the file.
	JWTSecret string `yaml:"jwt_secret"`
}

// minJWTSecretLength is the shortest accepted HS256 secret.
const minJWTSecretLength = 32

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
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

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// DatabaseConfig contains SQLite settings for the event journal.
type DatabaseConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Path        string        `yaml:"path"`
	WALMode     bool          `yaml:"wal_mode"`
	BusyTimeout int           `yaml:"busy_timeout"`
	Retention   time.Duration `yaml:"retention"`
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
// Environment variables follow the pattern: AIRLINK_SECTION_KEY
// For example: AIRLINK_DEVICE_SERIAL, AIRLINK_LOCAL_CREDENTIAL
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Name: "appliance",
		},
		Connection: ConnectionConfig{
			Policy: PolicyLocalThenCloud,
			Local: LocalTransportConfig{
				Port: 1883,
			},
			Cloud: CloudTransportConfig{
				Port: 443,
				Path: "/mqtt",
			},
			ReconnectBackoff:  30 * time.Second,
			ReclaimInterval:   300 * time.Second,
			ConnectTimeout:    10 * time.Second,
			SuperviseInterval: 15 * time.Second,
		},
		MQTT: MQTTConfig{
			QoS:       1,
			KeepAlive: 60 * time.Second,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/airlink.db",
			WALMode:     true,
			BusyTimeout: 5,
			Retention:   30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Credentials should always come from the environment rather than the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AIRLINK_DEVICE_SERIAL"); v != "" {
		cfg.Device.Serial = v
	}
	if v := os.Getenv("AIRLINK_CONNECTION_POLICY"); v != "" {
		cfg.Connection.Policy = v
	}

	// Local transport
	if v := os.Getenv("AIRLINK_LOCAL_HOST"); v != "" {
		cfg.Connection.Local.Host = v
	}
	if v := os.Getenv("AIRLINK_LOCAL_CREDENTIAL"); v != "" {
		cfg.Connection.Local.Credential = v
	}

	// Cloud transport
	if v := os.Getenv("AIRLINK_CLOUD_HOST"); v != "" {
		cfg.Connection.Cloud.Host = v
	}
	if v := os.Getenv("AIRLINK_CLOUD_CREDENTIAL"); v != "" {
		cfg.Connection.Cloud.Credential = v
	}

	if v := os.Getenv("AIRLINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("AIRLINK_API_JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}
	if v := os.Getenv("AIRLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("AIRLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("AIRLINK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// NormalisePolicy maps accepted spellings ("local_then_cloud", "LOCAL-ONLY")
// onto the canonical policy constants. Unknown values are returned lower-cased.
func NormalisePolicy(policy string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(policy)), "_", "-")
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.Serial == "" {
		errs = append(errs, "device.serial is required")
	}
	if c.Device.ProductType == "" {
		errs = append(errs, "device.product_type is required")
	}

	policy := NormalisePolicy(c.Connection.Policy)
	switch policy {
	case PolicyLocalOnly, PolicyCloudOnly, PolicyLocalThenCloud, PolicyCloudThenLocal:
	default:
		errs = append(errs, fmt.Sprintf("connection.policy %q is not one of local-only, cloud-only, local-then-cloud, cloud-then-local", c.Connection.Policy))
	}

	// A policy that can only use one transport must have that transport configured.
	if policy == PolicyLocalOnly && c.Connection.Local.Host == "" {
		errs = append(errs, "connection.local.host is required for local-only policy")
	}
	if policy == PolicyCloudOnly && c.Connection.Cloud.Host == "" {
		errs = append(errs, "connection.cloud.host is required for cloud-only policy")
	}

	if c.Connection.Local.Port < 1 || c.Connection.Local.Port > 65535 {
		errs = append(errs, "connection.local.port must be between 1 and 65535")
	}
	if c.Connection.Cloud.Port < 1 || c.Connection.Cloud.Port > 65535 {
		errs = append(errs, "connection.cloud.port must be between 1 and 65535")
	}
	if c.Connection.ReconnectBackoff < 0 || c.Connection.ReclaimInterval < 0 {
		errs = append(errs, "connection timers must not be negative")
	}
	if c.Connection.ConnectTimeout <= 0 {
		errs = append(errs, "connection.connect_timeout must be positive")
	}
	if c.Connection.SuperviseInterval <= 0 {
		errs = append(errs, "connection.supervise_interval must be positive")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if secret := c.API.Auth.JWTSecret; secret != "" && len(secret) < minJWTSecretLength {
		errs = append(errs, fmt.Sprintf("api.auth.jwt_secret must be at least %d characters", minJWTSecretLength))
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
