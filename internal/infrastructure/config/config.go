package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for rrdcore.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	RRDTool   RRDToolConfig   `yaml:"rrdtool"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Export    ExportConfig    `yaml:"export"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// RRDToolConfig contains settings for invoking the rrdtool binary.
type RRDToolConfig struct {
	// Binary is the rrdtool executable, resolved via $PATH when not absolute.
	Binary string `yaml:"binary"`

	// DataDir holds managed <name>.rrd files.
	DataDir string `yaml:"data_dir"`

	// CommandTimeout bounds a single rrdtool invocation (seconds).
	CommandTimeout int `yaml:"command_timeout"`

	// Parser controls how info output values are coerced.
	Parser ParserConfig `yaml:"parser"`
}

// ParserConfig contains info-output coercion settings.
type ParserConfig struct {
	// NullSentinel is an unquoted value mapped to null (e.g. "U"). Empty disables it.
	NullSentinel string `yaml:"null_sentinel"`

	// StrictNumbers rejects unquoted non-numeric values instead of mapping them to NaN.
	StrictNumbers bool `yaml:"strict_numbers"`
}

// DatabaseConfig contains SQLite catalog settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
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

// ExportConfig controls mirroring of managed databases into InfluxDB.
type ExportConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval between export passes (seconds).
	Interval int `yaml:"interval"`

	// CF is the consolidation function fetched for export.
	CF string `yaml:"cf"`

	// Concurrency bounds how many files are exported at once.
	Concurrency int `yaml:"concurrency"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains API authentication settings.
type SecurityConfig struct {
	JWT   JWTConfig    `yaml:"jwt"`
	Users []UserConfig `yaml:"users"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// UserConfig is an API user. PasswordHash is an Argon2id PHC string
// (see `rrdcore hash-password`).
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// Load reads path over the defaults, applies RRDCORE_* environment
// overrides and validates the result. Later sources win: defaults, then
// the file, then the environment.
//
// Parameters:
//   - path: YAML configuration file
//
// Returns:
//   - *Config: Validated configuration
//   - error: If the file is unreadable or invalid, or validation fails
func Load(path string) (*Config, error) {
	cfg, err := readFile(path, false)
	if err != nil {
		return nil, err
	}
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file means defaults plus
// environment.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := readFile(path, true)
	if err != nil {
		return nil, err
	}
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLocal is LoadOrDefault for commands that only drive rrdtool. The API
// and export are switched off before validation, so neither a JWT secret
// nor an InfluxDB setup is needed.
func LoadLocal(path string) (*Config, error) {
	cfg, err := readFile(path, true)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	cfg.API.Enabled = false
	cfg.Export.Enabled = false
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readFile decodes path over defaultConfig. With allowMissing an absent
// file yields the defaults.
func readFile(path string, allowMissing bool) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

func finish(cfg *Config) error {
	applyEnvOverrides(cfg)
	return cfg.Validate()
}

func defaultConfig() *Config {
	return &Config{
		RRDTool: RRDToolConfig{
			Binary:         "rrdtool",
			DataDir:        "./data/rrd",
			CommandTimeout: 30,
		},
		Database: DatabaseConfig{
			Path:        "./data/rrdcore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker:    MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "rrdcore"},
			QoS:       1,
			Reconnect: MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		API: APIConfig{
			Enabled:  true,
			Host:     "0.0.0.0",
			Port:     8080,
			Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
		},
		WebSocket: WebSocketConfig{Path: "/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		InfluxDB:  InfluxDBConfig{BatchSize: 100, FlushInterval: 10},
		Export:    ExportConfig{Interval: 300, CF: "AVERAGE", Concurrency: 4},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Security:  SecurityConfig{JWT: JWTConfig{AccessTokenTTL: 60}},
	}
}

// envOverrides maps RRDCORE_* variables onto fields. Empty variables are
// ignored.
var envOverrides = []struct {
	name  string
	apply func(*Config, string)
}{
	{"RRDCORE_RRDTOOL_BINARY", func(c *Config, v string) { c.RRDTool.Binary = v }},
	{"RRDCORE_RRDTOOL_DATA_DIR", func(c *Config, v string) { c.RRDTool.DataDir = v }},
	{"RRDCORE_DATABASE_PATH", func(c *Config, v string) { c.Database.Path = v }},
	{"RRDCORE_MQTT_HOST", func(c *Config, v string) { c.MQTT.Broker.Host = v }},
	{"RRDCORE_MQTT_USERNAME", func(c *Config, v string) { c.MQTT.Auth.Username = v }},
	{"RRDCORE_MQTT_PASSWORD", func(c *Config, v string) { c.MQTT.Auth.Password = v }},
	{"RRDCORE_API_HOST", func(c *Config, v string) { c.API.Host = v }},
	{"RRDCORE_API_PORT", func(c *Config, v string) {
		if port, err := strconv.Atoi(v); err == nil {
			c.API.Port = port
		}
	}},
	{"RRDCORE_INFLUXDB_URL", func(c *Config, v string) { c.InfluxDB.URL = v }},
	{"RRDCORE_INFLUXDB_TOKEN", func(c *Config, v string) { c.InfluxDB.Token = v }},
	{"RRDCORE_LOG_LEVEL", func(c *Config, v string) { c.Logging.Level = v }},
	{"RRDCORE_JWT_SECRET", func(c *Config, v string) { c.Security.JWT.Secret = v }},
}

func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(cfg, v)
		}
	}
}

// minJWTSecretLength is the shortest accepted HMAC secret. A forged token
// grants write access to every managed database.
const minJWTSecretLength = 32

// Validate reports every problem in c at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.RRDTool.Binary != "", "rrdtool.binary is required")
	check(c.RRDTool.DataDir != "", "rrdtool.data_dir is required")
	check(c.RRDTool.CommandTimeout >= 0, "rrdtool.command_timeout must not be negative")
	check(c.Database.Path != "", "database.path is required")
	check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1 or 2")

	if c.API.Enabled {
		check(c.API.Port >= 1 && c.API.Port <= 65535, "api.port must be between 1 and 65535")
		check(c.Security.JWT.Secret != "", "security.jwt.secret is required when the API is enabled (set RRDCORE_JWT_SECRET)")
		check(c.Security.JWT.Secret == "" || len(c.Security.JWT.Secret) >= minJWTSecretLength,
			"security.jwt.secret must be at least %d characters", minJWTSecretLength)
	}
	for i, u := range c.Security.Users {
		check(u.Username != "" && u.PasswordHash != "", "security.users[%d] needs username and password_hash", i)
	}

	if c.Export.Enabled {
		check(c.InfluxDB.Enabled, "export.enabled requires influxdb.enabled")
		check(c.Export.Interval > 0, "export.interval must be positive")
		switch c.Export.CF {
		case "AVERAGE", "MIN", "MAX", "LAST":
		default:
			check(false, "export.cf must be AVERAGE, MIN, MAX or LAST, got %q", c.Export.CF)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// GetCommandTimeout bounds one rrdtool invocation; zero selects the runner default.
func (c *Config) GetCommandTimeout() time.Duration { return seconds(c.RRDTool.CommandTimeout) }

// GetReadTimeout returns the HTTP server read timeout.
func (c *Config) GetReadTimeout() time.Duration { return seconds(c.API.Timeouts.Read) }

// GetWriteTimeout returns the HTTP server write timeout.
func (c *Config) GetWriteTimeout() time.Duration { return seconds(c.API.Timeouts.Write) }

// GetIdleTimeout returns the HTTP keep-alive idle timeout.
func (c *Config) GetIdleTimeout() time.Duration { return seconds(c.API.Timeouts.Idle) }

// GetExportInterval returns the period between InfluxDB export passes.
func (c *Config) GetExportInterval() time.Duration { return seconds(c.Export.Interval) }

// GetAccessTokenTTL returns the JWT lifetime; the file gives it in minutes.
func (c *Config) GetAccessTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}
