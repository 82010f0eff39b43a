package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/lumina/internal/classify"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig         `yaml:"log"`
	Database        DatabaseConfig    `yaml:"database"`
	Store           StoreConfig       `yaml:"store"`
	Geo             GeoConfig         `yaml:"geo"`
	Device          DeviceConfig      `yaml:"device"`
	Classifier      classify.Config   `yaml:"classifier"` // fields left out keep classify.DefaultConfig values
	Cache           CacheConfig       `yaml:"cache"`
	Sync            SyncConfig        `yaml:"sync"`
	Enforcement     EnforcementConfig `yaml:"enforcement"`
	API             APIConfig         `yaml:"api"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	Script          string            `yaml:"script"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StoreConfig selects whose rules are loaded and whether they are persisted
type StoreConfig struct {
	UserID    string `yaml:"user_id"`
	LocalOnly bool   `yaml:"local_only"` // keep rules in memory only
}

// GeoConfig contains geo/location settings for solar calculations
type GeoConfig struct {
	Name        string   `yaml:"name"`
	Timezone    string   `yaml:"timezone"`
	Lat         float64  `yaml:"lat,omitempty"`
	Lon         float64  `yaml:"lon,omitempty"`
	GeocoderURL string   `yaml:"geocoder_url"`
	HTTPTimeout Duration `yaml:"http_timeout"` // Timeout for geocoding HTTP requests
}

// HasCoordinates reports whether lat/lon were configured
func (g GeoConfig) HasCoordinates() bool {
	return g.Lat != 0 || g.Lon != 0
}

// DeviceConfig selects the controller transport
type DeviceConfig struct {
	Transport    string     `yaml:"transport"` // "http", "mqtt" or "" for no controller
	Address      string     `yaml:"address"`   // base URL for http
	Timeout      Duration   `yaml:"timeout"`
	RateLimitRPS float64    `yaml:"rate_limit_rps"`
	MQTT         MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig contains relay broker settings
type MQTTConfig struct {
	Broker          string   `yaml:"broker"`
	ClientID        string   `yaml:"client_id"`
	Username        string   `yaml:"username"`
	Password        string   `yaml:"password"`
	DeviceID        string   `yaml:"device_id"`
	ResponseTimeout Duration `yaml:"response_timeout"`
}

// CacheConfig selects where the latest classification result is kept
type CacheConfig struct {
	Backend string      `yaml:"backend"` // "memory", "sqlite" or "redis"
	TTL     Duration    `yaml:"ttl"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig contains redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// SyncConfig contains device sync settings
type SyncConfig struct {
	Cron     string   `yaml:"cron"`      // periodic re-sync, empty disables
	OnChange bool     `yaml:"on_change"` // re-sync after every rule change
	Debounce Duration `yaml:"debounce"`  // coalesce on_change bursts
	Timeout  Duration `yaml:"timeout"`
}

// EnforcementConfig contains enforcement state machine settings
type EnforcementConfig struct {
	Mode                string     `yaml:"mode"` // disabled, soft or strict
	BrightnessTolerance int        `yaml:"brightness_tolerance"`
	Soft                ModeTiming `yaml:"soft"`
	Strict              ModeTiming `yaml:"strict"`
}

// ModeTiming overrides the intervals of one enforcement mode. Zero keeps the built-in value.
type ModeTiming struct {
	PollInterval Duration `yaml:"poll_interval"`
	GracePeriod  Duration `yaml:"grace_period"`
	Cooldown     Duration `yaml:"cooldown"`
}

// APIConfig contains HTTP API server settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and applies defaults
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Config{Classifier: classify.DefaultConfig()}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./lumina.sqlite"
	}
	if cfg.Store.UserID == "" {
		cfg.Store.UserID = "default"
	}
	if cfg.Script == "" {
		cfg.Script = "rules.lua"
	}

	// Geo defaults
	if cfg.Geo.Timezone == "" {
		cfg.Geo.Timezone = "UTC"
	}
	if cfg.Geo.HTTPTimeout == 0 {
		cfg.Geo.HTTPTimeout = Duration(10 * time.Second)
	}

	// Device defaults
	if cfg.Device.Timeout == 0 {
		cfg.Device.Timeout = Duration(5 * time.Second)
	}
	if cfg.Device.RateLimitRPS == 0 {
		cfg.Device.RateLimitRPS = 10.0
	}
	if cfg.Device.MQTT.ClientID == "" {
		cfg.Device.MQTT.ClientID = "lumina"
	}
	if cfg.Device.MQTT.ResponseTimeout == 0 {
		cfg.Device.MQTT.ResponseTimeout = Duration(5 * time.Second)
	}

	// Cache defaults
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = Duration(10 * time.Minute)
	}
	if cfg.Cache.Redis.Prefix == "" {
		cfg.Cache.Redis.Prefix = "lumina:classification:"
	}

	// Sync defaults
	if cfg.Sync.Timeout == 0 {
		cfg.Sync.Timeout = Duration(30 * time.Second)
	}
	if cfg.Sync.Debounce == 0 {
		cfg.Sync.Debounce = Duration(2 * time.Second)
	}

	// Enforcement defaults
	if cfg.Enforcement.Mode == "" {
		cfg.Enforcement.Mode = "disabled"
	}
	if cfg.Enforcement.BrightnessTolerance == 0 {
		cfg.Enforcement.BrightnessTolerance = 10
	}

	// API defaults
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

// ExpandEnvString expands a single string with environment variables
func ExpandEnvString(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return expandEnvVars(s)
	}
	return s
}
