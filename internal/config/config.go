package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Replay modes.
const (
	ModePlayback = "playback"
	ModeRecord   = "record"
)

// Store drivers.
const (
	DriverFiles  = "files"
	DriverRedis  = "redis"
	DriverValkey = "valkey"
	DriverSQLite = "sqlite"
)

// Config holds the clarityreplay configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Clarity ClarityConfig `yaml:"clarity"`
	Replay  ReplayConfig  `yaml:"replay"`
	Store   StoreConfig   `yaml:"store"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings for the replay server.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// ClarityConfig holds the connection to a real Clarity server, used in
// record mode and by the fetch command.
type ClarityConfig struct {
	Server         string `yaml:"server"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TimeoutSec     int    `yaml:"timeout_sec"`
	MaxConcurrency int    `yaml:"max_concurrency"`
}

// ReplayConfig selects how API calls are answered.
type ReplayConfig struct {
	Mode string `yaml:"mode"` // playback (default) | record
	// UpdatesDir receives update recordings during playback. Empty blocks
	// updates instead.
	UpdatesDir string `yaml:"updates_dir"`
	// Strict makes blocked writes fail instead of succeeding silently.
	Strict bool `yaml:"strict"`
	// Cache keeps decoded recordings in memory during playback.
	Cache bool `yaml:"cache"`
	// Watch drops cached recordings when files change (files driver only).
	Watch bool `yaml:"watch"`
}

// StoreConfig holds recording store settings.
type StoreConfig struct {
	Driver           string   `yaml:"driver"` // files (default), redis, valkey, sqlite
	Dir              string   `yaml:"dir"`    // files
	Addrs            []string `yaml:"addrs"`  // redis, valkey
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	KeyPrefix        string   `yaml:"key_prefix"`
	Path             string   `yaml:"path"` // sqlite
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes, checks against the schema, defaults and validates a YAML
// document.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	if err := validateSchema(data); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Clarity.TimeoutSec <= 0 {
		c.Clarity.TimeoutSec = 60
	}
	if c.Clarity.MaxConcurrency <= 0 {
		c.Clarity.MaxConcurrency = 4
	}
	if c.Replay.Mode == "" {
		c.Replay.Mode = ModePlayback
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverFiles
	}
	if c.Store.Driver == DriverFiles && c.Store.Dir == "" {
		c.Store.Dir = "recordings"
	}
	if c.Store.Driver == DriverSQLite && c.Store.Path == "" {
		c.Store.Path = "recordings.db"
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "clarityreplay:"
	}
	if c.Store.ReadinessTimeout <= 0 {
		c.Store.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Replay.Mode {
	case ModePlayback:
	case ModeRecord:
		if c.Clarity.Server == "" {
			return fmt.Errorf("clarity.server is required in %s mode", ModeRecord)
		}
	default:
		return fmt.Errorf("replay.mode must be %q or %q, got %q", ModePlayback, ModeRecord, c.Replay.Mode)
	}
	switch c.Store.Driver {
	case DriverFiles, DriverSQLite:
	case DriverRedis, DriverValkey:
		if len(c.Store.Addrs) == 0 {
			return fmt.Errorf("store.addrs is required for the %s driver", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver must be one of files, redis, valkey, sqlite, got %q", c.Store.Driver)
	}
	if c.Replay.Watch && c.Store.Driver != DriverFiles {
		return fmt.Errorf("replay.watch requires the %s driver", DriverFiles)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
