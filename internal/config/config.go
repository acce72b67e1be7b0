// Package config provides configuration management for the item server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/localbackend/internal/prefs"
)

// Default configuration values.
const (
	DefaultServerPort       = 8080
	DefaultBindHost         = "0.0.0.0"
	DefaultLogLevel         = "info"
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultMetricsEnabled   = true
	DefaultStorageBackend   = prefs.BackendSQLite
	DefaultStoragePath      = "./data"
	DefaultRedisAddr        = "localhost:6379"
	DefaultStorageNamespace = "localbackend"
	DefaultItemsKey         = "items_data"
	DefaultRateBurst        = 20
	DefaultMaxBodyBytes     = 1 << 20
	DefaultEnvFile          = ".env"
)

// Environment variable names.
const (
	EnvConfigFile       = "APP_CONFIG_FILE"
	EnvServerPort       = "APP_SERVER_PORT"
	EnvBindHost         = "APP_BIND_HOST"
	EnvLogLevel         = "APP_LOG_LEVEL"
	EnvShutdownTimeout  = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled   = "APP_METRICS_ENABLED"
	EnvStorageBackend   = "APP_STORAGE_BACKEND"
	EnvStoragePath      = "APP_STORAGE_PATH"
	EnvStorageDSN       = "APP_STORAGE_DSN"
	EnvRedisAddr        = "APP_REDIS_ADDR"
	EnvStorageNamespace = "APP_STORAGE_NAMESPACE"
	EnvItemsKey         = "APP_ITEMS_KEY"
	EnvSeedSampleItems  = "APP_SEED_SAMPLE_ITEMS"
	EnvRateLimit        = "APP_RATE_LIMIT"
	EnvRateBurst        = "APP_RATE_BURST"
	EnvMaxBodyBytes     = "APP_MAX_BODY_BYTES"
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int           `yaml:"server_port"`
	BindHost        string        `yaml:"bind_host"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`

	// Storage settings. StorageDSN is required for postgres and mysql.
	StorageBackend   string `yaml:"storage_backend"`
	StoragePath      string `yaml:"storage_path"`
	StorageDSN       string `yaml:"storage_dsn"`
	RedisAddr        string `yaml:"redis_addr"`
	StorageNamespace string `yaml:"storage_namespace"`
	ItemsKey         string `yaml:"items_key"`
	SeedSampleItems  bool   `yaml:"seed_sample_items"`

	// Request limits. A zero RateLimit disables rate limiting.
	RateLimit    float64 `yaml:"rate_limit"`
	RateBurst    int     `yaml:"rate_burst"`
	MaxBodyBytes int64   `yaml:"max_body_bytes"`
}

// Options selects the optional files Load reads before the environment.
type Options struct {
	// ConfigFile is a YAML file; when empty APP_CONFIG_FILE is consulted.
	ConfigFile string
	// EnvFile is a dotenv file. When empty, .env is loaded if present.
	EnvFile string
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidStorageBackend  = errors.New(
		"storage backend must be one of: memory, file, sqlite, postgres, mysql, redis",
	)
	ErrMissingStorageDSN   = errors.New("storage dsn must be set when storage backend is postgres or mysql")
	ErrMissingStoragePath  = errors.New("storage path must be set when storage backend is file")
	ErrMissingRedisAddr    = errors.New("redis address must be set when storage backend is redis")
	ErrEmptyNamespace      = errors.New("storage namespace must not be empty")
	ErrEmptyItemsKey       = errors.New("items key must not be empty")
	ErrInvalidRateLimit    = errors.New("rate limit must not be negative")
	ErrInvalidRateBurst    = errors.New("rate burst must be positive when rate limiting is enabled")
	ErrInvalidMaxBodyBytes = errors.New("max body bytes must be positive")
)

// Default returns a configuration populated with default values.
func Default() *Config {
	return &Config{
		ServerPort:       DefaultServerPort,
		BindHost:         DefaultBindHost,
		LogLevel:         DefaultLogLevel,
		ShutdownTimeout:  DefaultShutdownTimeout,
		MetricsEnabled:   DefaultMetricsEnabled,
		StorageBackend:   DefaultStorageBackend,
		StoragePath:      DefaultStoragePath,
		RedisAddr:        DefaultRedisAddr,
		StorageNamespace: DefaultStorageNamespace,
		ItemsKey:         DefaultItemsKey,
		RateBurst:        DefaultRateBurst,
		MaxBodyBytes:     DefaultMaxBodyBytes,
	}
}

// Load reads configuration from environment variables with defaults.
// Environment variables have priority over default values.
func Load() (*Config, error) {
	return LoadWithOptions(Options{})
}

// LoadWithOptions reads configuration in increasing priority: defaults, the
// YAML file, then environment variables. Variables from the dotenv file never
// override ones already set in the process environment.
func LoadWithOptions(opts Options) (*Config, error) {
	cfg := Default()

	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = os.Getenv(EnvConfigFile)
	}
	if configFile != "" {
		if err := cfg.loadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadEnvFile loads a dotenv file. The default file is optional.
func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		path = DefaultEnvFile
	}

	return godotenv.Load(path)
}

// loadFromFile overlays values from a YAML file onto c.
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return nil
}

// loadFromEnv loads configuration values from environment variables.
func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}

	if err := c.loadStorageEnv(); err != nil {
		return err
	}

	return c.loadLimitsEnv()
}

// loadServerEnv loads server-related environment variables.
func (c *Config) loadServerEnv() error {
	if val := os.Getenv(EnvServerPort); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvServerPort, err)
		}
		c.ServerPort = port
	}

	if val := os.Getenv(EnvBindHost); val != "" {
		c.BindHost = val
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv(EnvShutdownTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvShutdownTimeout, err)
		}
		c.ShutdownTimeout = timeout
	}

	if val := os.Getenv(EnvMetricsEnabled); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMetricsEnabled, err)
		}
		c.MetricsEnabled = enabled
	}

	return nil
}

// loadStorageEnv loads storage-related environment variables.
func (c *Config) loadStorageEnv() error {
	if val := os.Getenv(EnvStorageBackend); val != "" {
		c.StorageBackend = val
	}

	if val := os.Getenv(EnvStoragePath); val != "" {
		c.StoragePath = val
	}

	if val := os.Getenv(EnvStorageDSN); val != "" {
		c.StorageDSN = val
	}

	if val := os.Getenv(EnvRedisAddr); val != "" {
		c.RedisAddr = val
	}

	if val := os.Getenv(EnvStorageNamespace); val != "" {
		c.StorageNamespace = val
	}

	if val := os.Getenv(EnvItemsKey); val != "" {
		c.ItemsKey = val
	}

	if val := os.Getenv(EnvSeedSampleItems); val != "" {
		seed, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvSeedSampleItems, err)
		}
		c.SeedSampleItems = seed
	}

	return nil
}

// loadLimitsEnv loads request limit environment variables.
func (c *Config) loadLimitsEnv() error {
	if val := os.Getenv(EnvRateLimit); val != "" {
		limit, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvRateLimit, err)
		}
		c.RateLimit = limit
	}

	if val := os.Getenv(EnvRateBurst); val != "" {
		burst, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvRateBurst, err)
		}
		c.RateBurst = burst
	}

	if val := os.Getenv(EnvMaxBodyBytes); val != "" {
		size, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMaxBodyBytes, err)
		}
		c.MaxBodyBytes = size
	}

	return nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	return c.validateLimits()
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

// validateStorage validates storage backend configuration.
func (c *Config) validateStorage() error {
	switch c.StorageBackend {
	case prefs.BackendMemory, prefs.BackendSQLite:
	case prefs.BackendFile:
		if c.StoragePath == "" {
			return ErrMissingStoragePath
		}
	case prefs.BackendPostgres, prefs.BackendMySQL:
		if c.StorageDSN == "" {
			return ErrMissingStorageDSN
		}
	case prefs.BackendRedis:
		if c.RedisAddr == "" {
			return ErrMissingRedisAddr
		}
	default:
		return ErrInvalidStorageBackend
	}

	if c.StorageNamespace == "" {
		return ErrEmptyNamespace
	}

	if c.ItemsKey == "" {
		return ErrEmptyItemsKey
	}

	return nil
}

// validateLimits validates request limit configuration.
func (c *Config) validateLimits() error {
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}

	if c.RateLimit > 0 && c.RateBurst < 1 {
		return ErrInvalidRateBurst
	}

	if c.MaxBodyBytes <= 0 {
		return ErrInvalidMaxBodyBytes
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.ServerPort))
}

// PrefsOptions returns the settings store options described by c.
func (c *Config) PrefsOptions() prefs.Options {
	return prefs.Options{
		Backend:   c.StorageBackend,
		Namespace: c.StorageNamespace,
		Path:      c.StoragePath,
		DSN:       c.StorageDSN,
		RedisAddr: c.RedisAddr,
	}
}
