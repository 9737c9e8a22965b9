package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by log.backend
const (
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
)

// Config represents the complete configuration for the snapshot cache server
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Cache    CacheConfig    `yaml:"cache"`
	Entities EntitiesConfig `yaml:"entities"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
}

// LogConfig selects and locates the versioned log backend
type LogConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// CacheConfig holds snapshot cache configuration
type CacheConfig struct {
	MaxParallelResolve int `yaml:"max_parallel_resolve"`
}

// EntitiesConfig declares the closed set of entity kinds the cache serves
type EntitiesConfig struct {
	Kinds []string `yaml:"kinds"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 5 * time.Second
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 1000
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 100
	}

	if cfg.Log.Backend == "" {
		cfg.Log.Backend = BackendSQLite
	}
	if cfg.Log.Path == "" {
		cfg.Log.Path = "/var/lib/verscache/log.db"
	}

	if cfg.Cache.MaxParallelResolve == 0 {
		cfg.Cache.MaxParallelResolve = 8
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Log.Backend != BackendSQLite && c.Log.Backend != BackendPebble {
		return fmt.Errorf("log.backend must be %q or %q", BackendSQLite, BackendPebble)
	}
	if len(c.Entities.Kinds) == 0 {
		return fmt.Errorf("entities.kinds must declare at least one kind")
	}
	seen := make(map[string]bool)
	for _, kind := range c.Entities.Kinds {
		if kind == "" {
			return fmt.Errorf("entities.kinds must not contain empty kinds")
		}
		if seen[kind] {
			return fmt.Errorf("entities.kinds contains duplicate kind %q", kind)
		}
		seen[kind] = true
	}
	if c.Cache.MaxParallelResolve < 1 {
		return fmt.Errorf("cache.max_parallel_resolve must be positive")
	}
	return nil
}
