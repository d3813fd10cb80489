package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP listener and logging settings
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"` // text, json
}

// CacheConfig holds engine settings
type CacheConfig struct {
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SweepBatchSize int           `yaml:"sweep_batch_size"`
	MaxKeys        int           `yaml:"max_keys"` // 0 = unbounded
}

// StaticKey is an API key accepted by the HTTP transport
type StaticKey struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// AuthConfig holds API key authentication settings
type AuthConfig struct {
	Enabled     bool        `yaml:"enabled"`
	APIKeys     []StaticKey `yaml:"api_keys"`
	PublicPaths []string    `yaml:"public_paths"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Exporter   string  `yaml:"exporter"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate"`
}

// InvalidationConfig holds the Redis Pub/Sub invalidation feed settings.
// The feed is disabled when RedisAddr is empty.
type InvalidationConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Channel       string `yaml:"channel"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Cache        CacheConfig        `yaml:"cache"`
	Auth         AuthConfig         `yaml:"auth"`
	Tracing      TracingConfig      `yaml:"tracing"`
	Invalidation InvalidationConfig `yaml:"invalidation"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":3000",
			ShutdownTimeout: 5 * time.Second,
			LogLevel:        "info",
			LogFormat:       "text",
		},
		Cache: CacheConfig{
			SweepInterval:  time.Second,
			SweepBatchSize: 256,
		},
		Auth: AuthConfig{
			PublicPaths: []string{"/health", "/metrics"},
		},
		Tracing: TracingConfig{
			Exporter:   "otlp-http",
			Endpoint:   "localhost:4318",
			SampleRate: 1.0,
		},
		Invalidation: InvalidationConfig{
			Channel: "kvcache:invalidate",
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Load returns the defaults, overlaid by the file at path (if non-empty)
// and then by environment variables.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadFromEnv applies environment variable overrides to the config
func LoadFromEnv(cfg *Config) error {
	if v := os.Getenv("KVCACHE_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("PORT"); v != "" && os.Getenv("KVCACHE_LISTEN_ADDR") == "" {
		cfg.Server.ListenAddr = ":" + v
	}
	if v := os.Getenv("KVCACHE_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("KVCACHE_LOG_FORMAT"); v != "" {
		cfg.Server.LogFormat = v
	}
	if v := os.Getenv("KVCACHE_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("KVCACHE_SWEEP_INTERVAL: %w", err)
		}
		cfg.Cache.SweepInterval = d
	}
	if v := os.Getenv("KVCACHE_MAX_KEYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KVCACHE_MAX_KEYS: %w", err)
		}
		cfg.Cache.MaxKeys = n
	}
	if v := os.Getenv("KVCACHE_API_KEYS"); v != "" {
		// name:key pairs, comma separated
		for _, pair := range strings.Split(v, ",") {
			name, key, ok := strings.Cut(strings.TrimSpace(pair), ":")
			if !ok || key == "" {
				return fmt.Errorf("KVCACHE_API_KEYS: malformed entry %q", pair)
			}
			cfg.Auth.APIKeys = append(cfg.Auth.APIKeys, StaticKey{Name: name, Key: key})
		}
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("KVCACHE_OTEL_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
		cfg.Tracing.Enabled = true
	}
	if v := os.Getenv("KVCACHE_REDIS_ADDR"); v != "" {
		cfg.Invalidation.RedisAddr = v
	}
	if v := os.Getenv("KVCACHE_REDIS_PASSWORD"); v != "" {
		cfg.Invalidation.RedisPassword = v
	}
	return nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Cache.SweepBatchSize < 0 {
		return fmt.Errorf("cache.sweep_batch_size must not be negative")
	}
	if c.Cache.MaxKeys < 0 {
		return fmt.Errorf("cache.max_keys must not be negative")
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.enabled requires at least one api key")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
	}
	return nil
}
