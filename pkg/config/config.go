// Package config loads control-plane configuration from the environment.
// All settings are validated here, at the boundary; the rest of the code
// assumes a well-formed Config.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full control-plane configuration.
type Config struct {
	Server     ServerConfig     `envPrefix:"PUNSERVE_"`
	Log        LogConfig        `envPrefix:"PUNSERVE_LOG_"`
	Redis      RedisConfig      `envPrefix:"PUNSERVE_REDIS_"`
	Cache      CacheConfig      `envPrefix:"PUNSERVE_CACHE_"`
	RateLimit  RateLimitConfig  `envPrefix:"PUNSERVE_RATELIMIT_"`
	Scheduler  SchedulerConfig  `envPrefix:"PUNSERVE_SCHED_"`
	Generation GenerationConfig `envPrefix:"PUNSERVE_GEN_"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Pretty bool   `env:"PRETTY" envDefault:"false"`
}

// RedisConfig holds Redis connection settings. An empty Addr runs the
// control plane without a durable tier: memory-only cache, in-memory
// scheduler store, in-memory rate limit counters.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// Enabled reports whether a durable tier is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// CacheConfig holds content cache settings.
type CacheConfig struct {
	// Capacity is the total volatile-tier capacity in entries.
	Capacity int `env:"CAPACITY" envDefault:"1024"`

	// Shards is the number of volatile-tier lock domains.
	Shards int `env:"SHARDS" envDefault:"16"`

	// DefaultTTL applies when the caller does not choose a TTL.
	DefaultTTL time.Duration `env:"DEFAULT_TTL" envDefault:"1h"`

	// SweepInterval is how often the volatile tier is swept for
	// expired entries. The durable tier expires keys natively.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
}

// RateLimitConfig holds admission control settings.
type RateLimitConfig struct {
	// Limit is the number of requests allowed per identity per window.
	Limit int `env:"LIMIT" envDefault:"100"`

	// Window is the fixed window duration.
	Window time.Duration `env:"WINDOW" envDefault:"1h"`

	// Persist stores counters in Redis instead of process memory.
	// Requires Redis to be configured.
	Persist bool `env:"PERSIST" envDefault:"false"`

	// FailClosed denies requests when the persisted counter store is
	// unreachable. The default is fail-open: admit and record the
	// degradation.
	FailClosed bool `env:"FAIL_CLOSED" envDefault:"false"`
}

// SchedulerConfig holds delivery scheduler/dispatcher settings.
type SchedulerConfig struct {
	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"15s"`
	MaxConcurrent  int           `env:"MAX_CONCURRENT" envDefault:"8"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	BaseBackoff    time.Duration `env:"BASE_BACKOFF" envDefault:"30s"`
	MaxBackoff     time.Duration `env:"MAX_BACKOFF" envDefault:"1h"`
	AttemptTimeout time.Duration `env:"ATTEMPT_TIMEOUT" envDefault:"10s"`
	BatchLimit     int           `env:"BATCH_LIMIT" envDefault:"100"`

	// RetentionTTL bounds how long terminal records are kept for audit.
	RetentionTTL time.Duration `env:"RETENTION_TTL" envDefault:"720h"`
}

// GenerationConfig holds the generation service client settings.
type GenerationConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"http://localhost:8000"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects out-of-range settings.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Cache.Shards <= 0 {
		return fmt.Errorf("cache shards must be positive, got %d", c.Cache.Shards)
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache default TTL must be positive, got %s", c.Cache.DefaultTTL)
	}
	if c.RateLimit.Limit <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d", c.RateLimit.Limit)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", c.RateLimit.Window)
	}
	if c.RateLimit.Persist && !c.Redis.Enabled() {
		return fmt.Errorf("persisted rate limit counters require redis")
	}
	if c.Scheduler.MaxConcurrent <= 0 {
		return fmt.Errorf("scheduler max concurrent must be positive, got %d", c.Scheduler.MaxConcurrent)
	}
	if c.Scheduler.MaxAttempts <= 0 {
		return fmt.Errorf("scheduler max attempts must be positive, got %d", c.Scheduler.MaxAttempts)
	}
	if c.Scheduler.BaseBackoff <= 0 {
		return fmt.Errorf("scheduler base backoff must be positive, got %s", c.Scheduler.BaseBackoff)
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler poll interval must be positive, got %s", c.Scheduler.PollInterval)
	}
	if c.Generation.BaseURL == "" {
		return fmt.Errorf("generation base URL is required")
	}
	return nil
}
