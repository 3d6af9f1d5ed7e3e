package config

import (
	"time"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/middleware"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/router"
)

// Config is the complete deskbus configuration.
type Config struct {
	// Namespace prefixes every event name emitted through the engine's bus view.
	Namespace string `yaml:"namespace"`

	Log          LogConfig                 `yaml:"log"`
	Distribution router.DistributionConfig `yaml:"distribution"`
	Middleware   MiddlewareConfig          `yaml:"middleware"`
	Debugger     DebuggerConfig            `yaml:"debugger"`
	Diag         DiagConfig                `yaml:"diag"`
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// MiddlewareConfig selects the built-in stages.
type MiddlewareConfig struct {
	Logging     ToggleConfig      `yaml:"logging"`
	Validation  ValidationConfig  `yaml:"validation"`
	Cache       CacheConfig       `yaml:"cache"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Security    SecurityConfig    `yaml:"security"`
	Performance PerformanceConfig `yaml:"performance"`
}

// ToggleConfig enables a stage that takes no settings.
type ToggleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ValidationConfig configures the validation stage.
type ValidationConfig struct {
	Enabled bool              `yaml:"enabled"`
	Rules   []middleware.Rule `yaml:"rules"`
}

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// CacheConfig configures the cache stages.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Backend    string        `yaml:"backend"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Events     []string      `yaml:"events"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig addresses the Redis cache backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RateLimitConfig configures the rate limit stage.
type RateLimitConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Limit     int           `yaml:"limit"`
	Window    time.Duration `yaml:"window"`
	PerSource bool          `yaml:"per_source"`
	Events    []string      `yaml:"events"`
}

// SecurityConfig configures the source allow-list stage.
type SecurityConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedSources []string `yaml:"allowed_sources"`
	Events         []string `yaml:"events"`
}

// PerformanceConfig configures the performance stages.
type PerformanceConfig struct {
	Enabled       bool          `yaml:"enabled"`
	SampleRate    float64       `yaml:"sample_rate"`
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

// DebuggerConfig configures the span recorder.
type DebuggerConfig struct {
	Enabled  bool `yaml:"enabled"`
	Capacity int  `yaml:"capacity"`
}

// DiagConfig configures the diagnostics HTTP server.
type DiagConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Distribution: router.DefaultDistributionConfig(),
		Middleware: MiddlewareConfig{
			Logging: ToggleConfig{Enabled: true},
			Cache: CacheConfig{
				Backend:    CacheMemory,
				TTL:        time.Minute,
				MaxEntries: 1024,
				Redis: RedisConfig{
					Addr:      "127.0.0.1:6379",
					KeyPrefix: "deskbus:cache:",
				},
			},
			RateLimit: RateLimitConfig{
				Limit:  100,
				Window: time.Second,
			},
			Performance: PerformanceConfig{
				Enabled:       true,
				SampleRate:    1,
				SlowThreshold: 100 * time.Millisecond,
			},
		},
		Debugger: DebuggerConfig{
			Enabled:  true,
			Capacity: 1000,
		},
		Diag: DiagConfig{
			Listen: "127.0.0.1:7070",
		},
	}
}
