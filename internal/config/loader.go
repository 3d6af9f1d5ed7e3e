package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event/topic"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/router"
)

// EnvPrefix is the default environment variable prefix.
const EnvPrefix = "DESKBUS_"

// Load reads the file at path over Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over Default. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables named prefix plus
// LOG_LEVEL, LOG_FORMAT, NAMESPACE, DIAG_LISTEN, REDIS_ADDR or
// DEBUGGER_CAPACITY. Setting DIAG_LISTEN enables diagnostics; setting
// REDIS_ADDR selects the Redis cache backend.
func (c *Config) ApplyEnv(prefix string) error {
	if v, ok := os.LookupEnv(prefix + "LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv(prefix + "LOG_FORMAT"); ok {
		c.Log.Format = v
	}
	if v, ok := os.LookupEnv(prefix + "NAMESPACE"); ok {
		c.Namespace = v
	}
	if v, ok := os.LookupEnv(prefix + "DIAG_LISTEN"); ok && v != "" {
		c.Diag.Enabled = true
		c.Diag.Listen = v
	}
	if v, ok := os.LookupEnv(prefix + "REDIS_ADDR"); ok && v != "" {
		c.Middleware.Cache.Backend = CacheRedis
		c.Middleware.Cache.Redis.Addr = v
	}
	if v, ok := os.LookupEnv(prefix + "DEBUGGER_CAPACITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sDEBUGGER_CAPACITY: %w", prefix, err)
		}
		c.Debugger.Capacity = n
	}
	return nil
}

var validLogLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Namespace != "" && !topic.Name(c.Namespace).IsValid() {
		add("namespace: invalid name %q", c.Namespace)
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		add("log.level must be one of trace, debug, info, warn, error (got %q)", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		add("log.format must be json or console (got %q)", c.Log.Format)
	}

	d := c.Distribution
	if _, err := router.ParseStrategy(string(d.Strategy)); err != nil {
		add("distribution.strategy: unknown strategy %q", d.Strategy)
	}
	if d.MaxConcurrency < 0 {
		add("distribution.max_concurrency must not be negative")
	}
	if d.Timeout < 0 || d.RetryDelay < 0 || d.BatchDelay < 0 {
		add("distribution: durations must not be negative")
	}
	if d.RetryCount < 0 {
		add("distribution.retry_count must not be negative")
	}
	if d.BatchSize < 0 {
		add("distribution.batch_size must not be negative")
	}

	m := c.Middleware
	for i, rule := range m.Validation.Rules {
		if rule.Event == "" {
			add("middleware.validation.rules[%d].event is required", i)
		}
		for path, typ := range rule.Types {
			switch typ {
			case "string", "number", "bool", "object", "array":
			default:
				add("middleware.validation.rules[%d].types[%s]: unknown type %q", i, path, typ)
			}
		}
	}
	if m.Cache.Enabled {
		switch m.Cache.Backend {
		case CacheMemory:
			if m.Cache.MaxEntries <= 0 {
				add("middleware.cache.max_entries must be positive")
			}
		case CacheRedis:
			if m.Cache.Redis.Addr == "" {
				add("middleware.cache.redis.addr is required")
			}
		default:
			add("middleware.cache.backend must be memory or redis (got %q)", m.Cache.Backend)
		}
	}
	if m.RateLimit.Enabled && (m.RateLimit.Limit <= 0 || m.RateLimit.Window <= 0) {
		add("middleware.rate_limit: limit and window must be positive")
	}
	if m.Performance.SampleRate < 0 || m.Performance.SampleRate > 1 {
		add("middleware.performance.sample_rate must be within [0, 1]")
	}

	if c.Debugger.Capacity <= 0 {
		add("debugger.capacity must be positive")
	}
	if c.Diag.Enabled && c.Diag.Listen == "" {
		add("diag.listen is required when diag is enabled")
	}

	return errors.Join(errs...)
}
