// Package config loads service settings from the environment.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Debug            bool         `mapstructure:"debug"`
	Port             string       `mapstructure:"port"`
	CORSAllowOrigins []string     `mapstructure:"cors_allow_origins"`
	Redis            RedisConfig  `mapstructure:"redis"`
	Events           EventsConfig `mapstructure:"events"`
}

// RedisConfig controls the optional read cache. An empty connection string disables it.
type RedisConfig struct {
	ConnectionString string        `mapstructure:"connection_string"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
}

// EventsConfig controls publishing of change events. An empty connection string disables it.
type EventsConfig struct {
	ConnectionString string        `mapstructure:"connection_string"`
	Queue            string        `mapstructure:"queue"`
	Workers          int           `mapstructure:"workers"`
	Buffer           int           `mapstructure:"buffer"`
	Timeout          time.Duration `mapstructure:"timeout"`
	HandoffTimeout   time.Duration `mapstructure:"handoff_timeout"`
}

// envBindings maps config keys to the environment variables that can set them.
// Earlier names take precedence.
var envBindings = map[string][]string{
	"debug":                    {"DEBUG"},
	"port":                     {"PORT", "FUNCTIONS_CUSTOMHANDLER_PORT"},
	"cors_allow_origins":       {"CORS_ALLOW_ORIGINS"},
	"redis.connection_string":  {"REDIS_CONNECTION_STRING"},
	"redis.cache_ttl":          {"CACHE_TTL"},
	"events.connection_string": {"STORAGE_CONNECTION_STRING"},
	"events.queue":             {"EVENTS_QUEUE"},
	"events.workers":           {"EVENT_WORKERS"},
	"events.buffer":            {"EVENT_BUFFER"},
	"events.timeout":           {"EVENT_TIMEOUT"},
	"events.handoff_timeout":   {"EVENT_HANDOFF_TIMEOUT"},
}

var defaults = map[string]any{
	"debug":                  false,
	"port":                   "8080",
	"cors_allow_origins":     []string{"*"},
	"redis.cache_ttl":        5 * time.Minute,
	"events.queue":           "todo-events",
	"events.workers":         4,
	"events.buffer":          1024,
	"events.timeout":         30 * time.Second,
	"events.handoff_timeout": 15 * time.Millisecond,
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.CORSAllowOrigins = splitList(cfg.CORSAllowOrigins)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		inputs := slices.Insert(slices.Clone(envs), 0, key)
		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("invalid PORT: must not be empty")
	}
	if c.Redis.CacheTTL < 0 {
		return errors.New("invalid CACHE_TTL: must not be negative")
	}
	if c.Events.Workers <= 0 {
		return errors.New("invalid EVENT_WORKERS: must be greater than zero")
	}
	if c.Events.Buffer <= 0 {
		return errors.New("invalid EVENT_BUFFER: must be greater than zero")
	}
	if c.Events.Timeout <= 0 {
		return errors.New("invalid EVENT_TIMEOUT: must be greater than zero")
	}
	if c.Events.HandoffTimeout < 0 {
		return errors.New("invalid EVENT_HANDOFF_TIMEOUT: must not be negative")
	}
	if c.Events.ConnectionString != "" && c.Events.Queue == "" {
		return errors.New("missing EVENTS_QUEUE")
	}
	return nil
}

// ListenAddr is the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

// Options converts the connection string into client options. Both redis://
// URLs and the Azure "host:port,password=...,ssl=True" form are accepted.
func (r RedisConfig) Options() *redis.Options {
	if opts, err := redis.ParseURL(r.ConnectionString); err == nil {
		return opts
	}
	parts := strings.Split(r.ConnectionString, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

// splitList accepts both repeated values and a single comma separated value.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
