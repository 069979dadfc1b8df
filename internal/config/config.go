// Package config loads and validates the relay's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/relay/internal/auth"
	"github.com/haasonsaas/relay/internal/ephemeral"
	"github.com/haasonsaas/relay/internal/liveness"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/ratelimit"
	"github.com/haasonsaas/relay/internal/typing"
)

// Config is the main configuration structure for the relay.
type Config struct {
	Server   ServerConfig              `yaml:"server"`
	Database DatabaseConfig            `yaml:"database"`
	Redis    ephemeral.RedisConfig     `yaml:"redis"`
	Auth     auth.Config               `yaml:"auth"`
	Limits   ratelimit.Config          `yaml:"limits"`
	Typing   typing.Config             `yaml:"typing"`
	Liveness liveness.Config           `yaml:"liveness"`
	Logging  observability.LogConfig   `yaml:"logging"`
	Tracing  observability.TraceConfig `yaml:"tracing"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
}

type DatabaseConfig struct {
	// Backend selects the durable store: "postgres" or "memory".
	Backend         string        `yaml:"backend"`
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// EphemeralBackend selects the TTL store: "redis" or "memory". Kept on
// the redis section so a bare `redis: {addr: ...}` implies redis.
func (c *Config) EphemeralBackend() string {
	if c.Redis.Addr == "" {
		return "memory"
	}
	return "redis"
}

// Load reads, expands, and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand ${VAR} references so secrets can stay in the environment.
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a runnable configuration: in-memory backends and
// insecure dev tokens. Loaded configs do not get the dev-token fallback
// and must pass Validate instead.
func Default() *Config {
	cfg := &Config{}
	cfg.Auth.AllowInsecureDevTokens = true
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8081
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Database.Backend == "" {
		if cfg.Database.URL != "" {
			cfg.Database.Backend = "postgres"
		} else {
			cfg.Database.Backend = "memory"
		}
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 20
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 24 * time.Hour
	}
	if cfg.Limits.MaxPerWindow == 0 && cfg.Limits.Window == 0 {
		cfg.Limits = ratelimit.DefaultConfig()
	}
	if cfg.Typing.TTL == 0 {
		cfg.Typing.TTL = typing.DefaultConfig().TTL
	}
	if cfg.Typing.SweepInterval == 0 {
		cfg.Typing.SweepInterval = typing.DefaultConfig().SweepInterval
	}
	if cfg.Liveness.PingInterval == 0 {
		cfg.Liveness.PingInterval = liveness.DefaultConfig().PingInterval
	}
	if cfg.Liveness.IdleTimeout == 0 {
		cfg.Liveness.IdleTimeout = liveness.DefaultConfig().IdleTimeout
	}
	if cfg.Liveness.SweepInterval == 0 {
		cfg.Liveness.SweepInterval = liveness.DefaultConfig().SweepInterval
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "relay"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
}

// Validate rejects configurations that cannot possibly run.
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required with the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database backend %q", c.Database.Backend)
	}
	if c.Auth.JWTSecret == "" && !c.Auth.AllowInsecureDevTokens {
		return fmt.Errorf("auth.jwt_secret is required unless allow_insecure_dev_tokens is set")
	}
	if c.Server.Port == c.Server.MetricsPort {
		return fmt.Errorf("server.port and server.metrics_port must differ")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required with tracing enabled")
	}
	return nil
}
