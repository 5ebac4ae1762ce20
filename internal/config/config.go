// Package config resolves server settings from defaults, an optional YAML
// file and TODO_MCP_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "TODO_MCP_"

type Config struct {
	Server    ServerConfig
	Stream    StreamConfig
	RateLimit RateLimitConfig
	Session   SessionConfig
	UI        UIConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

type StreamConfig struct {
	KeepaliveInterval time.Duration
	MaxGlobal         int
	MaxPerClient      int
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type SessionConfig struct {
	IdleTTL time.Duration
}

type UIConfig struct {
	AttachToMutations bool
}

type LogConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Enabled bool
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           "127.0.0.1:3001",
			AllowedOrigins: []string{"http://localhost", "http://127.0.0.1"},
		},
		Stream: StreamConfig{
			KeepaliveInterval: 30 * time.Second,
			MaxGlobal:         128,
			MaxPerClient:      8,
		},
		RateLimit: RateLimitConfig{Enabled: true, RPS: 30, Burst: 60},
		Session:   SessionConfig{IdleTTL: 30 * time.Minute},
		UI:        UIConfig{AttachToMutations: true},
		Log:       LogConfig{Level: "info", Format: "text"},
		Metrics:   MetricsConfig{Enabled: true},
	}
}

type fileConfig struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Stream struct {
		KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
		MaxGlobal         int           `yaml:"max_global"`
		MaxPerClient      int           `yaml:"max_per_client"`
	} `yaml:"stream"`
	RateLimit struct {
		Enabled *bool   `yaml:"enabled"`
		RPS     float64 `yaml:"rps"`
		Burst   int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Session struct {
		IdleTTL *time.Duration `yaml:"idle_ttl"`
	} `yaml:"session"`
	UI struct {
		AttachToMutations *bool `yaml:"attach_to_mutations"`
	} `yaml:"ui"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Metrics struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// Load builds the effective configuration. An explicit configPath must be
// readable; otherwise the default candidates are tried and skipped when
// absent. A .env file in the working directory is loaded first if present;
// variables already set in the environment win over it.
func Load(configPath string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	candidates := []string{"configs/config.yaml", "go-backend/configs/config.yaml"}
	if configPath != "" {
		candidates = []string{configPath}
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if configPath != "" {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			continue
		}
		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		merge(&cfg, parsed)
		break
	}

	if err := ApplyEnvOverrides(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func merge(dst *Config, src fileConfig) {
	if src.Server.Addr != "" {
		dst.Server.Addr = src.Server.Addr
	}
	if src.Server.AllowedOrigins != nil {
		dst.Server.AllowedOrigins = src.Server.AllowedOrigins
	}
	if src.Stream.KeepaliveInterval != 0 {
		dst.Stream.KeepaliveInterval = src.Stream.KeepaliveInterval
	}
	if src.Stream.MaxGlobal != 0 {
		dst.Stream.MaxGlobal = src.Stream.MaxGlobal
	}
	if src.Stream.MaxPerClient != 0 {
		dst.Stream.MaxPerClient = src.Stream.MaxPerClient
	}
	if src.RateLimit.Enabled != nil {
		dst.RateLimit.Enabled = *src.RateLimit.Enabled
	}
	if src.RateLimit.RPS != 0 {
		dst.RateLimit.RPS = src.RateLimit.RPS
	}
	if src.RateLimit.Burst != 0 {
		dst.RateLimit.Burst = src.RateLimit.Burst
	}
	if src.Session.IdleTTL != nil {
		dst.Session.IdleTTL = *src.Session.IdleTTL
	}
	if src.UI.AttachToMutations != nil {
		dst.UI.AttachToMutations = *src.UI.AttachToMutations
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Format != "" {
		dst.Log.Format = src.Log.Format
	}
	if src.Metrics.Enabled != nil {
		dst.Metrics.Enabled = *src.Metrics.Enabled
	}
}

// ApplyEnvOverrides reads TODO_MCP_<SECTION>_<KEY> variables through lookup.
func ApplyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		raw, ok := lookup(envPrefix + name)
		raw = strings.TrimSpace(raw)
		return raw, ok && raw != ""
	}
	var errs []error
	str := func(name string, dst *string) {
		if raw, ok := get(name); ok {
			*dst = raw
		}
	}
	boolean := func(name string, dst *bool) {
		if raw, ok := get(name); ok {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if raw, ok := get(name); ok {
			v, err := strconv.Atoi(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = v
		}
	}
	duration := func(name string, dst *time.Duration) {
		if raw, ok := get(name); ok {
			v, err := time.ParseDuration(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = v
		}
	}

	str("SERVER_ADDR", &cfg.Server.Addr)
	if raw, ok := get("SERVER_ALLOWED_ORIGINS"); ok {
		cfg.Server.AllowedOrigins = splitList(raw)
	}
	duration("STREAM_KEEPALIVE_INTERVAL", &cfg.Stream.KeepaliveInterval)
	integer("STREAM_MAX_GLOBAL", &cfg.Stream.MaxGlobal)
	integer("STREAM_MAX_PER_CLIENT", &cfg.Stream.MaxPerClient)
	boolean("RATE_LIMIT_ENABLED", &cfg.RateLimit.Enabled)
	if raw, ok := get("RATE_LIMIT_RPS"); ok {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRATE_LIMIT_RPS: %w", envPrefix, err))
		} else {
			cfg.RateLimit.RPS = v
		}
	}
	integer("RATE_LIMIT_BURST", &cfg.RateLimit.Burst)
	duration("SESSION_IDLE_TTL", &cfg.Session.IdleTTL)
	boolean("UI_ATTACH_TO_MUTATIONS", &cfg.UI.AttachToMutations)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Stream.KeepaliveInterval <= 0 {
		errs = append(errs, errors.New("stream.keepalive_interval must be positive"))
	}
	if c.Stream.MaxGlobal <= 0 || c.Stream.MaxPerClient <= 0 {
		errs = append(errs, errors.New("stream limits must be positive"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate_limit.rps and rate_limit.burst must be positive when enabled"))
	}
	if c.Session.IdleTTL < 0 {
		errs = append(errs, errors.New("session.idle_ttl must not be negative"))
	}
	return errors.Join(errs...)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
