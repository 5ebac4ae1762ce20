package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func envMap(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "127.0.0.1:3001", cfg.Server.Addr)
	require.Equal(t, 30*time.Second, cfg.Stream.KeepaliveInterval)
	require.Equal(t, 30*time.Minute, cfg.Session.IdleTTL)
	require.True(t, cfg.UI.AttachToMutations)
}

func TestLoadMergesYAMLOverDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: 0.0.0.0:9000
stream:
  keepalive_interval: 5s
rate_limit:
  enabled: false
session:
  idle_ttl: 0s
ui:
  attach_to_mutations: false
log:
  format: json
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	require.Equal(t, 5*time.Second, cfg.Stream.KeepaliveInterval)
	require.Equal(t, 128, cfg.Stream.MaxGlobal)
	require.False(t, cfg.RateLimit.Enabled)
	require.Equal(t, time.Duration(0), cfg.Session.IdleTTL)
	require.False(t, cfg.UI.AttachToMutations)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default().Server.Addr, cfg.Server.Addr)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
	_, err := Load(path)
	require.ErrorContains(t, err, "parse config")
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TODO_MCP_LOG_LEVEL=debug\n"), 0o600))
	t.Setenv("TODO_MCP_LOG_LEVEL", "")
	os.Unsetenv("TODO_MCP_LOG_LEVEL")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()
	err := ApplyEnvOverrides(&cfg, envMap(map[string]string{
		"TODO_MCP_SERVER_ADDR":               ":4000",
		"TODO_MCP_SERVER_ALLOWED_ORIGINS":    "https://a.example, https://b.example,",
		"TODO_MCP_STREAM_KEEPALIVE_INTERVAL": "250ms",
		"TODO_MCP_RATE_LIMIT_RPS":            "2.5",
		"TODO_MCP_SESSION_IDLE_TTL":          "1h",
		"TODO_MCP_METRICS_ENABLED":           "false",
		"TODO_MCP_LOG_FORMAT":                "  ",
	}))
	require.NoError(t, err)
	require.Equal(t, ":4000", cfg.Server.Addr)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	require.Equal(t, 250*time.Millisecond, cfg.Stream.KeepaliveInterval)
	require.Equal(t, 2.5, cfg.RateLimit.RPS)
	require.Equal(t, time.Hour, cfg.Session.IdleTTL)
	require.False(t, cfg.Metrics.Enabled)
	require.Equal(t, "text", cfg.Log.Format)
}

func TestApplyEnvOverridesReportsBadValues(t *testing.T) {
	cfg := Default()
	err := ApplyEnvOverrides(&cfg, envMap(map[string]string{
		"TODO_MCP_STREAM_MAX_GLOBAL":      "many",
		"TODO_MCP_UI_ATTACH_TO_MUTATIONS": "sometimes",
	}))
	require.ErrorContains(t, err, "TODO_MCP_STREAM_MAX_GLOBAL")
	require.ErrorContains(t, err, "TODO_MCP_UI_ATTACH_TO_MUTATIONS")
	require.Equal(t, 128, cfg.Stream.MaxGlobal)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Stream.KeepaliveInterval = 0
	cfg.RateLimit.RPS = 0
	cfg.Session.IdleTTL = -time.Second
	err := cfg.Validate()
	require.ErrorContains(t, err, "keepalive_interval")
	require.ErrorContains(t, err, "rate_limit")
	require.ErrorContains(t, err, "idle_ttl")

	cfg = Default()
	cfg.RateLimit.Enabled = false
	cfg.RateLimit.RPS = 0
	require.NoError(t, cfg.Validate())
}
