package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, 60*time.Second, cfg.Poll.Interval())
	assert.False(t, cfg.Poll.Auto)
	assert.Equal(t, "APP_VERSION", cfg.Poll.StorageKey)
	assert.Equal(t, "", cfg.Poll.BasePath)
	assert.Equal(t, "meta.json", cfg.Poll.Filename)
	assert.True(t, cfg.Poll.StartFocused)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, DefaultStorePath(), cfg.Store.Path)
	assert.Equal(t, "exec", cfg.Reload.Mode)
	assert.False(t, cfg.Server.Events.Enabled)
	assert.NoError(t, Validate(cfg))
}

func TestValidate_AcceptsSafeCombinations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"memory store with command reload", func(c *Config) {
			c.Store.Backend = "memory"
			c.Reload.Mode = "command"
			c.Reload.Command = []string{"true"}
		}},
		{"memory store without reload", func(c *Config) {
			c.Store.Backend = "memory"
			c.Reload.Mode = "none"
		}},
		{"events with a token", func(c *Config) {
			c.Server.Events.Enabled = true
			c.Server.Events.SecretToken = "s3cret"
		}},
		{"events on loopback", func(c *Config) {
			c.Server.Events.Enabled = true
			c.Server.ListenAddress = "127.0.0.1:8080"
		}},
		{"events on localhost", func(c *Config) {
			c.Server.Events.Enabled = true
			c.Server.ListenAddress = "localhost:8080"
		}},
		{"events with the server off", func(c *Config) {
			c.Server.Enabled = false
			c.Server.Events.Enabled = true
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			assert.NoError(t, Validate(cfg))
		})
	}
}

func TestDefaultStorePath(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	path := DefaultStorePath()
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, "marker.json", filepath.Base(path))
	assert.Equal(t, "version-sentinel", filepath.Base(filepath.Dir(path)))
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
poll:
  duration_ms: 5000
  auto: true
  origin: https://app.example.com
  base_path: /static/
store:
  backend: file
  path: /var/lib/vs/marker.json
cache:
  backend: dir
  dir: /var/cache/app
reload:
  mode: command
  command: ["systemctl", "restart", "app"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Poll.Interval())
	assert.True(t, cfg.Poll.Auto)
	assert.Equal(t, "/static/", cfg.Poll.BasePath)
	assert.Equal(t, "meta.json", cfg.Poll.Filename, "unset fields keep their defaults")
	assert.Equal(t, []string{"systemctl", "restart", "app"}, cfg.Reload.Command)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "poll:\n  storage_key: FROM_FILE\n")
	t.Setenv("VS_POLL_STORAGE_KEY", "FROM_ENV")
	t.Setenv("VS_POLL_AUTO", "true")
	t.Setenv("VS_POLL_DURATION_MS", "1500")
	t.Setenv("VS_RELOAD_MODE", "command")
	t.Setenv("VS_RELOAD_COMMAND", "kill -HUP 1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "FROM_ENV", cfg.Poll.StorageKey)
	assert.True(t, cfg.Poll.Auto)
	assert.Equal(t, 1500*time.Millisecond, cfg.Poll.Interval())
	assert.Equal(t, []string{"kill", "-HUP", "1"}, cfg.Reload.Command)
}

func TestLoad_InvalidEnvValueIgnored(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("VS_POLL_DURATION_MS", "soon")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultDurationMS, cfg.Poll.DurationMS)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown store backend", func(c *Config) { c.Store.Backend = "etcd" }},
		{"file store without path", func(c *Config) { c.Store.Path = "" }},
		{"badger store without path", func(c *Config) {
			c.Store.Backend = "badger"
			c.Store.Path = ""
		}},
		{"memory store with exec reload", func(c *Config) { c.Store.Backend = "memory" }},
		{"events without token on all interfaces", func(c *Config) { c.Server.Events.Enabled = true }},
		{"events without token on a public address", func(c *Config) {
			c.Server.Events.Enabled = true
			c.Server.ListenAddress = "192.0.2.10:8080"
		}},
		{"redis store without url", func(c *Config) { c.Store.Backend = "redis" }},
		{"dir cache without dir", func(c *Config) { c.Cache.Backend = "dir" }},
		{"redis cache without url", func(c *Config) {
			c.Cache.Backend = "redis"
			c.Cache.RedisPrefix = "app"
		}},
		{"command reload without command", func(c *Config) { c.Reload.Mode = "command" }},
		{"dial without address", func(c *Config) { c.Connectivity.Mode = "dial" }},
		{"zero duration", func(c *Config) { c.Poll.DurationMS = 0 }},
		{"empty storage key", func(c *Config) { c.Poll.StorageKey = "" }},
		{"empty filename", func(c *Config) { c.Poll.Filename = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Server.Events.SecretToken = "hunter2"
	cfg.Store.Redis.URL = "redis://:pw@localhost:6379/0"

	data, err := cfg.RedactedJSON()
	require.NoError(t, err)

	assert.NotContains(t, string(data), "hunter2")
	assert.NotContains(t, string(data), "pw@localhost")
	assert.Equal(t, "hunter2", cfg.Server.Events.SecretToken, "original is untouched")
}
