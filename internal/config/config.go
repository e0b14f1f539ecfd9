// Package config provides configuration loading, validation, and defaults for
// version-sentinel.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for version-sentinel.
type Config struct {
	Log          LogConfig          `yaml:"log"          json:"log"`
	Server       ServerConfig       `yaml:"server"       json:"server"`
	Poll         PollConfig         `yaml:"poll"         json:"poll"`
	Store        StoreConfig        `yaml:"store"        json:"store"`
	Cache        CacheConfig        `yaml:"cache"        json:"cache"`
	Reload       ReloadConfig       `yaml:"reload"       json:"reload"`
	Connectivity ConnectivityConfig `yaml:"connectivity" json:"connectivity"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string        `yaml:"level"  json:"level"  env:"VS_LOG_LEVEL"  validate:"omitempty,oneof=trace debug info warn error fatal panic"`
	Format string        `yaml:"format" json:"format" env:"VS_LOG_FORMAT" validate:"omitempty,oneof=text json"`
	File   LogFileConfig `yaml:"file"   json:"file"`
}

// LogFileConfig enables writing logs to a rotated file in addition to stderr.
type LogFileConfig struct {
	Path       string `yaml:"path"        json:"path"        env:"VS_LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb" validate:"omitempty,min=1"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups" validate:"omitempty,min=0"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days" validate:"omitempty,min=0"`
	Compress   bool   `yaml:"compress"    json:"compress"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Enabled       bool         `yaml:"enabled"        json:"enabled"        env:"VS_SERVER_ENABLED"`
	ListenAddress string       `yaml:"listen_address" json:"listen_address" env:"VS_LISTEN_ADDRESS" validate:"required_if=Enabled true"`
	EnablePprof   bool         `yaml:"enable_pprof"   json:"enable_pprof"   env:"VS_ENABLE_PPROF"`
	Events        EventsConfig `yaml:"events"         json:"events"`
}

// EventsConfig holds settings for the purge and visibility endpoints.
type EventsConfig struct {
	Enabled        bool   `yaml:"enabled"          json:"enabled"          env:"VS_EVENTS_ENABLED"`
	SecretToken    string `yaml:"secret_token"     json:"secret_token"     env:"VS_EVENTS_SECRET_TOKEN"`
	RequestsPerMin int    `yaml:"requests_per_min" json:"requests_per_min" validate:"omitempty,min=1"`
}

// PollConfig holds the version polling settings. It is fixed for the lifetime
// of a poller; changing it means building a new one.
type PollConfig struct {
	DurationMS            int    `yaml:"duration_ms"             json:"duration_ms"             env:"VS_POLL_DURATION_MS"  validate:"min=1"`
	Auto                  bool   `yaml:"auto"                    json:"auto"                    env:"VS_POLL_AUTO"`
	StorageKey            string `yaml:"storage_key"             json:"storage_key"             env:"VS_POLL_STORAGE_KEY"  validate:"required"`
	Origin                string `yaml:"origin"                  json:"origin"                  env:"VS_POLL_ORIGIN"       validate:"omitempty,url"`
	BasePath              string `yaml:"base_path"               json:"base_path"               env:"VS_POLL_BASE_PATH"`
	Filename              string `yaml:"filename"                json:"filename"                env:"VS_POLL_FILENAME"     validate:"required"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" json:"request_timeout_seconds" validate:"omitempty,min=1"`
	MaxRequestsPerSecond  int    `yaml:"max_requests_per_second" json:"max_requests_per_second" validate:"omitempty,min=0"`
	StartFocused          bool   `yaml:"start_focused"           json:"start_focused"           env:"VS_POLL_START_FOCUSED"`
}

// Interval returns the polling interval as a time.Duration.
func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.DurationMS) * time.Millisecond
}

// RequestTimeout returns the per-request timeout for metadata fetches.
func (c PollConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// StoreConfig selects where the last-known version marker is persisted.
type StoreConfig struct {
	Backend string      `yaml:"backend" json:"backend" env:"VS_STORE_BACKEND" validate:"oneof=memory file badger redis"`
	Path    string      `yaml:"path"    json:"path"    env:"VS_STORE_PATH"`
	Redis   RedisConfig `yaml:"redis"   json:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL          string `yaml:"url"            json:"url"`
	PoolSize     int    `yaml:"pool_size"      json:"pool_size"      validate:"omitempty,min=1"`
	MinIdleConns int    `yaml:"min_idle_conns" json:"min_idle_conns" validate:"omitempty,min=0"`
}

// CacheConfig selects the named artifact caches purged on a stale version.
type CacheConfig struct {
	Backend     string      `yaml:"backend"      json:"backend"      env:"VS_CACHE_BACKEND"      validate:"oneof=none dir redis"`
	Dir         string      `yaml:"dir"          json:"dir"          env:"VS_CACHE_DIR"          validate:"required_if=Backend dir"`
	RedisPrefix string      `yaml:"redis_prefix" json:"redis_prefix" env:"VS_CACHE_REDIS_PREFIX" validate:"required_if=Backend redis"`
	Redis       RedisConfig `yaml:"redis"        json:"redis"`
}

// ReloadConfig selects how the guarded client is reloaded after a purge.
type ReloadConfig struct {
	Mode    string   `yaml:"mode"    json:"mode"    env:"VS_RELOAD_MODE"    validate:"oneof=exec command none"`
	Command []string `yaml:"command" json:"command" env:"VS_RELOAD_COMMAND" validate:"required_if=Mode command"`
}

// ConnectivityConfig selects how network connectivity is judged on focus.
type ConnectivityConfig struct {
	Mode           string `yaml:"mode"            json:"mode"            env:"VS_CONNECTIVITY_MODE"    validate:"oneof=always dial"`
	Address        string `yaml:"address"         json:"address"         env:"VS_CONNECTIVITY_ADDRESS"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds" validate:"omitempty,min=1"`
}

// Timeout returns the connectivity probe timeout.
func (c ConnectivityConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads a YAML configuration file, applies defaults, applies environment
// variable overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	ApplyDefaults(cfg)

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides walks the config struct and overwrites fields that have
// an "env" tag if the corresponding environment variable is set.
func ApplyEnvOverrides(cfg *Config) {
	applyEnvOverridesOnValue(reflect.ValueOf(cfg))
}

func applyEnvOverridesOnValue(v reflect.Value) {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if fieldVal.Kind() == reflect.Struct {
			applyEnvOverridesOnValue(fieldVal.Addr())
			continue
		}

		envKey := field.Tag.Get("env")
		if envKey == "" {
			continue
		}

		envVal, ok := os.LookupEnv(envKey)
		if !ok {
			continue
		}

		setFieldFromString(fieldVal, envVal)
	}
}

// setFieldFromString sets a reflect.Value from a string, supporting string,
// bool, int and []string field types. Unparseable values are ignored.
func setFieldFromString(field reflect.Value, raw string) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)

	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			field.SetBool(b)
		}

	case reflect.Int:
		if n, err := strconv.Atoi(raw); err == nil {
			field.SetInt(int64(n))
		}

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		// Command lines are space separated so that "systemctl restart app"
		// can be given directly.
		field.Set(reflect.ValueOf(strings.Fields(raw)))
	}
}

// redactString replaces a secret string with "****" if non-empty.
func redactString(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// Redacted returns a copy of the Config with sensitive fields masked.
func (c *Config) Redacted() Config {
	cp := *c
	cp.Server.Events.SecretToken = redactString(cp.Server.Events.SecretToken)
	cp.Store.Redis.URL = redactString(cp.Store.Redis.URL)
	cp.Cache.Redis.URL = redactString(cp.Cache.Redis.URL)
	return cp
}

// RedactedJSON returns the config as indented JSON with secrets masked.
func (c *Config) RedactedJSON() ([]byte, error) {
	redacted := c.Redacted()
	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling redacted config: %w", err)
	}
	return data, nil
}
