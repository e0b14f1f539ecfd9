package config

import (
	"fmt"
	"net"

	"github.com/go-playground/validator/v10"
)

// Validate validates the configuration using struct tags registered with
// the go-playground/validator library, plus the cross-section rules that
// struct tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if (cfg.Store.Backend == "file" || cfg.Store.Backend == "badger") && cfg.Store.Path == "" {
		return fmt.Errorf("config validation failed: store.path is required for the %s store backend", cfg.Store.Backend)
	}
	if cfg.Store.Backend == "redis" && cfg.Store.Redis.URL == "" {
		return fmt.Errorf("config validation failed: store.redis.url is required for the redis store backend")
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.Redis.URL == "" {
		return fmt.Errorf("config validation failed: cache.redis.url is required for the redis cache backend")
	}
	if cfg.Store.Backend == "memory" && cfg.Reload.Mode == "exec" {
		return fmt.Errorf("config validation failed: the memory store does not survive reload.mode exec; use the file, badger or redis store")
	}
	if cfg.Server.Enabled && cfg.Server.Events.Enabled && cfg.Server.Events.SecretToken == "" && !isLoopback(cfg.Server.ListenAddress) {
		return fmt.Errorf("config validation failed: server.events.secret_token is required when events are served on %q", cfg.Server.ListenAddress)
	}
	if cfg.Connectivity.Mode == "dial" && cfg.Connectivity.Address == "" && cfg.Poll.Origin == "" {
		return fmt.Errorf("config validation failed: connectivity.address or poll.origin is required for dial mode")
	}
	return nil
}

// isLoopback reports whether addr ("host:port") only listens on a loopback
// interface. An empty host means every interface.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
