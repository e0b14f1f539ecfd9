package config

import (
	"os"
	"path/filepath"
)

// Default values for the polling section.
const (
	DefaultDurationMS = 60 * 1000
	DefaultStorageKey = "APP_VERSION"
	DefaultFilename   = "meta.json"
)

// ApplyDefaults sets the baseline configuration. Load calls it before
// unmarshalling, so any field present in the YAML file replaces its default.
func ApplyDefaults(cfg *Config) {
	// --- Log ---
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Log.File.MaxSizeMB = 10
	cfg.Log.File.MaxBackups = 3
	cfg.Log.File.MaxAgeDays = 28

	// --- Server ---
	cfg.Server.Enabled = true
	cfg.Server.ListenAddress = ":8080"
	cfg.Server.Events.Enabled = false
	cfg.Server.Events.RequestsPerMin = 30

	// --- Poll ---
	cfg.Poll.DurationMS = DefaultDurationMS
	cfg.Poll.Auto = false
	cfg.Poll.StorageKey = DefaultStorageKey
	cfg.Poll.BasePath = ""
	cfg.Poll.Filename = DefaultFilename
	cfg.Poll.RequestTimeoutSeconds = 10
	cfg.Poll.MaxRequestsPerSecond = 2
	cfg.Poll.StartFocused = true

	// --- Store ---
	cfg.Store.Backend = "file"
	cfg.Store.Path = DefaultStorePath()
	cfg.Store.Redis.PoolSize = 4

	// --- Cache ---
	cfg.Cache.Backend = "none"
	cfg.Cache.Redis.PoolSize = 4

	// --- Reload ---
	cfg.Reload.Mode = "exec"

	// --- Connectivity ---
	cfg.Connectivity.Mode = "always"
	cfg.Connectivity.TimeoutSeconds = 3
}

// DefaultStorePath is the marker file under the user's cache directory,
// falling back to the system temp directory.
func DefaultStorePath() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "version-sentinel", "marker.json")
}
