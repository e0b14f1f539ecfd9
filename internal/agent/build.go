package agent

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/version-sentinel/version-sentinel/internal/config"
	"github.com/version-sentinel/version-sentinel/internal/netcheck"
	"github.com/version-sentinel/version-sentinel/internal/purge"
	"github.com/version-sentinel/version-sentinel/internal/store"
)

const redisConnectTimeout = 10 * time.Second

// openBackend opens the marker store selected by cfg.
func openBackend(cfg config.StoreConfig, log *logrus.Entry) (store.Backend, error) {
	switch cfg.Backend {
	case "memory":
		log.Info("using in-memory version store")
		return store.NewMemoryStore(), nil
	case "file":
		log.WithField("path", cfg.Path).Info("using file version store")
		return store.NewFileStore(cfg.Path)
	case "badger":
		log.WithField("path", cfg.Path).Info("using badger version store")
		return store.OpenBadgerStore(cfg.Path)
	case "redis":
		log.Info("using Redis version store")
		return store.NewRedisStore(cfg.Redis.URL, store.RedisOptions{
			PoolSize:       cfg.Redis.PoolSize,
			MinIdleConns:   cfg.Redis.MinIdleConns,
			ConnectTimeout: redisConnectTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// openCaches returns the cache storage selected by cfg, or nil when caches
// are not managed. The closer is never nil.
func openCaches(cfg config.CacheConfig, log *logrus.Entry) (purge.CacheStorage, io.Closer, error) {
	switch cfg.Backend {
	case "none", "":
		log.Info("cache storage unavailable, purges only record the version and reload")
		return nil, nopCloser{}, nil
	case "dir":
		log.WithField("dir", cfg.Dir).Info("using directory cache storage")
		return purge.NewDirCacheStorage(cfg.Dir), nopCloser{}, nil
	case "redis":
		log.WithField("prefix", cfg.RedisPrefix).Info("using Redis cache storage")
		rc, err := purge.NewRedisCacheStorageFromURL(cfg.Redis.URL, cfg.RedisPrefix, cfg.Redis.PoolSize)
		if err != nil {
			return nil, nil, err
		}
		return rc, rc, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// newConnectivity returns the checker consulted when focus returns.
func newConnectivity(cfg *config.Config, log *logrus.Entry) (netcheck.Checker, error) {
	if cfg.Connectivity.Mode != "dial" {
		return netcheck.Always{}, nil
	}
	addr := cfg.Connectivity.Address
	if addr == "" {
		derived, err := netcheck.AddressFromURL(cfg.Poll.Origin)
		if err != nil {
			return nil, fmt.Errorf("deriving connectivity address: %w", err)
		}
		addr = derived
	}
	log.WithField("address", addr).Info("probing connectivity on focus")
	return netcheck.NewDialChecker(addr, cfg.Connectivity.Timeout(), log), nil
}

// newNavigator returns the reload strategy selected by cfg. onReplaced runs
// after a reload that leaves this process running.
func newNavigator(cfg config.ReloadConfig, beforeExec, onReplaced func(), log *logrus.Entry) (purge.Navigator, error) {
	switch cfg.Mode {
	case "exec":
		return purge.NewExecNavigator(beforeExec, log)
	case "command":
		return purge.NewCommandNavigator(cfg.Command, onReplaced, log), nil
	case "none":
		return purge.NewLogNavigator(onReplaced, log), nil
	default:
		return nil, fmt.Errorf("unknown reload mode %q", cfg.Mode)
	}
}
