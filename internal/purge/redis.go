package purge

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisCacheStorage treats every key under Prefix+":" as a named cache, the
// name being the remainder of the key.
type RedisCacheStorage struct {
	client *redis.Client
	prefix string
}

var _ CacheStorage = (*RedisCacheStorage)(nil)

// NewRedisCacheStorage returns a CacheStorage for keys "<prefix>:<name>".
func NewRedisCacheStorage(client *redis.Client, prefix string) *RedisCacheStorage {
	return &RedisCacheStorage{client: client, prefix: strings.TrimSuffix(prefix, ":") + ":"}
}

// NewRedisCacheStorageFromURL connects to url and returns a CacheStorage.
func NewRedisCacheStorageFromURL(url, prefix string, poolSize int) (*RedisCacheStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	return NewRedisCacheStorage(redis.NewClient(opts), prefix), nil
}

// Keys scans for every cache key under the prefix.
func (r *RedisCacheStorage) Keys(ctx context.Context) ([]string, error) {
	var names []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis SCAN %s*: %w", r.prefix, err)
	}
	return names, nil
}

// Delete removes the named cache key.
func (r *RedisCacheStorage) Delete(ctx context.Context, name string) (bool, error) {
	n, err := r.client.Del(ctx, r.prefix+name).Result()
	if err != nil {
		return false, fmt.Errorf("redis DEL %s%s: %w", r.prefix, name, err)
	}
	return n > 0, nil
}

// Close closes the Redis client.
func (r *RedisCacheStorage) Close() error {
	return r.client.Close()
}
