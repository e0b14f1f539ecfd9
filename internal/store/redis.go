package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "vs:marker:"

// RedisOptions tunes the Redis connection pool.
type RedisOptions struct {
	PoolSize     int
	MinIdleConns int
	// ConnectTimeout bounds the initial connectivity check, including retries.
	ConnectTimeout time.Duration
}

// RedisStore implements the Backend interface using Redis.
type RedisStore struct {
	client *redis.Client
}

var _ Backend = (*RedisStore)(nil)

// NewRedisStore creates a new RedisStore connected to the given Redis URL.
// The URL is parsed with redis.ParseURL so it supports redis:// and rediss://
// schemes. The initial PING is retried with exponential backoff until
// opts.ConnectTimeout elapses.
func NewRedisStore(url string, opts RedisOptions) (*RedisStore, error) {
	ro, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	if opts.PoolSize > 0 {
		ro.PoolSize = opts.PoolSize
	}
	if opts.MinIdleConns > 0 {
		ro.MinIdleConns = opts.MinIdleConns
	}

	client := redis.NewClient(ro)

	if err := pingWithRetry(client, opts.ConnectTimeout); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an already configured client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func pingWithRetry(client *redis.Client, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = timeout

	return backoff.Retry(func() error {
		return client.Ping(ctx).Err()
	}, backoff.WithContext(b, ctx))
}

// Get returns the raw value for key.
func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis GET %s: %w", key, err)
	}
	return val, nil
}

// Set stores value under key without expiry.
func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis DEL %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis client connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
