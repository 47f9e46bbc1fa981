package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "noticeboard:"

// RedisConfig captures connection parameters for the Redis-backed store.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
}

// RedisStore implements Store on a shared Redis instance. Expiry is delegated
// to Redis itself, so Cleanup is a no-op and Stats never reports expired
// entries; the interface contract (expired == absent) still holds because
// Redis drops expired keys before a reader can see them.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects eagerly so misconfiguration surfaces at start-up.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("cache: redis address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Get returns the payload for key or found=false when absent or expired.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		// Read failures degrade to a miss, matching the file store.
		return nil, false, nil
	}
	return raw, true, nil
}

// Set stores value with the supplied TTL. Redis SET is atomic.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("cache: ttl must be positive")
	}
	return s.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err()
}

// Delete removes the named entries, reporting how many existed.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = redisKeyPrefix + key
	}
	removed, err := s.client.Del(ctx, prefixed...).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: redis del: %w", err)
	}
	return int(removed), nil
}

// Has reports whether key resolves to a live entry.
func (s *RedisStore) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return false, nil
	}
	return n > 0, nil
}

// Keys lists the logical names of all live entries.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	keys := []string{}
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), redisKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache: redis scan: %w", err)
	}
	return keys, nil
}

// Clear removes every entry in the store's namespace.
func (s *RedisStore) Clear(ctx context.Context) (int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return s.Delete(ctx, keys...)
}

// Cleanup is a no-op: Redis evicts expired keys itself.
func (s *RedisStore) Cleanup(ctx context.Context) (int, error) {
	return 0, ctx.Err()
}

// Stats scans the namespace. Redis never exposes expired entries, so the
// expired count is always zero.
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{}
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		stats.TotalEntries++
		stats.ValidEntries++
		if size, err := s.client.StrLen(ctx, iter.Val()).Result(); err == nil {
			stats.TotalSizeBytes += size
		}
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("cache: redis scan: %w", err)
	}
	return stats, nil
}
