package redisinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facevote-api/internal/config"
	"github.com/facevote-api/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Cache is the expiring key-value store shared by the OTP, signed-reference
// and vote-token lifecycles. Every operation is a single Redis round-trip.
type Cache struct {
	client *redis.Client
	prefix string
}

// NewClient creates a Redis client from cfg and pings it.
func NewClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewCache wraps client. prefix namespaces every key (e.g. "vote:").
func NewCache(client *redis.Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// Set stores value under key for ttl, replacing any previous value.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cache set %q: ttl must be positive", key)
	}
	_, err := retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.client.Set(ctx, c.prefix+key, value, ttl).Err()
	})
	return err
}

// Get returns the live value for key or an error wrapping domain.ErrNotFound.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	return retry(ctx, func() ([]byte, error) {
		return c.client.Get(ctx, c.prefix+key).Bytes()
	})
}

// Delete removes key and reports whether it existed.
func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	n, err := retry(ctx, func() (int64, error) {
		return c.client.Del(ctx, c.prefix+key).Result()
	})
	return n > 0, err
}

// deleteIfEqual returns -1 when the key is absent, 0 on mismatch, 1 when deleted.
var deleteIfEqual = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return -1 end
if v == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)

// DeleteIfEqual atomically deletes key when it holds expected. It returns an
// error wrapping domain.ErrNotFound when key is absent and (false, nil) when
// the stored value differs, leaving it in place.
func (c *Cache) DeleteIfEqual(ctx context.Context, key string, expected []byte) (bool, error) {
	n, err := retry(ctx, func() (int64, error) {
		return deleteIfEqual.Run(ctx, c.client, []string{c.prefix + key}, expected).Int64()
	})
	if err != nil {
		return false, err
	}
	switch n {
	case -1:
		return false, fmt.Errorf("cache key %q: %w", key, domain.ErrNotFound)
	case 1:
		return true, nil
	}
	return false, nil
}

var incrWithTTL = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then redis.call('PEXPIRE', KEYS[1], ARGV[1]) end
return n
`)

// Incr increments the counter at key and starts its ttl on first use, in one
// round-trip.
func (c *Cache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return retry(ctx, func() (int64, error) {
		return incrWithTTL.Run(ctx, c.client, []string{c.prefix + key}, ttl.Milliseconds()).Int64()
	})
}

// TTL returns the remaining lifetime of key or an error wrapping
// domain.ErrNotFound when it is absent.
func (c *Cache) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := retry(ctx, func() (time.Duration, error) {
		return c.client.PTTL(ctx, c.prefix+key).Result()
	})
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("cache key %q: %w", key, domain.ErrNotFound)
	}
	return d, nil
}

// retry executes a Redis operation with exponential backoff on transport
// errors. redis.Nil is a definitive answer and is mapped to domain.ErrNotFound.
func retry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	const maxRetries = 3
	const initialBackoff = 50 * time.Millisecond

	var zero T
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := initialBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}
		result, err := op()
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("cache miss: %w", domain.ErrNotFound)
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err
	}
	return zero, fmt.Errorf("redis operation failed after %d attempts: %w", maxRetries, lastErr)
}
