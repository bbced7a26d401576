package auth

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// LoginLimiter counts failed logins per key and refuses further attempts
// once the limit is reached within the window.
type LoginLimiter interface {
	// Allow reports whether another attempt may be made for key. When it
	// may not, the returned duration is how long until the window resets.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

type RedisLimiter struct {
	rdb           *redis.Client
	caseSensitive bool
	maxAttempts   int
	window        time.Duration
}

// NewRedisLimiter counts failures per username. caseSensitive must follow the
// username rule of the user store so distinct accounts never share a counter.
func NewRedisLimiter(rdb *redis.Client, caseSensitive bool, maxAttempts int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, caseSensitive: caseSensitive, maxAttempts: maxAttempts, window: window}
}

func (l *RedisLimiter) key(username string) string {
	if !l.caseSensitive {
		username = strings.ToLower(username)
	}
	return "login:fail:" + username
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l.maxAttempts <= 0 {
		return true, 0, nil
	}
	k := l.key(key)
	count, err := l.rdb.Get(ctx, k).Int()
	if err == redis.Nil {
		return true, 0, nil
	}
	if err != nil {
		return false, 0, oops.Code("LIMITER_READ_FAILED").With("key", k).Wrap(err)
	}
	if count < l.maxAttempts {
		return true, 0, nil
	}
	ttl, err := l.rdb.TTL(ctx, k).Result()
	if err != nil {
		return false, 0, oops.Code("LIMITER_READ_FAILED").With("key", k).Wrap(err)
	}
	if ttl < 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

// Fail records one failed attempt. The window starts at the first failure;
// the increment and the expiry are applied in one MULTI so a counter never
// outlives its window.
func (l *RedisLimiter) Fail(ctx context.Context, key string) error {
	k := l.key(key)
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return oops.Code("LIMITER_WRITE_FAILED").With("key", k).Wrap(err)
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, l.key(key)).Err(); err != nil {
		return oops.Code("LIMITER_WRITE_FAILED").Wrap(err)
	}
	return nil
}

// NoopLimiter never throttles. Used when no Redis is configured.
type NoopLimiter struct{}

func (NoopLimiter) Allow(context.Context, string) (bool, time.Duration, error) { return true, 0, nil }
func (NoopLimiter) Fail(context.Context, string) error                        { return nil }
func (NoopLimiter) Reset(context.Context, string) error                       { return nil }
