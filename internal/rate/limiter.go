// Package rate enforces the login attempt budget. The Redis-backed limiter
// shares counters across processes; the local limiter is a per-process
// fallback for deployments without Redis.
package rate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	xrate "golang.org/x/time/rate"
)

var (
	// ErrLimited means the attempt budget for the key is exhausted.
	ErrLimited = errors.New("rate limited")
	// ErrUnavailable wraps backend failures; callers decide whether to fail
	// open or closed.
	ErrUnavailable = errors.New("rate limiter unavailable")
)

// Config holds the shared budget parameters.
type Config struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// RedisLimiter counts failed attempts per key in Redis with a cooldown TTL.
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
}

// NewRedisLimiter builds a limiter over the given client.
func NewRedisLimiter(client redis.UniversalClient, cfg Config) *RedisLimiter {
	return &RedisLimiter{redis: client, config: cfg}
}

func limiterKey(key string) string {
	return "ca:login:" + key
}

// Check returns ErrLimited when the key's failure count has reached the
// budget, ErrUnavailable on backend trouble, nil otherwise.
func (l *RedisLimiter) Check(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, limiterKey(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrLimited
	}
	return nil
}

// Fail records one failed attempt and refreshes the cooldown window.
func (l *RedisLimiter) Fail(ctx context.Context, key string) error {
	k := limiterKey(key)
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.config.Cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// Reset clears the key's counter after a successful login.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, limiterKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// LocalLimiter is an in-process token bucket per key: MaxAttempts of burst,
// refilled over the cooldown window. State is lost on restart, which is
// acceptable for its single-node role.
type LocalLimiter struct {
	config Config

	mu      sync.Mutex
	buckets map[string]*xrate.Limiter
}

// NewLocalLimiter builds the in-process fallback limiter.
func NewLocalLimiter(cfg Config) *LocalLimiter {
	return &LocalLimiter{
		config:  cfg,
		buckets: make(map[string]*xrate.Limiter),
	}
}

func (l *LocalLimiter) bucket(key string) *xrate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		refill := xrate.Every(l.config.Cooldown / time.Duration(l.config.MaxAttempts))
		b = xrate.NewLimiter(refill, l.config.MaxAttempts)
		l.buckets[key] = b
	}
	return b
}

// Check reports ErrLimited when the key's bucket is empty.
func (l *LocalLimiter) Check(_ context.Context, key string) error {
	if l.bucket(key).Tokens() < 1 {
		return ErrLimited
	}
	return nil
}

// Fail consumes one token from the key's bucket.
func (l *LocalLimiter) Fail(_ context.Context, key string) error {
	l.bucket(key).Allow()
	return nil
}

// Reset forgets the key's bucket.
func (l *LocalLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
	return nil
}
