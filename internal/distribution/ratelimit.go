// Package distribution sends the rendered digest to every active
// subscriber: it drains bounce/complaint notifications first, rate
// limits outbound sends through Redis, and records per-recipient
// outcomes for the run manifest.
package distribution

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
)

// Limiter gates outbound sends. Acquire blocks until a send slot is
// available or the context is cancelled.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// NopLimiter never blocks, for tests and single-digit subscriber
// counts.
type NopLimiter struct{}

// Acquire implements Limiter.
func (NopLimiter) Acquire(context.Context) error { return nil }

// Atomic check-and-increment for the current one-second window. The
// GET → check → INCR sequence must run as one script or concurrent
// senders overshoot the cap.
const secondWindowScript = `
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current + 1 > tonumber(ARGV[1]) then
    return 0
end
local v = redis.call("INCR", KEYS[1])
if v == 1 then
    redis.call("EXPIRE", KEYS[1], 2)
end
return 1
`

// RedisLimiter is a per-second send cap shared across concurrent
// distribution processes via Redis.
type RedisLimiter struct {
	client    *redis.Client
	script    *redis.Script
	perSecond int
	now       func() time.Time
	sleep     func(time.Duration)
}

// NewRedisLimiter creates a limiter over an existing Redis client.
func NewRedisLimiter(client *redis.Client, perSecond int) *RedisLimiter {
	if perSecond < 1 {
		perSecond = 10
	}
	return &RedisLimiter{
		client:    client,
		script:    redis.NewScript(secondWindowScript),
		perSecond: perSecond,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// NewRedisLimiterFromAddr connects to Redis and verifies the
// connection before returning a limiter.
func NewRedisLimiterFromAddr(ctx context.Context, addr, password string, db, perSecond int) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("distribution: redis connect: %w", err)
	}
	return NewRedisLimiter(client, perSecond), nil
}

// Client exposes the underlying connection so callers can share it
// with other Redis-backed pieces.
func (l *RedisLimiter) Client() *redis.Client { return l.client }

// Acquire implements Limiter. On a Redis failure the send is allowed:
// a missed cap beats a stalled distribution.
func (l *RedisLimiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := fmt.Sprintf("ratelimit:digest:sec:%d", l.now().Unix())
		allowed, err := l.script.Run(ctx, l.client, []string{key}, l.perSecond).Int()
		if err != nil {
			logger.Warn("distribution: rate limit check failed, allowing send", "error", err)
			return nil
		}
		if allowed == 1 {
			return nil
		}
		l.sleep(100 * time.Millisecond)
	}
}
