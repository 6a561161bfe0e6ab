// Package distlock guards the digest run against concurrent triggers.
// A scheduled run and a manual one landing in the same window would
// double-send the digest; the lock makes the second trigger a no-op.
package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a Redis SET NX lock with a random ownership value. Release
// and Extend run as Lua scripts so a lock held by another process is
// never touched. The TTL frees the lock if the holder crashes.
type Lock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

// New creates a lock under the given name. The TTL should exceed the
// longest expected hold so the lock outlives the work it guards.
func New(client *redis.Client, name string, ttl time.Duration) *Lock {
	b := make([]byte, 16)
	rand.Read(b)
	return &Lock{
		client: client,
		key:    fmt.Sprintf("lock:%s", name),
		value:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

// Acquire tries to take the lock. False means another holder has it.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("distlock: acquire %s: %w", l.key, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`)

// Release drops the lock if this instance still owns it.
func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// Extend pushes the TTL out for runs that overshoot the initial hold.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	return extendScript.Run(ctx, l.client, []string{l.key}, l.value, ttl.Milliseconds()).Err()
}
