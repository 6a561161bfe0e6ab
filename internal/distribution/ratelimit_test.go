package distribution

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limiterOver(t *testing.T, perSecond int) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLimiter(client, perSecond), mr
}

func TestLimiterAllowsUpToCapPerSecond(t *testing.T) {
	l, _ := limiterOver(t, 2)

	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	slept := 0
	l.sleep = func(time.Duration) {
		slept++
		// A sleep carries us into the next one-second window.
		now = now.Add(time.Second)
	}

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx), "third acquire waits for the window to roll")
	assert.Equal(t, 1, slept)
}

func TestLimiterSeparateWindowsDoNotInterfere(t *testing.T) {
	l, _ := limiterOver(t, 1)

	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	l.sleep = func(time.Duration) {}

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	now = now.Add(time.Second)
	require.NoError(t, l.Acquire(ctx))
}

func TestLimiterAllowsOnRedisFailure(t *testing.T) {
	l, mr := limiterOver(t, 1)
	mr.Close()
	assert.NoError(t, l.Acquire(context.Background()))
}

func TestLimiterHonorsCancellation(t *testing.T) {
	l, _ := limiterOver(t, 1)

	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Acquire(ctx))
	// The window is exhausted; cancel during the wait.
	l.sleep = func(time.Duration) { cancel() }
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}
