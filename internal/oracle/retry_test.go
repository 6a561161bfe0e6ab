package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(r *Retrying) *Retrying {
	r.sleep = func(time.Duration) {}
	return r
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	scripted := NewScripted().
		Fail(Transient(errors.New("throttled"))).
		Fail(Transient(errors.New("throttled again"))).
		Reply(`{"level1": "Industry News", "confidence": 0.9}`)

	r := noSleep(WithRetry(scripted))
	reply, err := r.Generate(context.Background(), "classify this", Options{})

	require.NoError(t, err)
	assert.Contains(t, reply, "Industry News")
	assert.Len(t, scripted.Calls, 3)
}

func TestRetryExhaustsAfterThreeAttempts(t *testing.T) {
	scripted := NewScripted().
		Fail(Transient(errors.New("throttled"))).
		Fail(Transient(errors.New("throttled"))).
		Fail(Transient(errors.New("throttled")))

	r := noSleep(WithRetry(scripted))
	_, err := r.Generate(context.Background(), "classify this", Options{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Len(t, scripted.Calls, 3)
}

func TestRetryFailsFastOnPermanentError(t *testing.T) {
	scripted := NewScripted().
		Fail(Permanent(errors.New("access denied")))

	r := noSleep(WithRetry(scripted))
	_, err := r.Generate(context.Background(), "classify this", Options{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Len(t, scripted.Calls, 1, "permanent failures must not be retried")
}

func TestRetryStopsOnCanceledContext(t *testing.T) {
	scripted := NewScripted().
		Fail(Transient(errors.New("throttled"))).
		Reply("never reached")

	ctx, cancel := context.WithCancel(context.Background())
	r := WithRetry(scripted)
	r.sleep = func(time.Duration) {
		// Simulate cancellation arriving mid-backoff.
		cancel()
		time.Sleep(50 * time.Millisecond)
	}

	_, err := r.Generate(ctx, "classify this", Options{})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, scripted.Calls, 1)
}

func TestRetryVisionPassesThrough(t *testing.T) {
	scripted := NewScripted().Reply("a screenshot of a chart")

	r := noSleep(WithRetry(scripted))
	reply, err := r.GenerateVision(context.Background(), "describe", []byte{0x89, 0x50}, Options{})

	require.NoError(t, err)
	assert.Equal(t, "a screenshot of a chart", reply)
}
