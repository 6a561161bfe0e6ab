package oracle

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
)

const (
	defaultMaxAttempts = 3
	baseBackoff        = time.Second
	maxJitter          = 500 * time.Millisecond
)

// Retrying wraps an Oracle with bounded retries on transient failures.
// Permanent failures and malformed-input errors pass through
// immediately.
type Retrying struct {
	inner       VisionOracle
	maxAttempts int
	sleep       func(time.Duration)
}

// WithRetry wraps the oracle with the standard retry policy:
// up to 3 attempts, exponential backoff with jitter.
func WithRetry(inner VisionOracle) *Retrying {
	return &Retrying{inner: inner, maxAttempts: defaultMaxAttempts, sleep: time.Sleep}
}

// WithSleep overrides the backoff sleeper; tests use it to avoid real
// delays.
func (r *Retrying) WithSleep(fn func(time.Duration)) *Retrying {
	r.sleep = fn
	return r
}

// Generate implements Oracle.
func (r *Retrying) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	return r.do(ctx, func() (string, error) {
		return r.inner.Generate(ctx, prompt, opts)
	})
}

// GenerateVision implements VisionOracle.
func (r *Retrying) GenerateVision(ctx context.Context, prompt string, imagePNG []byte, opts Options) (string, error) {
	return r.do(ctx, func() (string, error) {
		return r.inner.GenerateVision(ctx, prompt, imagePNG, opts)
	})
}

func (r *Retrying) do(ctx context.Context, call func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseBackoff*time.Duration(1<<uint(attempt-1)) + time.Duration(rand.Int63n(int64(maxJitter)))
			logger.Warn("oracle: transient failure, backing off",
				"attempt", attempt+1,
				"delay_ms", delay.Milliseconds())
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-after(r.sleep, delay):
			}
		}

		reply, err := call()
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !errors.Is(err, ErrTransient) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// after adapts the injectable sleep function to a channel so backoff
// can race against context cancellation in tests and production alike.
func after(sleep func(time.Duration), d time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		sleep(d)
		close(ch)
	}()
	return ch
}
