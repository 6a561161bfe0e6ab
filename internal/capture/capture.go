package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/fetcher"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/oracle"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/queue"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/store"
)

const (
	captureAttempts = 3
	ocrPrompt       = "Transcribe all text visible in this screenshot of a social media post. " +
		"Output only the transcribed text, preserving line breaks. Do not describe the image or add commentary."
)

// Capturer runs the visual enrichment stage: screenshot, OCR
// transcript, artifact persistence, queue hand-off.
type Capturer struct {
	browser Browser
	pool    *Pool
	oracle  oracle.VisionOracle
	objects store.ObjectStore
	queue   queue.Queue
	now     func() time.Time
	sleep   func(time.Duration)
}

// New creates a capturer. poolSize bounds concurrently open browsers.
func New(browser Browser, poolSize int, o oracle.VisionOracle, objects store.ObjectStore, q queue.Queue) *Capturer {
	return &Capturer{
		browser: browser,
		pool:    NewPool(poolSize),
		oracle:  o,
		objects: objects,
		queue:   q,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// Result summarizes the stage for the run manifest.
type Result struct {
	// Enqueued lists tweet IDs whose artifacts reached the queue.
	Enqueued []string
	// Failed maps tweet ID to the capture failure that kept it out.
	Failed map[string]string
}

// Run captures every tweet. Failures are per-tweet; the stage never
// aborts on one tweet.
func (c *Capturer) Run(ctx context.Context, runID string, tweets []*fetcher.Tweet) *Result {
	result := &Result{Failed: make(map[string]string)}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, tweet := range tweets {
		wg.Add(1)
		go func(t *fetcher.Tweet) {
			defer wg.Done()
			err := c.pool.With(ctx, func() error {
				return c.captureOne(ctx, runID, t)
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("capture: tweet failed", "tweet_id", t.ID, "error", err)
				result.Failed[t.ID] = err.Error()
				return
			}
			result.Enqueued = append(result.Enqueued, t.ID)
		}(tweet)
	}
	wg.Wait()

	logger.Info("capture: stage complete",
		"run_id", runID,
		"enqueued", len(result.Enqueued),
		"failed", len(result.Failed))
	return result
}

func (c *Capturer) captureOne(ctx context.Context, runID string, t *fetcher.Tweet) error {
	png, err := c.screenshotWithRetry(ctx, t.URL())
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}

	png, err = normalizePNG(png)
	if err != nil {
		return err
	}

	transcript, err := c.oracle.GenerateVision(ctx, ocrPrompt, png, oracle.Options{Temperature: 0})
	if err != nil {
		return fmt.Errorf("ocr: %w", err)
	}

	screenshotKey := store.ScreenshotKey(runID, t.ID)
	if err := c.objects.Put(ctx, screenshotKey, png, "image/png"); err != nil {
		return err
	}

	artifact := NewArtifact(t, c.now().UTC())
	artifact.ScreenshotKey = screenshotKey
	artifact.FullTextOCR = transcript

	body, err := artifact.Marshal()
	if err != nil {
		return err
	}
	artifactKey := store.ArtifactKey(runID, t.ID)
	if err := c.objects.Put(ctx, artifactKey, body, "application/json"); err != nil {
		return err
	}

	// Dedup on the artifact key so a retried stage cannot double-enqueue.
	return c.queue.Send(ctx, MarshalQueueMessage(artifactKey), artifactKey)
}

// screenshotWithRetry tries up to three times with exponential backoff;
// after two consecutive failures the last attempt drops to the minimal
// configuration (JS and images off).
func (c *Capturer) screenshotWithRetry(ctx context.Context, pageURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < captureAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			c.sleep(time.Duration(1<<uint(attempt-1)) * time.Second)
		}

		minimal := attempt >= 2
		png, err := c.browser.Capture(ctx, pageURL, minimal)
		if err == nil {
			return png, nil
		}
		lastErr = err
		logger.Debug("capture: attempt failed",
			"url", pageURL, "attempt", attempt+1, "minimal", minimal, "error", err)
	}
	return nil, lastErr
}
