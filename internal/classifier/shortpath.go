package classifier

import (
	"context"
	"errors"
	"sync"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/fetcher"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/store"
)

// ClassifyAll runs the two-call protocol synchronously over a tweet
// set with bounded fan-out, used by the short path where no queue is
// involved. Records land in the store exactly as in the long path; a
// per-tweet failure is recorded and the batch continues.
func ClassifyAll(ctx context.Context, c *Classifier, records store.ClassificationStore, tweets []*fetcher.Tweet, concurrency int) (map[string]*store.ClassificationRecord, map[string]string) {
	if concurrency < 1 {
		concurrency = 4
	}

	out := make(map[string]*store.ClassificationRecord, len(tweets))
	failures := make(map[string]string)
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for _, tweet := range tweets {
		wg.Add(1)
		go func(t *fetcher.Tweet) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}

			rec, err := c.Classify(ctx, t.ID, t.Text)
			if err != nil {
				mu.Lock()
				failures[t.ID] = err.Error()
				mu.Unlock()
				logger.Warn("classifier: tweet failed", "tweet_id", t.ID, "error", err)
				return
			}

			if err := records.PutIfAbsent(ctx, rec); err != nil && !errors.Is(err, store.ErrConditionalFailed) {
				mu.Lock()
				failures[t.ID] = err.Error()
				mu.Unlock()
				return
			}

			mu.Lock()
			out[t.ID] = rec
			mu.Unlock()
		}(tweet)
	}
	wg.Wait()

	logger.Info("classifier: synchronous batch complete",
		"classified", len(out), "failed", len(failures))
	return out, failures
}
