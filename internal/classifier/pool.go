package classifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/capture"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/oracle"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/queue"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/store"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/taxonomy"
)

// PoolConfig sizes the long-path worker pool.
type PoolConfig struct {
	Workers    int
	BatchSize  int
	Visibility time.Duration
	// NackDelay is the backoff applied when a transient failure sends a
	// message back to the queue.
	NackDelay time.Duration
}

// Pool drains the classification queue. Each message references an
// enrichment artifact; the worker classifies its text and writes the
// record with an if-absent put, so at-least-once delivery converges on
// exactly one record per (tweet, version).
type Pool struct {
	cfg        PoolConfig
	queue      queue.Queue
	objects    store.ObjectStore
	records    store.ClassificationStore
	classifier *Classifier

	processed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a worker pool with defaults filled in.
func NewPool(cfg PoolConfig, q queue.Queue, objects store.ObjectStore, records store.ClassificationStore, c *Classifier) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 10
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 32
	}
	if cfg.Visibility <= 0 {
		cfg.Visibility = 5 * time.Minute
	}
	if cfg.NackDelay <= 0 {
		cfg.NackDelay = 30 * time.Second
	}
	return &Pool{cfg: cfg, queue: q, objects: objects, records: records, classifier: c}
}

// Processed returns how many messages this pool has ack'd.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Run consumes until ctx is cancelled. Cancellation is observed
// between messages; the in-flight message is nack'd so it reappears.
func (p *Pool) Run(ctx context.Context) {
	logger.Info("classifier: pool starting",
		"workers", p.cfg.Workers,
		"batch_size", p.cfg.BatchSize,
		"version", p.classifier.Version())

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id)
		}(i)
	}
	wg.Wait()

	logger.Info("classifier: pool stopped",
		"processed", p.processed.Load(),
		"failed", p.failed.Load())
}

func (p *Pool) worker(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := p.receiveBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("classifier: receive failed", "worker", id, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		if len(msgs) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for i, msg := range msgs {
			if ctx.Err() != nil {
				// Shutting down: release the rest of the batch.
				p.nackAll(msgs[i:])
				return
			}
			p.handle(ctx, msg)
		}
	}
}

// receiveBatch assembles up to BatchSize messages; the broker caps a
// single receive at 10, so larger batches come in chunks.
func (p *Pool) receiveBatch(ctx context.Context) ([]queue.Message, error) {
	var batch []queue.Message
	for len(batch) < p.cfg.BatchSize {
		chunk := p.cfg.BatchSize - len(batch)
		if chunk > 10 {
			chunk = 10
		}
		msgs, err := p.queue.Receive(ctx, chunk, p.cfg.Visibility)
		if err != nil {
			return batch, err
		}
		if len(msgs) == 0 {
			break
		}
		batch = append(batch, msgs...)
	}
	return batch, nil
}

// handle processes one message to a terminal outcome:
// success or duplicate → ack; transient → nack with backoff;
// permanent or malformed → left unack'd so redrive counts it toward
// the dead-letter threshold.
func (p *Pool) handle(ctx context.Context, msg queue.Message) {
	artifactKey, err := capture.ParseQueueMessage(msg.Body)
	if err != nil {
		logger.Warn("classifier: bad message left for redrive",
			"message_id", msg.ID, "receive_count", msg.ReceiveCount, "error", err)
		p.failed.Add(1)
		return
	}

	body, err := p.objects.Get(ctx, artifactKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("classifier: artifact missing, left for redrive", "key", artifactKey)
			p.failed.Add(1)
			return
		}
		p.nack(msg)
		return
	}

	artifact, err := capture.UnmarshalArtifact(body)
	if err != nil {
		logger.Warn("classifier: unreadable artifact left for redrive", "key", artifactKey, "error", err)
		p.failed.Add(1)
		return
	}

	rec, err := p.classifier.Classify(ctx, artifact.TweetID, artifact.ClassificationText())
	if err != nil {
		switch {
		case errors.Is(err, oracle.ErrTransient):
			logger.Warn("classifier: transient failure, nacking",
				"tweet_id", artifact.TweetID, "receive_count", msg.ReceiveCount)
			p.nack(msg)
		case errors.Is(err, oracle.ErrPermanent), errors.Is(err, taxonomy.ErrMalformedResponse):
			logger.Error("classifier: unrecoverable failure left for redrive",
				"tweet_id", artifact.TweetID, "receive_count", msg.ReceiveCount, "error", err)
			p.failed.Add(1)
		default:
			p.nack(msg)
		}
		return
	}

	if err := p.records.PutIfAbsent(ctx, rec); err != nil {
		if errors.Is(err, store.ErrConditionalFailed) {
			// Another worker already wrote this (tweet, version); the
			// message is done.
			p.ack(msg)
			return
		}
		p.nack(msg)
		return
	}

	logger.Debug("classifier: record written",
		"tweet_id", rec.TweetID, "l1", rec.L1, "confidence", rec.L1Confidence)
	p.ack(msg)
}

func (p *Pool) ack(msg queue.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.queue.Ack(ctx, msg); err != nil {
		logger.Warn("classifier: ack failed", "message_id", msg.ID, "error", err)
		return
	}
	p.processed.Add(1)
}

func (p *Pool) nack(msg queue.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.queue.Nack(ctx, msg, p.cfg.NackDelay); err != nil {
		logger.Warn("classifier: nack failed", "message_id", msg.ID, "error", err)
	}
}

func (p *Pool) nackAll(msgs []queue.Message) {
	for _, msg := range msgs {
		p.nack(msg)
	}
}
