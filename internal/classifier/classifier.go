// Package classifier implements the two-call hierarchical
// classification protocol and the queue-backed worker pool that runs
// it in the long path.
package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/oracle"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/store"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/taxonomy"
)

// Classifier runs the two-call protocol against the oracle. It is
// stateless and safe for concurrent use.
type Classifier struct {
	oracle  oracle.Oracle
	version string
	now     func() time.Time
}

// New creates a classifier stamping records with the given version.
func New(o oracle.Oracle, version string) *Classifier {
	if version == "" {
		version = taxonomy.Version
	}
	return &Classifier{oracle: o, version: version, now: time.Now}
}

// Version returns the classifier version stamped on records.
func (c *Classifier) Version() string { return c.version }

// Classify produces the classification record for one tweet text.
// Call-1 picks the L1 theme; below the confidence floor the record is
// Uncertain and Call-2 is skipped. Call-2 selects zero or more
// sub-themes of the chosen L1.
func (c *Classifier) Classify(ctx context.Context, tweetID, text string) (*store.ClassificationRecord, error) {
	rec := &store.ClassificationRecord{
		TweetID:           tweetID,
		ClassifierVersion: c.version,
		L2:                []string{},
		ProcessedAt:       c.now().UTC().Format(time.RFC3339),
		ExpiresAt:         c.now().Add(store.ClassificationTTL).Unix(),
	}

	reply, err := c.oracle.Generate(ctx, taxonomy.BuildL1Prompt(text), oracle.Options{Temperature: 0})
	if err != nil {
		return nil, fmt.Errorf("level-1 call: %w", err)
	}
	l1, l1Conf, err := taxonomy.ParseL1(reply)
	if err != nil {
		return nil, fmt.Errorf("level-1 reply: %w", err)
	}
	rec.L1Confidence = l1Conf

	if l1 == taxonomy.LabelUncertain || l1Conf < taxonomy.ConfidenceFloor {
		rec.L1 = taxonomy.LabelUncertain
		return rec, nil
	}
	rec.L1 = l1

	reply, err = c.oracle.Generate(ctx, taxonomy.BuildL2Prompt(text, l1), oracle.Options{Temperature: 0})
	if err != nil {
		return nil, fmt.Errorf("level-2 call: %w", err)
	}
	l2, l2Conf, err := taxonomy.ParseL2(reply, l1)
	if err != nil {
		return nil, fmt.Errorf("level-2 reply: %w", err)
	}
	rec.L2 = l2
	rec.L2Confidence = l2Conf
	return rec, nil
}
