// Package digest groups classified tweets into the newsletter's
// category structure, summarizes each category, and renders the HTML
// and plain-text bodies sent to subscribers.
package digest

import (
	"encoding/json"
	"fmt"
	"time"
)

// PlaceholderSummary stands in for a category whose summarization
// failed after retries. The category is still shipped.
const PlaceholderSummary = "(summary unavailable)"

// GenerationMetadata stamps a digest with its provenance.
type GenerationMetadata struct {
	GeneratedAt       string `json:"generated_at"`
	RunID             string `json:"run_id"`
	ClassifierVersion string `json:"classifier_version"`
}

// DigestTweet is one representative tweet inside a category.
type DigestTweet struct {
	TweetID string `json:"tweet_id"`
	Author  string `json:"author"`
	Text    string `json:"text"`
	URL     string `json:"url"`
}

// Category is one themed section of the newsletter.
type Category struct {
	L1      string        `json:"l1"`
	Summary string        `json:"summary"`
	Tweets  []DigestTweet `json:"tweets"`
}

// Digest is the assembled weekly newsletter. Categories appear in the
// taxonomy's fixed presentation order; empty categories are omitted.
type Digest struct {
	GenerationMetadata GenerationMetadata `json:"generation_metadata"`
	Categories         []Category         `json:"categories"`
}

// Marshal renders the digest's persisted JSON form.
func (d *Digest) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// UnmarshalDigest parses a persisted digest.
func UnmarshalDigest(data []byte) (*Digest, error) {
	var d Digest
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("digest: unmarshal: %w", err)
	}
	if d.GenerationMetadata.RunID == "" {
		return nil, fmt.Errorf("digest: missing run_id")
	}
	return &d, nil
}

// TweetCount returns the total number of tweets across categories.
func (d *Digest) TweetCount() int {
	n := 0
	for _, c := range d.Categories {
		n += len(c.Tweets)
	}
	return n
}

// WeekWindow returns the seven-day window ending at the generation
// timestamp, used for the newsletter header.
func (d *Digest) WeekWindow() (time.Time, time.Time) {
	end, err := time.Parse(time.RFC3339, d.GenerationMetadata.GeneratedAt)
	if err != nil {
		end = time.Now().UTC()
	}
	return end.AddDate(0, 0, -7), end
}
