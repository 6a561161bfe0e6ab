package digest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/fetcher"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/oracle"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/store"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/taxonomy"
)

const (
	defaultMaxPerCategory = 8
	// summaryTemperature gives the summarizer some latitude without
	// letting the tone drift run to run.
	summaryTemperature = 0.4
	fallbackTweetCount = 3
)

// Assembler builds a Digest from a run's tweets and their
// classification records.
type Assembler struct {
	oracle         oracle.Oracle
	maxPerCategory int
	temperature    float64
	now            func() time.Time
}

// NewAssembler creates an assembler. maxPerCategory ≤ 0 selects the
// default of 8.
func NewAssembler(o oracle.Oracle, maxPerCategory int) *Assembler {
	if maxPerCategory <= 0 {
		maxPerCategory = defaultMaxPerCategory
	}
	return &Assembler{
		oracle:         o,
		maxPerCategory: maxPerCategory,
		temperature:    summaryTemperature,
		now:            time.Now,
	}
}

// Build groups tweets by L1 label, summarizes each category, and
// returns the digest. Tweets without a record, and tweets classified
// Uncertain, are dropped. A category whose summarization fails ships
// with a placeholder summary; the run continues.
func (a *Assembler) Build(ctx context.Context, runID, classifierVersion string, tweets []*fetcher.Tweet, records map[string]*store.ClassificationRecord) (*Digest, error) {
	groups := groupByL1(tweets, records)
	if len(groups) == 0 {
		return nil, fmt.Errorf("digest: no classified tweets to assemble")
	}

	d := &Digest{
		GenerationMetadata: GenerationMetadata{
			GeneratedAt:       a.now().UTC().Format(time.RFC3339),
			RunID:             runID,
			ClassifierVersion: classifierVersion,
		},
	}

	for _, l1 := range taxonomy.PresentationOrder() {
		group, ok := groups[l1]
		if !ok {
			continue
		}
		sortByEngagement(group)
		if len(group) > a.maxPerCategory {
			group = group[:a.maxPerCategory]
		}

		cat := Category{L1: l1, Summary: a.summarize(ctx, l1, group)}
		for _, t := range group {
			cat.Tweets = append(cat.Tweets, DigestTweet{
				TweetID: t.ID,
				Author:  t.AuthorHandle,
				Text:    t.Text,
				URL:     t.URL(),
			})
		}
		d.Categories = append(d.Categories, cat)
	}

	logger.Info("digest: assembled",
		"run_id", runID,
		"categories", len(d.Categories),
		"tweets", d.TweetCount())
	return d, nil
}

// summarize produces the category narrative. On failure it falls back
// to the placeholder plus the top tweet texts so the section is still
// useful.
func (a *Assembler) summarize(ctx context.Context, l1 string, group []*fetcher.Tweet) string {
	texts := make([]string, len(group))
	for i, t := range group {
		texts[i] = t.Text
	}

	reply, err := a.oracle.Generate(ctx, taxonomy.BuildSummaryPrompt(l1, texts), oracle.Options{
		Temperature: a.temperature,
	})
	if err != nil {
		logger.Warn("digest: summarization failed, using placeholder", "l1", l1, "error", err)
		return fallbackSummary(texts)
	}
	summary := strings.TrimSpace(reply)
	if summary == "" {
		return fallbackSummary(texts)
	}
	return summary
}

func fallbackSummary(texts []string) string {
	if len(texts) > fallbackTweetCount {
		texts = texts[:fallbackTweetCount]
	}
	var b strings.Builder
	b.WriteString(PlaceholderSummary)
	for _, text := range texts {
		b.WriteString("\n- ")
		b.WriteString(text)
	}
	return b.String()
}

// groupByL1 buckets tweets by their L1 label, dropping Uncertain and
// unclassified tweets.
func groupByL1(tweets []*fetcher.Tweet, records map[string]*store.ClassificationRecord) map[string][]*fetcher.Tweet {
	groups := make(map[string][]*fetcher.Tweet)
	for _, t := range tweets {
		rec, ok := records[t.ID]
		if !ok || rec.L1 == taxonomy.LabelUncertain {
			continue
		}
		groups[rec.L1] = append(groups[rec.L1], t)
	}
	return groups
}

// sortByEngagement orders a group by engagement rank descending, then
// creation time descending, then ID so repeated builds over the same
// input produce identical output.
func sortByEngagement(group []*fetcher.Tweet) {
	sort.SliceStable(group, func(i, j int) bool {
		ri, rj := group[i].Engagement.Rank(), group[j].Engagement.Rank()
		if ri != rj {
			return ri > rj
		}
		if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
			return group[i].CreatedAt.After(group[j].CreatedAt)
		}
		return group[i].ID < group[j].ID
	})
}

// Save persists the digest JSON and rendered HTML under the run's
// object-store prefix and returns the JSON key.
func Save(ctx context.Context, objects store.ObjectStore, runID string, d *Digest, html string) (string, error) {
	body, err := d.Marshal()
	if err != nil {
		return "", err
	}
	key := store.DigestKey(runID)
	if err := objects.Put(ctx, key, body, "application/json"); err != nil {
		return "", fmt.Errorf("digest: persist json: %w", err)
	}
	if err := objects.Put(ctx, store.DigestHTMLKey(runID), []byte(html), "text/html; charset=utf-8"); err != nil {
		return "", fmt.Errorf("digest: persist html: %w", err)
	}
	return key, nil
}
