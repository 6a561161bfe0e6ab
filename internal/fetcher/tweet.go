// Package fetcher pulls recent tweets for the curated account list:
// batch handle resolution, per-account timelines, thread
// reconstruction, and retweet expansion.
package fetcher

import (
	"fmt"
	"strings"
	"time"
)

// Kind tags how a tweet entered the timeline.
type Kind string

const (
	KindOriginal Kind = "original"
	KindRetweet  Kind = "retweet"
	KindReply    Kind = "reply"
	KindThread   Kind = "thread"
)

// Engagement holds the public counters used for ranking.
type Engagement struct {
	Likes    int `json:"likes"`
	Retweets int `json:"retweets"`
	Replies  int `json:"replies"`
	Quotes   int `json:"quotes"`
}

// Rank is the single engagement formula used everywhere: retweets
// weigh double.
func (e Engagement) Rank() int {
	return e.Likes + 2*e.Retweets + e.Replies + e.Quotes
}

// Tweet is the immutable unit the rest of the pipeline consumes. A
// reconstructed thread contributes one Tweet carrying the first part's
// ID.
type Tweet struct {
	ID              string     `json:"id"`
	AuthorID        string     `json:"author_id"`
	AuthorHandle    string     `json:"author_handle"`
	AuthorName      string     `json:"author_name"`
	Text            string     `json:"text"`
	CreatedAt       time.Time  `json:"created_at"`
	ConversationID  string     `json:"conversation_id"`
	Kind            Kind       `json:"kind"`
	Engagement      Engagement `json:"engagement"`
	IsThread        bool       `json:"is_thread"`
	ThreadPartCount int        `json:"thread_part_count"`
	// ReferencedID is set for retweets, pointing at the original.
	ReferencedID string `json:"referenced_id,omitempty"`
}

// URL returns the tweet's public page.
func (t *Tweet) URL() string {
	return fmt.Sprintf("https://twitter.com/%s/status/%s", t.AuthorHandle, t.ID)
}

// FormatThread renders ordered thread part texts as a single body:
// each part tagged "[i/N]", parts separated by blank lines.
func FormatThread(parts []string) string {
	n := len(parts)
	tagged := make([]string, n)
	for i, text := range parts {
		tagged[i] = fmt.Sprintf("[%d/%d] %s", i+1, n, text)
	}
	return strings.Join(tagged, "\n\n")
}
