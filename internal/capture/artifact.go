// Package capture renders each tweet's public page in a headless
// browser, extracts a transcript from the screenshot, and persists the
// enrichment artifact the classifier consumes.
package capture

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/fetcher"
)

// ToolVersion is stamped into every artifact's capture metadata.
const ToolVersion = "capture/1.0 chromedp"

// Author is the artifact's embedded author block.
type Author struct {
	ID        string `json:"id"`
	Handle    string `json:"handle"`
	Name      string `json:"name"`
	Followers int    `json:"followers,omitempty"`
	Verified  bool   `json:"verified,omitempty"`
}

// TweetMetadata is the tweet snapshot embedded in an artifact.
type TweetMetadata struct {
	Author          Author             `json:"author"`
	Text            string             `json:"text"`
	CreatedAt       time.Time          `json:"created_at"`
	Engagement      fetcher.Engagement `json:"engagement"`
	IsThread        bool               `json:"is_thread"`
	ThreadPartCount int                `json:"thread_part_count"`
	ConversationID  string             `json:"conversation_id"`
}

// CaptureMetadata records when and with what the screenshot was taken.
type CaptureMetadata struct {
	CapturedAt  time.Time `json:"captured_at"`
	ToolVersion string    `json:"tool_version"`
}

// Artifact is the persisted enrichment bundle. Screenshot key and OCR
// text are either both present (visual path) or both absent.
type Artifact struct {
	TweetID         string          `json:"tweet_id"`
	TweetMetadata   TweetMetadata   `json:"tweet_metadata"`
	ScreenshotKey   string          `json:"screenshot_key,omitempty"`
	FullTextOCR     string          `json:"full_text_ocr,omitempty"`
	CaptureMetadata CaptureMetadata `json:"capture_metadata"`
}

// NewArtifact builds an artifact from a fetched tweet.
func NewArtifact(t *fetcher.Tweet, capturedAt time.Time) *Artifact {
	return &Artifact{
		TweetID: t.ID,
		TweetMetadata: TweetMetadata{
			Author: Author{
				ID:     t.AuthorID,
				Handle: t.AuthorHandle,
				Name:   t.AuthorName,
			},
			Text:            t.Text,
			CreatedAt:       t.CreatedAt,
			Engagement:      t.Engagement,
			IsThread:        t.IsThread,
			ThreadPartCount: t.ThreadPartCount,
			ConversationID:  t.ConversationID,
		},
		CaptureMetadata: CaptureMetadata{
			CapturedAt:  capturedAt,
			ToolVersion: ToolVersion,
		},
	}
}

// ClassificationText returns the text the classifier should use: the
// OCR transcript when present, else the fetched text.
func (a *Artifact) ClassificationText() string {
	if a.FullTextOCR != "" {
		return a.FullTextOCR
	}
	return a.TweetMetadata.Text
}

// Marshal renders the artifact as JSON.
func (a *Artifact) Marshal() ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshaling artifact %s: %w", a.TweetID, err)
	}
	return data, nil
}

// UnmarshalArtifact parses a persisted artifact.
func UnmarshalArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing artifact: %w", err)
	}
	if a.TweetID == "" {
		return nil, fmt.Errorf("parsing artifact: missing tweet_id")
	}
	return &a, nil
}

// QueueMessage is the classification queue body referencing an
// artifact.
type QueueMessage struct {
	ArtifactKey string `json:"artifact_key"`
}

// MarshalQueueMessage renders the queue body for an artifact key.
func MarshalQueueMessage(artifactKey string) string {
	body, _ := json.Marshal(QueueMessage{ArtifactKey: artifactKey})
	return string(body)
}

// ParseQueueMessage parses a queue body.
func ParseQueueMessage(body string) (string, error) {
	var msg QueueMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return "", fmt.Errorf("parsing queue message: %w", err)
	}
	if msg.ArtifactKey == "" {
		return "", fmt.Errorf("parsing queue message: missing artifact_key")
	}
	return msg.ArtifactKey, nil
}
