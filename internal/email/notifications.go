package email

import (
	"context"
	"encoding/json"
	"time"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/queue"
)

// Notifications drains SES bounce/complaint events from the
// notification queue the SES event destination publishes to.
type Notifications struct {
	queue queue.Queue
	now   func() time.Time
}

// NewNotifications creates a drain over the notification queue.
func NewNotifications(q queue.Queue) *Notifications {
	return &Notifications{queue: q, now: time.Now}
}

// sesEvent is the SES event-publishing JSON, possibly wrapped in an
// SNS envelope.
type sesEvent struct {
	EventType string `json:"eventType"`
	Bounce    *struct {
		Timestamp         time.Time `json:"timestamp"`
		BouncedRecipients []struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"bouncedRecipients"`
	} `json:"bounce"`
	Complaint *struct {
		Timestamp            time.Time `json:"timestamp"`
		ComplainedRecipients []struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"complainedRecipients"`
	} `json:"complaint"`
}

type snsEnvelope struct {
	Message string `json:"Message"`
}

// Drain implements NotificationSource. Every queued event is consumed
// and ack'd; events older than maxAge are dropped from the result.
func (n *Notifications) Drain(ctx context.Context, maxAge time.Duration) ([]Notification, error) {
	cutoff := n.now().Add(-maxAge)
	var out []Notification

	for {
		msgs, err := n.queue.Receive(ctx, 10, time.Minute)
		if err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			return out, nil
		}
		for _, msg := range msgs {
			for _, note := range parseNotifications(msg.Body) {
				if note.OccurredAt.Before(cutoff) {
					continue
				}
				out = append(out, note)
			}
			if err := n.queue.Ack(ctx, msg); err != nil {
				return out, err
			}
		}
	}
}

func parseNotifications(body string) []Notification {
	raw := body
	var envelope snsEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Message != "" {
		raw = envelope.Message
	}

	var event sesEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		logger.Warn("email: unparseable notification", "error", err)
		return nil
	}

	var out []Notification
	switch {
	case event.Bounce != nil:
		for _, r := range event.Bounce.BouncedRecipients {
			out = append(out, Notification{
				Kind:       "bounce",
				Email:      r.EmailAddress,
				OccurredAt: event.Bounce.Timestamp,
			})
		}
	case event.Complaint != nil:
		for _, r := range event.Complaint.ComplainedRecipients {
			out = append(out, Notification{
				Kind:       "complaint",
				Email:      r.EmailAddress,
				OccurredAt: event.Complaint.Timestamp,
			})
		}
	}
	return out
}
