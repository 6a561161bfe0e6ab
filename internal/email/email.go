// Package email wraps AWS SES v2: single-message send, startup
// identity verification, and draining the bounce/complaint
// notification queue that feeds subscriber deactivation.
package email

import (
	"context"
	"errors"
	"time"
)

// Status is the synchronous acceptance outcome of a send.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusRejected Status = "rejected"
)

// Result is what the provider reported for one send.
type Result struct {
	DeliveryID string
	Status     Status
}

// Sender delivers a single email.
type Sender interface {
	Send(ctx context.Context, from, to, subject, htmlBody, textBody string) (*Result, error)
}

// ErrPermanentRecipient marks failures tied to the recipient address
// (invalid, suppressed) that will not succeed on retry.
var ErrPermanentRecipient = errors.New("permanent recipient failure")

// Notification is one bounce or complaint event drained from the
// provider's event queue.
type Notification struct {
	Kind       string // "bounce" or "complaint"
	Email      string
	OccurredAt time.Time
}

// NotificationSource yields the addresses that bounced or complained
// since the last drain. Entries older than maxAge are dropped.
type NotificationSource interface {
	Drain(ctx context.Context, maxAge time.Duration) ([]Notification, error)
}
