// Package queue provides the classification work queue: send with
// deduplication, batch receive with visibility timeouts, ack/nack, and
// a depth probe for the long-path completion predicate. Messages that
// exceed the queue's max-receive count are routed to the dead-letter
// queue by the broker's redrive policy.
package queue

import (
	"context"
	"time"
)

// Message is one received queue entry. ReceiveCount is how many times
// the broker has delivered it, including this delivery.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
	ReceiveCount  int
}

// Queue is the message-queue capability. Ordering is not guaranteed.
type Queue interface {
	// Send enqueues body. dedupKey, when non-empty, suppresses
	// duplicates within the broker's dedup window.
	Send(ctx context.Context, body string, dedupKey string) error
	// Receive returns up to max messages, each invisible to other
	// consumers for the visibility timeout.
	Receive(ctx context.Context, max int, visibility time.Duration) ([]Message, error)
	// Ack deletes a processed message.
	Ack(ctx context.Context, msg Message) error
	// Nack makes the message visible again after delay, counting as a
	// failed delivery.
	Nack(ctx context.Context, msg Message, delay time.Duration) error
	// Depth returns the approximate number of messages in the queue,
	// visible plus in flight.
	Depth(ctx context.Context) (int, error)
}
