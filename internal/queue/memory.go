package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemQueue is an in-memory Queue for tests. It honors visibility
// timeouts against an injectable clock and routes messages to an
// inspectable dead-letter slice once they exceed MaxReceives.
type MemQueue struct {
	mu          sync.Mutex
	messages    []*memMessage
	dedup       map[string]bool
	nextID      int
	MaxReceives int
	DeadLetters []Message
	// Now is the clock; tests advance it to expire visibility windows.
	Now func() time.Time
}

type memMessage struct {
	id           string
	body         string
	receiveCount int
	invisibleTil time.Time
}

// NewMemQueue creates an empty in-memory queue with the default
// max-receive count of 5.
func NewMemQueue() *MemQueue {
	return &MemQueue{
		dedup:       make(map[string]bool),
		MaxReceives: 5,
		Now:         time.Now,
	}
}

// Send implements Queue.
func (q *MemQueue) Send(_ context.Context, body string, dedupKey string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if dedupKey != "" {
		if q.dedup[dedupKey] {
			return nil
		}
		q.dedup[dedupKey] = true
	}
	q.nextID++
	q.messages = append(q.messages, &memMessage{
		id:   fmt.Sprintf("m%d", q.nextID),
		body: body,
	})
	return nil
}

// Receive implements Queue. Messages past MaxReceives move to
// DeadLetters instead of being delivered.
func (q *MemQueue) Receive(_ context.Context, max int, visibility time.Duration) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.Now()

	var out []Message
	remaining := q.messages[:0]
	for _, m := range q.messages {
		if len(out) >= max || now.Before(m.invisibleTil) {
			remaining = append(remaining, m)
			continue
		}
		if m.receiveCount >= q.MaxReceives {
			q.DeadLetters = append(q.DeadLetters, Message{
				ID: m.id, Body: m.body, ReceiveCount: m.receiveCount,
			})
			continue
		}
		m.receiveCount++
		m.invisibleTil = now.Add(visibility)
		out = append(out, Message{
			ID:            m.id,
			Body:          m.body,
			ReceiptHandle: m.id,
			ReceiveCount:  m.receiveCount,
		})
		remaining = append(remaining, m)
	}
	q.messages = remaining
	return out, nil
}

// Ack implements Queue.
func (q *MemQueue) Ack(_ context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.messages {
		if m.id == msg.ReceiptHandle {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

// Nack implements Queue.
func (q *MemQueue) Nack(_ context.Context, msg Message, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.messages {
		if m.id == msg.ReceiptHandle {
			m.invisibleTil = q.Now().Add(delay)
			return nil
		}
	}
	return nil
}

// Depth implements Queue; dead-lettered messages are not counted.
func (q *MemQueue) Depth(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages), nil
}
