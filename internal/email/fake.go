package email

import (
	"context"
	"fmt"
	"sync"
)

// FakeSender records sends for tests. Addresses added to FailWith are
// answered with the mapped error.
type FakeSender struct {
	mu       sync.Mutex
	Sent     []string
	FailWith map[string]error
	nextID   int
}

// NewFakeSender creates an empty fake sender.
func NewFakeSender() *FakeSender {
	return &FakeSender{FailWith: make(map[string]error)}
}

// Send implements Sender.
func (f *FakeSender) Send(_ context.Context, _, to, _, _, _ string) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailWith[to]; ok && err != nil {
		return &Result{Status: StatusRejected}, err
	}
	f.nextID++
	f.Sent = append(f.Sent, to)
	return &Result{DeliveryID: fmt.Sprintf("d%d", f.nextID), Status: StatusQueued}, nil
}
