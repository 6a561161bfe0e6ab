package oracle

import (
	"context"
	"fmt"
	"sync"
)

// Scripted is a deterministic in-memory oracle used by tests and by
// the orchestrator's dry-run mode. Replies are consumed in FIFO order;
// a scripted error entry is returned instead of a reply.
type Scripted struct {
	mu      sync.Mutex
	replies []scriptedReply
	// Calls records every prompt the oracle saw, in order.
	Calls []string
}

type scriptedReply struct {
	text string
	err  error
}

// NewScripted creates an empty scripted oracle.
func NewScripted() *Scripted {
	return &Scripted{}
}

// Reply queues a successful reply.
func (s *Scripted) Reply(text string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, scriptedReply{text: text})
	return s
}

// Fail queues an error reply.
func (s *Scripted) Fail(err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, scriptedReply{err: err})
	return s
}

// Generate implements Oracle.
func (s *Scripted) Generate(_ context.Context, prompt string, _ Options) (string, error) {
	return s.next(prompt)
}

// GenerateVision implements VisionOracle.
func (s *Scripted) GenerateVision(_ context.Context, prompt string, _ []byte, _ Options) (string, error) {
	return s.next(prompt)
}

func (s *Scripted) next(prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, prompt)
	if len(s.replies) == 0 {
		return "", Permanent(fmt.Errorf("scripted oracle exhausted after %d calls", len(s.Calls)))
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	if r.err != nil {
		return "", r.err
	}
	return r.text, nil
}
