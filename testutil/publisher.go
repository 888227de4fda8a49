package testutil

import (
	"context"
	"fmt"
	"sync"
)

// MockPublisher is an in-memory stand-in for natsclient.Client publishing.
// Thread-safe for concurrent use from multiple goroutines.
type MockPublisher struct {
	mu       sync.RWMutex
	messages map[string][][]byte
	err      error
	closed   bool
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		messages: make(map[string][][]byte),
	}
}

// Publish records data under subject (matches natsclient.Client signature).
func (p *MockPublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("publisher is closed")
	}
	if p.err != nil {
		return p.err
	}

	msg := make([]byte, len(data))
	copy(msg, data)
	p.messages[subject] = append(p.messages[subject], msg)
	return nil
}

// FailWith makes every following Publish return err. A nil err restores success.
func (p *MockPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// GetMessages returns the messages published to subject.
func (p *MockPublisher) GetMessages(subject string) [][]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()

	msgs := p.messages[subject]
	result := make([][]byte, len(msgs))
	copy(result, msgs)
	return result
}

// GetMessageCount returns the number of messages published to subject.
func (p *MockPublisher) GetMessageCount(subject string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.messages[subject])
}

// Close marks the publisher closed.
func (p *MockPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
