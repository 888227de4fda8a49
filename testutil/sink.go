package testutil

import (
	"sync"
	"testing"
	"time"
)

// RecordingSink records every line passed to Process.
// Thread-safe for concurrent use from multiple goroutines.
type RecordingSink struct {
	mu    sync.Mutex
	lines []string

	// ProcessFunc, when set, decides the result of Process. Lines are
	// recorded only when it returns nil.
	ProcessFunc func(line string) error
}

// NewRecordingSink creates an empty recording sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// Process records line unless ProcessFunc rejects it.
func (s *RecordingSink) Process(line string) error {
	s.mu.Lock()
	fn := s.ProcessFunc
	s.mu.Unlock()

	if fn != nil {
		if err := fn(line); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
	return nil
}

// Lines returns a copy of the recorded lines in call order.
func (s *RecordingSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]string, len(s.lines))
	copy(lines, s.lines)
	return lines
}

// WaitForLines waits until at least count lines have been recorded and returns them.
func (s *RecordingSink) WaitForLines(t *testing.T, count int, timeout time.Duration) []string {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if lines := s.Lines(); len(lines) >= count {
			return lines
		}
		time.Sleep(5 * time.Millisecond)
	}

	lines := s.Lines()
	t.Fatalf("timeout waiting for %d lines (got %d: %q)", count, len(lines), lines)
	return nil
}
