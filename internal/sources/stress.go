package sources

import (
	"sync"
	"time"

	"SignalDesk/internal/model"
)

// StressStore keeps recent stress events in a trailing window.
// Events older than the window are pruned on every read and append.
type StressStore struct {
	mu     sync.Mutex
	window time.Duration
	events []model.StressEvent
}

// NewStressStore creates a store with the given trailing retention window.
func NewStressStore(window time.Duration) *StressStore {
	return &StressStore{window: window}
}

// Append records a stress event.
func (s *StressStore) Append(evt model.StressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	s.prune(time.Now())
}

// Recent returns all events still inside the trailing window, oldest first.
func (s *StressStore) Recent(now time.Time) []model.StressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(now)
	out := make([]model.StressEvent, len(s.events))
	copy(out, s.events)
	return out
}

// prune drops events older than the window. Caller holds the lock.
func (s *StressStore) prune(now time.Time) {
	cutoff := now.Add(-s.window)
	kept := s.events[:0]
	for _, e := range s.events {
		if e.At.After(cutoff) {
			kept = append(kept, e)
		}
	}
	s.events = kept
}
