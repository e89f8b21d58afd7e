package feed

import (
	"context"
	"sync"

	"SignalDesk/internal/model"
)

// MockFeed returns controllable fixed data for development and testing.
type MockFeed struct {
	mu        sync.Mutex
	Signals   []model.Signal
	Processed []string
}

// NewMockFeed creates an empty in-memory feed.
func NewMockFeed() *MockFeed { return &MockFeed{} }

func (m *MockFeed) Name() string { return "mock" }

func (m *MockFeed) FetchPending(_ context.Context) ([]model.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := make([]model.Signal, 0, len(m.Signals))
	for _, s := range m.Signals {
		if !m.isProcessed(s.ID) {
			pending = append(pending, s)
		}
	}
	return pending, nil
}

func (m *MockFeed) MarkProcessed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isProcessed(id) {
		m.Processed = append(m.Processed, id)
	}
	return nil
}

func (m *MockFeed) isProcessed(id string) bool {
	for _, p := range m.Processed {
		if p == id {
			return true
		}
	}
	return false
}
