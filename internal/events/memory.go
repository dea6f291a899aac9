package events

import (
	"context"
	"sync"
	"time"

	"github.com/ortelius/storefront-guard/model"
)

// MemoryStore keeps the most recent events in memory, dropping the oldest past capacity
type MemoryStore struct {
	mu       sync.RWMutex
	events   []model.SecurityEvent
	capacity int
}

// NewMemoryStore creates a store holding at most capacity events
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryStore{capacity: capacity}
}

// AppendEvent adds an event
func (s *MemoryStore) AppendEvent(_ context.Context, event model.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == s.capacity {
		copy(s.events, s.events[1:])
		s.events = s.events[:len(s.events)-1]
	}
	s.events = append(s.events, event)
	return nil
}

// Events returns the stored events, oldest first
func (s *MemoryStore) Events() []model.SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.SecurityEvent(nil), s.events...)
}

// ListEvents returns up to limit events in [from, to], newest first
func (s *MemoryStore) ListEvents(_ context.Context, from, to time.Time, limit int) ([]model.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SecurityEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		ts := s.events[i].Timestamp
		if ts.Before(from) || ts.After(to) {
			continue
		}
		out = append(out, s.events[i])
	}
	return out, nil
}
