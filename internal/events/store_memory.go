package events

import (
	"context"
	"sync"

	"vouchsafe/pkg/domain"
)

// InMemory is the in-process event sink used in tests and single-node runs.
type InMemory struct {
	mu     sync.RWMutex
	events map[domain.ManagerID][]Event
}

func NewInMemory() *InMemory {
	return &InMemory{events: make(map[domain.ManagerID][]Event)}
}

func (s *InMemory) Append(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ManagerID] = append(s.events[event.ManagerID], event)
	return nil
}

func (s *InMemory) ListByManager(ctx context.Context, managerID domain.ManagerID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events[managerID]))
	copy(out, s.events[managerID])
	return out, nil
}
