package manager

import (
	"context"
	"fmt"
	"sync"

	"vouchsafe/internal/custody/models"
	"vouchsafe/pkg/domain"
	"vouchsafe/pkg/platform/sentinel"
)

// InMemory stores manager aggregates in process memory.
//
// Execute holds the store mutex across the check and mutate callbacks, which
// gives each operation the exclusive per-instance access the aggregate
// requires: a failed check aborts before any mutation, so no partial effect
// is ever observable.
type InMemory struct {
	mu       sync.Mutex
	managers map[domain.ManagerID]*models.Manager
}

func NewInMemory() *InMemory {
	return &InMemory{managers: make(map[domain.ManagerID]*models.Manager)}
}

// Create stores a new aggregate. Fails with sentinel.ErrConflict if the id
// is already taken.
func (s *InMemory) Create(ctx context.Context, m *models.Manager) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.managers[m.ID]; exists {
		return fmt.Errorf("manager %s: %w", m.ID, sentinel.ErrConflict)
	}
	s.managers[m.ID] = m.Clone()
	return nil
}

// FindByID returns a deep copy of the aggregate for snapshot reads.
func (s *InMemory) FindByID(ctx context.Context, id domain.ManagerID) (*models.Manager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, exists := s.managers[id]
	if !exists {
		return nil, fmt.Errorf("manager %s: %w", id, sentinel.ErrNotFound)
	}
	return m.Clone(), nil
}

// Execute runs check then mutate against the live aggregate while holding
// the store lock. If check fails its error is returned and the aggregate is
// untouched. Returns a deep copy of the post-mutation state.
func (s *InMemory) Execute(
	ctx context.Context,
	id domain.ManagerID,
	check func(*models.Manager) error,
	mutate func(*models.Manager),
) (*models.Manager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.managers[id]
	if !exists {
		return nil, fmt.Errorf("manager %s: %w", id, sentinel.ErrNotFound)
	}
	if check != nil {
		if err := check(m); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(m)
	}
	return m.Clone(), nil
}

// Count reports the number of stored aggregates.
func (s *InMemory) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.managers), nil
}
