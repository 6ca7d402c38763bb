package events

import (
	"context"

	"vouchsafe/pkg/domain"
)

// Store is an append-only event sink with per-manager retrieval.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByManager(ctx context.Context, managerID domain.ManagerID) ([]Event, error)
}

// Emitter is the seam domain services publish through.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
