package events

import (
	"context"
	"time"

	"vouchsafe/pkg/domain"
)

// Publisher captures structured ledger events. It is append-only and uses
// the storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now()
	}
	return p.store.Append(ctx, base)
}

func (p *Publisher) List(ctx context.Context, managerID domain.ManagerID) ([]Event, error) {
	return p.store.ListByManager(ctx, managerID)
}

// Multi fans one emission out to several emitters, stopping at the first
// failure so callers see it.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, event Event) error {
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
