package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"vouchsafe/pkg/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWorkerDrainsInbox(t *testing.T) {
	store := NewInMemory()
	inbox := make(chan Event, 4)
	worker := NewWorker(store, inbox)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx)
	}()

	managerID := domain.NewManagerID()
	inbox <- Event{ManagerID: managerID, Kind: KindUserRegistered, Name: "Alice", Timestamp: time.Now()}
	inbox <- Event{ManagerID: managerID, Kind: KindUserStaked, UserID: 0, Amount: 50, Timestamp: time.Now()}

	require.Eventually(t, func() bool {
		listed, err := store.ListByManager(context.Background(), managerID)
		return err == nil && len(listed) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	worker := NewWorker(NewInMemory(), make(chan Event))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, worker.Run(ctx), context.Canceled)
}
