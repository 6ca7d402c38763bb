package events

import "context"

// Inbox is a channel-backed Emitter that hands events to a Worker. Emission
// blocks until the worker has capacity or the context is cancelled.
type Inbox struct {
	ch chan Event
}

func NewInbox(buffer int) *Inbox {
	return &Inbox{ch: make(chan Event, buffer)}
}

func (i *Inbox) Emit(ctx context.Context, event Event) error {
	select {
	case i.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Chan exposes the receive side for the Worker.
func (i *Inbox) Chan() <-chan Event {
	return i.ch
}

// Worker consumes events from a channel and persists them. It keeps
// background processing testable without wiring queue implementations.
type Worker struct {
	store Store
	inbox <-chan Event
}

func NewWorker(store Store, inbox <-chan Event) *Worker {
	return &Worker{store: store, inbox: inbox}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				return err
			}
		}
	}
}
