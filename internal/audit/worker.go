package audit

import "context"

// ChannelSink implements Store.Append by handing events to a buffered channel
// so the request path never waits on a slow durable sink. Reads go straight
// to the underlying store; recent events may still be in flight.
type ChannelSink struct {
	inbox chan<- Event
	store Store
}

func NewChannelSink(inbox chan<- Event, store Store) *ChannelSink {
	return &ChannelSink{inbox: inbox, store: store}
}

func (s *ChannelSink) Append(ctx context.Context, event Event) error {
	select {
	case s.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) ListByOwner(ctx context.Context, ownerID string) ([]Event, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// Worker consumes audit events from a channel and persists them. It keeps
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
