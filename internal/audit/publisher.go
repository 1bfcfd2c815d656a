package audit

import (
	"context"
	"log/slog"
	"time"
)

// Publisher captures structured audit events. It is append-only and uses the
// store layer for persistence so tests can swap sinks easily. Append failures
// are logged, never propagated: losing an audit write must not fail the
// operation being audited.
type Publisher struct {
	store Store
	log   *slog.Logger
}

func NewPublisher(store Store, log *slog.Logger) *Publisher {
	return &Publisher{store: store, log: log}
}

func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := p.store.Append(ctx, event); err != nil {
		p.log.Error("audit append failed",
			"action", event.Action,
			"owner_id", event.OwnerID,
			"error", err,
		)
	}
}

func (p *Publisher) List(ctx context.Context, ownerID string) ([]Event, error) {
	return p.store.ListByOwner(ctx, ownerID)
}
