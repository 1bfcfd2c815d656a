package audit

import "context"

// Store is an append-only sink for audit events. Entries are never mutated or
// deleted; ListByOwner returns them in append order.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByOwner(ctx context.Context, ownerID string) ([]Event, error)
}
