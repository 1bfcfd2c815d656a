package captoken

import "context"

// Store persists capability tokens. Mutations flow through the service's
// per-token lock; the store itself only needs plain durability.
type Store interface {
	Save(ctx context.Context, t CapabilityToken) error
	FindByID(ctx context.Context, tokenID string) (CapabilityToken, error)
	ListByOwner(ctx context.Context, ownerID string) ([]CapabilityToken, error)
}
