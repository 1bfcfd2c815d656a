package owner

import "context"

// Store persists data owners.
type Store interface {
	Save(ctx context.Context, o DataOwner) error
	FindByID(ctx context.Context, ownerID string) (DataOwner, error)
	Delete(ctx context.Context, ownerID string) error
	// ListPendingCredentialLink returns owners awaiting credential store
	// provisioning, for the synchronizer.
	ListPendingCredentialLink(ctx context.Context) ([]DataOwner, error)
}
