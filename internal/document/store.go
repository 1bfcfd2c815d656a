package document

import "context"

// Store is the sole write path for document metadata.
type Store interface {
	Save(ctx context.Context, doc Document) error
	FindByID(ctx context.Context, documentID string) (Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Document, error)
	Delete(ctx context.Context, documentID string) error
}
