package record

import "context"

// Store is the sole write path for unified records. No other component
// reaches into record storage directly.
type Store interface {
	Save(ctx context.Context, rec UnifiedRecord) error
	FindByID(ctx context.Context, recordID string) (UnifiedRecord, error)
	ListByOwner(ctx context.Context, ownerID string, dataType DataType) ([]UnifiedRecord, error)
	ListAllByOwner(ctx context.Context, ownerID string) ([]UnifiedRecord, error)
	// Latest returns the newest record in the (owner, dataType) logical chain.
	Latest(ctx context.Context, ownerID string, dataType DataType) (UnifiedRecord, error)
	Delete(ctx context.Context, recordID string) error
	// ListPendingSync returns records awaiting vault confirmation.
	ListPendingSync(ctx context.Context, ownerID string) ([]UnifiedRecord, error)
	// MarkSynced clears the pending flag after a confirmed vault write.
	MarkSynced(ctx context.Context, recordID string) error
	// AppendLog appends an access log entry without touching anything else.
	AppendLog(ctx context.Context, recordID string, entry AccessLogEntry) error
	// SetCrossRef links a record to its credential store counterpart.
	SetCrossRef(ctx context.Context, recordID, crossRef string) error
}
