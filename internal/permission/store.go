package permission

import "context"

// Store persists permissions and consent records for all owners.
type Store interface {
	SavePermission(ctx context.Context, p DataPermission) error
	FindPermission(ctx context.Context, permissionID string) (DataPermission, error)
	ListPermissions(ctx context.Context, ownerID string) ([]DataPermission, error)
	// ConsumeUse atomically increments the permission's use count and
	// reports false when the cap is already reached. Must be indivisible
	// under concurrent callers.
	ConsumeUse(ctx context.Context, permissionID string) (bool, error)

	SaveConsent(ctx context.Context, c ConsentRecord) error
	FindConsent(ctx context.Context, consentID string) (ConsentRecord, error)
	ListConsents(ctx context.Context, ownerID string) ([]ConsentRecord, error)
}
