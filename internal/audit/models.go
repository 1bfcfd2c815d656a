package audit

import "time"

// Action labels what happened to an owner's data. These are stable strings;
// consumers route and retain on them.
type Action string

const (
	ActionOwnerCreated    Action = "owner_created"
	ActionOwnerUpdated    Action = "owner_updated"
	ActionOwnerDeleted    Action = "owner_deleted"
	ActionRecordWritten   Action = "record_written"
	ActionRecordRead      Action = "record_read"
	ActionRecordDeleted   Action = "record_deleted"
	ActionRecordArchived  Action = "record_archived"
	ActionPermissionGrant Action = "permission_granted"
	ActionPermissionRevok Action = "permission_revoked"
	ActionConsentGranted  Action = "consent_granted"
	ActionConsentWithdraw Action = "consent_withdrawn"
	ActionConsentRenewed  Action = "consent_renewed"
	ActionDocumentUpload  Action = "document_uploaded"
	ActionDocumentShared  Action = "document_shared"
	ActionAccessRevoked   Action = "document_access_revoked"
	ActionTokenIssued     Action = "token_issued"
	ActionTokenConsumed   Action = "token_consumed"
	ActionTokenDenied     Action = "token_denied"
	ActionTokenRevoked    Action = "token_revoked"
	ActionSyncCompleted   Action = "sync_completed"
	ActionIntegrityCheck  Action = "integrity_checked"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	OwnerID   string
	// Actor is who performed the action: the owner, a grantee, or a token
	// bearer identified by scope/principal.
	Actor    string
	Action   Action
	Subject  string // record/document/token/permission id the action touched
	Purpose  string
	Decision string // "allowed" / "denied" where an access decision was made
	Reason   string // precise internal reason; never exposed to bearers
}
