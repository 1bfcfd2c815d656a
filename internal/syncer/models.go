package syncer

import "time"

// SideResult reports one side of a synchronization run. Failures are data,
// not exceptions: a failed side never aborts the other.
type SideResult struct {
	Success bool     `json:"success"`
	Changed int      `json:"changed"`
	Errors  []string `json:"errors,omitempty"`
}

// SyncResult is the outcome of one reconciliation run.
type SyncResult struct {
	OwnerID           string     `json:"ownerId"`
	RanAt             time.Time  `json:"ranAt"`
	Vault             SideResult `json:"vaultSync"`
	Credential        SideResult `json:"credentialSync"`
	ConflictsResolved int        `json:"conflictsResolved"`
}

// HashMismatch identifies one record whose stored hash no longer matches its
// payload.
type HashMismatch struct {
	RecordID string `json:"recordId"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// IntegrityReport summarizes a full re-hash of an owner's records. The
// auditor only ever recommends; it never rewrites a mismatched hash, since
// that would erase evidence of tampering.
type IntegrityReport struct {
	OwnerID                string         `json:"ownerId"`
	CheckedAt              time.Time      `json:"checkedAt"`
	TotalRecords           int            `json:"totalRecords"`
	ValidRecords           int            `json:"validRecords"`
	HashMismatches         []HashMismatch `json:"hashMismatches"`
	MissingCrossReferences []string       `json:"missingCrossReferences"`
	RecommendedActions     []string       `json:"recommendedActions"`
}
