package owner

import "time"

// Identity is the owner's self-reported identity attributes.
type Identity struct {
	Name      string     `json:"name"`
	Contact   string     `json:"contact"`
	BirthDate *time.Time `json:"birthDate,omitempty"`
}

// DataOwner is the individual whose personal records and documents are
// managed. OwnerID is unique and immutable once created; an inactive owner
// may not be granted new permissions.
type DataOwner struct {
	ID       string   `json:"ownerId"`
	Identity Identity `json:"identity"`
	// VaultRef and CredentialStoreRef are opaque handles into the external
	// backends; the engine never interprets them.
	VaultRef           string `json:"vaultRef"`
	CredentialStoreRef string `json:"credentialStoreRef,omitempty"`
	// CredentialLinkPending marks owners whose credential store provisioning
	// failed recoverably; the synchronizer retries it.
	CredentialLinkPending bool `json:"credentialLinkPending,omitempty"`
	// DefaultPolicy names the standing access posture. Always deny: absence
	// of a permission is a denial.
	DefaultPolicy string    `json:"defaultPolicy"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUpdated   time.Time `json:"lastUpdated"`
}
