// Package credential defines the secondary credential store port: an opaque
// backend that issues and displays portable, scannable credentials derived
// from unified records.
package credential

import "context"

// Credential is an issued portable pass as reported by the backend.
type Credential struct {
	ID      string
	Payload []byte
}

// Store is the consumed interface of the credential store.
type Store interface {
	// Provision links an owner to the credential backend and returns an
	// opaque reference.
	Provision(ctx context.Context, ownerID string) (string, error)
	// Issue creates a credential from the payload and returns its id.
	Issue(ctx context.Context, ownerRef string, payload []byte) (string, error)
	// Revoke withdraws a previously issued credential.
	Revoke(ctx context.Context, credentialID string) error
	// List returns the owner's currently issued credentials.
	List(ctx context.Context, ownerRef string) ([]Credential, error)
}
