// Package vault defines the primary data vault port: an opaque per-owner
// backend that durably persists structured records. The engine only depends
// on this narrow contract; everything behind it is the vault's business.
package vault

import "context"

// Vault is the consumed interface of the primary data vault.
type Vault interface {
	// Provision creates per-owner storage and returns an opaque reference.
	Provision(ctx context.Context, ownerID string) (string, error)
	// Write persists one payload under the owner's collection key.
	Write(ctx context.Context, ownerRef, collectionKey string, payload []byte) error
	// Read returns all payloads stored under the owner's collection key.
	Read(ctx context.Context, ownerRef, collectionKey string) ([][]byte, error)
}
