package vault

import (
	"context"
	"sync"

	"custoda/pkg/platform/sentinel"
)

// InMemoryVault keeps vault payloads in process memory. It is the default
// backend for tests and single-node deployments.
type InMemoryVault struct {
	mu          sync.RWMutex
	collections map[string]map[string][][]byte // ownerRef -> collectionKey -> payloads
}

func NewInMemoryVault() *InMemoryVault {
	return &InMemoryVault{collections: make(map[string]map[string][][]byte)}
}

func (v *InMemoryVault) Provision(_ context.Context, ownerID string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ref := "vault-" + ownerID
	if _, ok := v.collections[ref]; !ok {
		v.collections[ref] = make(map[string][][]byte)
	}
	return ref, nil
}

func (v *InMemoryVault) Write(_ context.Context, ownerRef, collectionKey string, payload []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	owner, ok := v.collections[ownerRef]
	if !ok {
		return sentinel.ErrNotFound
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	owner[collectionKey] = append(owner[collectionKey], buf)
	return nil
}

func (v *InMemoryVault) Read(_ context.Context, ownerRef, collectionKey string) ([][]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	owner, ok := v.collections[ownerRef]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	stored := owner[collectionKey]
	out := make([][]byte, len(stored))
	for i, p := range stored {
		buf := make([]byte, len(p))
		copy(buf, p)
		out[i] = buf
	}
	return out, nil
}
