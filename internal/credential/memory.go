package credential

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"custoda/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	owners map[string][]Credential // ownerRef -> credentials
	index  map[string]string       // credentialID -> ownerRef
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		owners: make(map[string][]Credential),
		index:  make(map[string]string),
	}
}

func (s *InMemoryStore) Provision(_ context.Context, ownerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := "cred-" + ownerID
	if _, ok := s.owners[ref]; !ok {
		s.owners[ref] = nil
	}
	return ref, nil
}

func (s *InMemoryStore) Issue(_ context.Context, ownerRef string, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[ownerRef]; !ok {
		return "", sentinel.ErrNotFound
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	id := uuid.NewString()
	s.owners[ownerRef] = append(s.owners[ownerRef], Credential{ID: id, Payload: buf})
	s.index[id] = ownerRef
	return id, nil
}

func (s *InMemoryStore) Revoke(_ context.Context, credentialID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ownerRef, ok := s.index[credentialID]
	if !ok {
		return sentinel.ErrNotFound
	}
	creds := s.owners[ownerRef]
	for i := range creds {
		if creds[i].ID == credentialID {
			s.owners[ownerRef] = append(creds[:i], creds[i+1:]...)
			break
		}
	}
	delete(s.index, credentialID)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, ownerRef string) ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creds, ok := s.owners[ownerRef]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]Credential{}, creds...), nil
}
