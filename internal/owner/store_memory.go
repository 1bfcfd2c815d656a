package owner

import (
	"context"
	"sync"

	"custoda/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	owners map[string]*DataOwner
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{owners: make(map[string]*DataOwner)}
}

func (s *InMemoryStore) Save(_ context.Context, o DataOwner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := o
	s.owners[o.ID] = &stored
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, ownerID string) (DataOwner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.owners[ownerID]
	if !ok {
		return DataOwner{}, sentinel.ErrNotFound
	}
	return *o, nil
}

func (s *InMemoryStore) Delete(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[ownerID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.owners, ownerID)
	return nil
}

func (s *InMemoryStore) ListPendingCredentialLink(_ context.Context) ([]DataOwner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []DataOwner
	for _, o := range s.owners {
		if o.CredentialLinkPending {
			out = append(out, *o)
		}
	}
	return out, nil
}
