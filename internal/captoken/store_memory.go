package captoken

import (
	"context"
	"sync"

	"custoda/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	tokens  map[string]*CapabilityToken
	byOwner map[string][]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tokens:  make(map[string]*CapabilityToken),
		byOwner: make(map[string][]string),
	}
}

func (s *InMemoryStore) Save(_ context.Context, t CapabilityToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[t.ID]; !exists {
		s.byOwner[t.OwnerID] = append(s.byOwner[t.OwnerID], t.ID)
	}
	stored := t
	s.tokens[t.ID] = &stored
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tokenID string) (CapabilityToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[tokenID]
	if !ok {
		return CapabilityToken{}, sentinel.ErrNotFound
	}
	return *t, nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID string) ([]CapabilityToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CapabilityToken
	for _, id := range s.byOwner[ownerID] {
		out = append(out, *s.tokens[id])
	}
	return out, nil
}
