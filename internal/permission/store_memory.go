package permission

import (
	"context"
	"sync"

	"custoda/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu          sync.RWMutex
	permissions map[string]*DataPermission
	permByOwner map[string][]string
	consents    map[string]*ConsentRecord
	consByOwner map[string][]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		permissions: make(map[string]*DataPermission),
		permByOwner: make(map[string][]string),
		consents:    make(map[string]*ConsentRecord),
		consByOwner: make(map[string][]string),
	}
}

func (s *InMemoryStore) SavePermission(_ context.Context, p DataPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.permissions[p.ID]; !exists {
		s.permByOwner[p.OwnerID] = append(s.permByOwner[p.OwnerID], p.ID)
	}
	stored := p
	s.permissions[p.ID] = &stored
	return nil
}

func (s *InMemoryStore) FindPermission(_ context.Context, permissionID string) (DataPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permissions[permissionID]
	if !ok {
		return DataPermission{}, sentinel.ErrNotFound
	}
	return *p, nil
}

func (s *InMemoryStore) ListPermissions(_ context.Context, ownerID string) ([]DataPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []DataPermission
	for _, id := range s.permByOwner[ownerID] {
		out = append(out, *s.permissions[id])
	}
	return out, nil
}

// ConsumeUse holds the store lock across the check and the increment so two
// racing authorizations cannot both take the last use.
func (s *InMemoryStore) ConsumeUse(_ context.Context, permissionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.permissions[permissionID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if p.Conditions.MaxUses > 0 && p.UseCount >= p.Conditions.MaxUses {
		return false, nil
	}
	p.UseCount++
	return true, nil
}

func (s *InMemoryStore) SaveConsent(_ context.Context, c ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.consents[c.ID]; !exists {
		s.consByOwner[c.OwnerID] = append(s.consByOwner[c.OwnerID], c.ID)
	}
	stored := c
	s.consents[c.ID] = &stored
	return nil
}

func (s *InMemoryStore) FindConsent(_ context.Context, consentID string) (ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consents[consentID]
	if !ok {
		return ConsentRecord{}, sentinel.ErrNotFound
	}
	return *c, nil
}

func (s *InMemoryStore) ListConsents(_ context.Context, ownerID string) ([]ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ConsentRecord
	for _, id := range s.consByOwner[ownerID] {
		out = append(out, *s.consents[id])
	}
	return out, nil
}
