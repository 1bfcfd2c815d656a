package document

import (
	"context"
	"sync"

	"custoda/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]*Document
	byOwner map[string][]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		docs:    make(map[string]*Document),
		byOwner: make(map[string][]string),
	}
}

func (s *InMemoryStore) Save(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; !exists {
		s.byOwner[doc.OwnerID] = append(s.byOwner[doc.OwnerID], doc.ID)
	}
	stored := doc
	stored.AccessRights = append([]DocumentAccessRight{}, doc.AccessRights...)
	stored.SharingHistory = append([]SharingRecord{}, doc.SharingHistory...)
	s.docs[doc.ID] = &stored
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, documentID string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return Document{}, sentinel.ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for _, id := range s.byOwner[ownerID] {
		out = append(out, cloneDocument(s.docs[id]))
	}
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.docs, documentID)
	ids := s.byOwner[doc.OwnerID]
	for i, id := range ids {
		if id == documentID {
			s.byOwner[doc.OwnerID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func cloneDocument(doc *Document) Document {
	out := *doc
	out.AccessRights = append([]DocumentAccessRight{}, doc.AccessRights...)
	out.SharingHistory = append([]SharingRecord{}, doc.SharingHistory...)
	return out
}
