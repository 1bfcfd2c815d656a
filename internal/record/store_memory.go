package record

import (
	"context"
	"sort"
	"sync"

	"custoda/pkg/platform/sentinel"
)

// InMemoryStore keeps records in process memory. It intentionally favors
// clarity over performance.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*UnifiedRecord // recordID -> record
	byOwner map[string][]string       // ownerID -> recordIDs in insert order
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*UnifiedRecord),
		byOwner: make(map[string][]string),
	}
}

func (s *InMemoryStore) Save(_ context.Context, rec UnifiedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; !exists {
		s.byOwner[rec.OwnerID] = append(s.byOwner[rec.OwnerID], rec.ID)
	}
	stored := rec
	stored.AccessLog = append([]AccessLogEntry{}, rec.AccessLog...)
	s.records[rec.ID] = &stored
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, recordID string) (UnifiedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordID]
	if !ok {
		return UnifiedRecord{}, sentinel.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID string, dataType DataType) ([]UnifiedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []UnifiedRecord
	for _, id := range s.byOwner[ownerID] {
		rec := s.records[id]
		if rec.DataType == dataType {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListAllByOwner(_ context.Context, ownerID string) ([]UnifiedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []UnifiedRecord
	for _, id := range s.byOwner[ownerID] {
		out = append(out, cloneRecord(s.records[id]))
	}
	return out, nil
}

func (s *InMemoryStore) Latest(_ context.Context, ownerID string, dataType DataType) (UnifiedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *UnifiedRecord
	for _, id := range s.byOwner[ownerID] {
		rec := s.records[id]
		if rec.DataType != dataType {
			continue
		}
		if latest == nil || rec.Version > latest.Version {
			latest = rec
		}
	}
	if latest == nil {
		return UnifiedRecord{}, sentinel.ErrNotFound
	}
	return cloneRecord(latest), nil
}

func (s *InMemoryStore) Delete(_ context.Context, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, recordID)
	ids := s.byOwner[rec.OwnerID]
	for i, id := range ids {
		if id == recordID {
			s.byOwner[rec.OwnerID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemoryStore) ListPendingSync(_ context.Context, ownerID string) ([]UnifiedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []UnifiedRecord
	for _, id := range s.byOwner[ownerID] {
		rec := s.records[id]
		if rec.PendingSync {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.Before(out[j].LastUpdated) })
	return out, nil
}

func (s *InMemoryStore) MarkSynced(_ context.Context, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.PendingSync = false
	return nil
}

func (s *InMemoryStore) AppendLog(_ context.Context, recordID string, entry AccessLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.AccessLog = append(rec.AccessLog, entry)
	return nil
}

func (s *InMemoryStore) SetCrossRef(_ context.Context, recordID, crossRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.CrossRef = crossRef
	return nil
}

func cloneRecord(rec *UnifiedRecord) UnifiedRecord {
	out := *rec
	out.AccessLog = append([]AccessLogEntry{}, rec.AccessLog...)
	return out
}
