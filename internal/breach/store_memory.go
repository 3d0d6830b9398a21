package breach

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps the register in process memory.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[uuid.UUID]Record)}
}

func (s *InMemoryStore) Insert(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[record.ID] = *record
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, recordID uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &record, nil
}

func (s *InMemoryStore) List(_ context.Context, filter Filter) ([]Record, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []Record
	for _, record := range s.records {
		if recordMatches(record, filter) {
			matched = append(matched, record)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].DiscoveredAt.After(matched[j].DiscoveredAt)
	})
	total := len(matched)

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func recordMatches(record Record, filter Filter) bool {
	if filter.TenantID != nil {
		if record.TenantID == nil || *record.TenantID != *filter.TenantID {
			return false
		}
	}
	if filter.Severity != "" && record.Severity != filter.Severity {
		return false
	}
	if filter.Status != "" && record.Status != filter.Status {
		return false
	}
	if filter.From != nil && record.DiscoveredAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && record.DiscoveredAt.After(*filter.To) {
		return false
	}
	return true
}
