package dsar

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps requests and their trails in process memory. RunInTx
// serializes writers behind one mutex, mirroring the postgres transaction
// that keeps request row and activity row together.
type InMemoryStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	requests map[uuid.UUID]Request
	activity []ActivityEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[uuid.UUID]Request)}
}

func (s *InMemoryStore) Insert(_ context.Context, request *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[request.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[request.ID] = *request
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, requestID uuid.UUID) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &request, nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, request *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[request.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.requests[request.ID] = *request
	return nil
}

func (s *InMemoryStore) List(_ context.Context, filter Filter) ([]Request, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []Request
	for _, request := range s.requests {
		if requestMatches(request, filter) {
			matched = append(matched, request)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
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

func requestMatches(request Request, filter Filter) bool {
	if filter.TenantID != nil && request.TenantID != *filter.TenantID {
		return false
	}
	if filter.Status != "" && request.Status != filter.Status {
		return false
	}
	if filter.SubjectEmail != "" && request.SubjectEmail != filter.SubjectEmail {
		return false
	}
	if filter.From != nil && request.CreatedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && request.CreatedAt.After(*filter.To) {
		return false
	}
	return true
}

func (s *InMemoryStore) AppendActivity(_ context.Context, entry *ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, *entry)
	return nil
}

func (s *InMemoryStore) ListActivity(_ context.Context, requestID uuid.UUID) ([]ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ActivityEntry
	for _, entry := range s.activity {
		if entry.RequestID == requestID {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx)
}
