package consent

import (
	"context"
	"sort"
	"sync"
	"time"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps consent records in process memory. RunInTx serializes
// writers behind one mutex, which is the in-memory equivalent of the postgres
// transaction guarding supersession.
type InMemoryStore struct {
	mu      sync.Mutex
	txMu    sync.Mutex
	records []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Insert(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *record)
	return nil
}

func (s *InMemoryStore) CurrentGranted(_ context.Context, key Key) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Record
	for i := range s.records {
		r := s.records[i]
		if r.Key() != key || r.Status != StatusGranted {
			continue
		}
		if latest == nil || r.GrantedAt.After(latest.GrantedAt) {
			copied := r
			latest = &copied
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return latest, nil
}

func (s *InMemoryStore) Withdraw(_ context.Context, key Key, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	withdrawn := false
	for i := range s.records {
		if s.records[i].Key() != key || s.records[i].Status != StatusGranted {
			continue
		}
		s.records[i].Status = StatusWithdrawn
		s.records[i].WithdrawnAt = &at
		s.records[i].WithdrawalReason = reason
		withdrawn = true
	}
	return withdrawn, nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, tenantID id.TenantID, subjectType SubjectType, subjectID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.TenantID == tenantID && r.SubjectType == subjectType && r.SubjectID == subjectID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].GrantedAt.After(out[j].GrantedAt)
	})
	return out, nil
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx)
}
