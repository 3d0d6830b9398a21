package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps entries in process memory for tests and development.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, filter Filter) ([]Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Entry
	for _, e := range s.entries {
		if entryMatches(e, filter) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return append([]Entry{}, matched[start:end]...), total, nil
}

func (s *InMemoryStore) Flag(_ context.Context, entryID uuid.UUID, reason string, reviewerID id.UserID, reviewedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == entryID {
			s.entries[i].Flagged = true
			s.entries[i].FlagReason = reason
			s.entries[i].ReviewedBy = &reviewerID
			s.entries[i].ReviewedAt = &reviewedAt
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *InMemoryStore) AccessorActivity(_ context.Context, accessorID id.UserID, tenantID *id.TenantID, now time.Time) (ActivityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)
	var window ActivityWindow
	for _, e := range s.entries {
		if e.AccessorID != accessorID {
			continue
		}
		if tenantID != nil && (e.TenantID == nil || *e.TenantID != *tenantID) {
			continue
		}
		if e.CreatedAt.After(dayAgo) {
			window.LastDay++
		}
		if e.CreatedAt.After(hourAgo) {
			window.LastHour++
			if e.DataCategory == CategoryPHI {
				window.PHILastHour++
			}
		}
	}
	return window, nil
}

func entryMatches(e Entry, f Filter) bool {
	if f.TenantID != nil && (e.TenantID == nil || *e.TenantID != *f.TenantID) {
		return false
	}
	if f.AccessorID != nil && e.AccessorID != *f.AccessorID {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if f.DataCategory != "" && e.DataCategory != f.DataCategory {
		return false
	}
	if f.RiskTier != "" && e.RiskTier != f.RiskTier {
		return false
	}
	if f.Flagged != nil && e.Flagged != *f.Flagged {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
