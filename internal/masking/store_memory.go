package masking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps rules in process memory; the seam for unit tests and
// single-node development.
type InMemoryStore struct {
	mu    sync.RWMutex
	rules map[uuid.UUID]Rule
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rules: make(map[uuid.UUID]Rule)}
}

func (s *InMemoryStore) Create(_ context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[rule.ID] = *rule
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; !ok {
		return sentinel.ErrNotFound
	}
	rule.UpdatedAt = time.Now()
	s.rules[rule.ID] = *rule
	return nil
}

func (s *InMemoryStore) SetEnabled(_ context.Context, ruleID uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[ruleID]
	if !ok {
		return sentinel.ErrNotFound
	}
	rule.Enabled = enabled
	rule.UpdatedAt = time.Now()
	s.rules[ruleID] = rule
	return nil
}

func (s *InMemoryStore) ListForScope(_ context.Context, tenantID *id.TenantID, role string) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Rule
	for _, rule := range s.rules {
		if !rule.Enabled {
			continue
		}
		if !scopeCovers(rule, tenantID, role) {
			continue
		}
		out = append(out, rule)
	}
	sortByPriority(out)
	return out, nil
}

func (s *InMemoryStore) List(_ context.Context, tenantID *id.TenantID) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Rule
	for _, rule := range s.rules {
		if tenantID == nil && rule.TenantID != nil {
			continue
		}
		if tenantID != nil && rule.TenantID != nil && *rule.TenantID != *tenantID {
			continue
		}
		out = append(out, rule)
	}
	sortByPriority(out)
	return out, nil
}

func scopeCovers(rule Rule, tenantID *id.TenantID, role string) bool {
	if rule.TenantID != nil {
		if tenantID == nil || *rule.TenantID != *tenantID {
			return false
		}
	}
	return rule.Role == RoleWildcard || rule.Role == role
}

func sortByPriority(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
}
