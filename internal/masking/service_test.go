package masking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "custodia/pkg/domain"
	"custodia/pkg/testutil"
)

type EngineSuite struct {
	suite.Suite
	store  *countingStore
	engine *Engine
	ctx    context.Context
	tenant id.TenantID
}

// countingStore wraps the in-memory store to observe cache behavior.
type countingStore struct {
	*InMemoryStore
	listCalls int
}

func (s *countingStore) ListForScope(ctx context.Context, tenantID *id.TenantID, role string) ([]Rule, error) {
	s.listCalls++
	return s.InMemoryStore.ListForScope(ctx, tenantID, role)
}

func (s *EngineSuite) SetupTest() {
	s.store = &countingStore{InMemoryStore: NewInMemoryStore()}
	s.engine = NewEngine(s.store, testutil.Logger(), nil, time.Minute)
	s.ctx = context.Background()
	s.tenant = id.TenantID(uuid.New())
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) addRule(rule Rule) Rule {
	rule.ID = uuid.New()
	rule.Enabled = true
	if rule.Role == "" {
		rule.Role = RoleWildcard
	}
	s.Require().NoError(s.store.Create(s.ctx, &rule))
	return rule
}

func (s *EngineSuite) TestResolveRulesCaching() {
	s.addRule(Rule{TenantID: &s.tenant, ResourceType: "user", FieldName: "email", Type: TypePartial})

	s.Run("second resolve for the same scope hits the cache", func() {
		_, err := s.engine.ResolveRules(s.ctx, &s.tenant, "support")
		s.Require().NoError(err)
		_, err = s.engine.ResolveRules(s.ctx, &s.tenant, "support")
		s.Require().NoError(err)
		s.Equal(1, s.store.listCalls)
	})

	s.Run("a different scope misses without disturbing the first", func() {
		other := id.TenantID(uuid.New())
		_, err := s.engine.ResolveRules(s.ctx, &other, "support")
		s.Require().NoError(err)
		s.Equal(2, s.store.listCalls)

		_, err = s.engine.ResolveRules(s.ctx, &s.tenant, "support")
		s.Require().NoError(err)
		s.Equal(2, s.store.listCalls, "first scope should still be cached")
	})

	s.Run("reset forces a reload", func() {
		s.engine.Reset()
		_, err := s.engine.ResolveRules(s.ctx, &s.tenant, "support")
		s.Require().NoError(err)
		s.Equal(3, s.store.listCalls)
	})
}

func (s *EngineSuite) TestPerKeyExpiry() {
	s.addRule(Rule{TenantID: &s.tenant, ResourceType: "user", FieldName: "email", Type: TypePartial})

	now := time.Now()
	s.engine.cache.put("stale", nil, now.Add(-2*time.Minute))
	s.engine.cache.put("fresh", nil, now)

	_, ok := s.engine.cache.get("stale", now)
	s.False(ok, "expired key should miss")
	_, ok = s.engine.cache.get("fresh", now)
	s.True(ok, "fresh key should survive another key's expiry")
}

func (s *EngineSuite) TestApplyMasking() {
	s.addRule(Rule{TenantID: &s.tenant, ResourceType: "user", FieldName: "email", Type: TypeFull})
	s.addRule(Rule{TenantID: &s.tenant, ResourceType: "user", FieldName: "ssn", Type: TypeRedact})

	s.Run("masks matching string fields with the specialized masker", func() {
		record := map[string]any{"email": "johnsmith@example.com", "name": "John"}
		masked, err := s.engine.ApplyMasking(s.ctx, record, "user", "support", &s.tenant)
		s.Require().NoError(err)
		s.Equal("j*******h@example.com", masked["email"])
		s.Equal("John", masked["name"])
		s.Equal("johnsmith@example.com", record["email"], "input record must not be mutated")
	})

	s.Run("redacts non-string sensitive values", func() {
		record := map[string]any{"ssn": 123456789}
		masked, err := s.engine.ApplyMasking(s.ctx, record, "user", "support", &s.tenant)
		s.Require().NoError(err)
		s.Equal("[REDACTED]", masked["ssn"])
	})

	s.Run("returns input unchanged when nothing matches", func() {
		record := map[string]any{"city": "Singapore"}
		masked, err := s.engine.ApplyMasking(s.ctx, record, "user", "support", &s.tenant)
		s.Require().NoError(err)
		s.Equal(record, masked)
	})

	s.Run("other resource types are untouched", func() {
		record := map[string]any{"email": "johnsmith@example.com"}
		masked, err := s.engine.ApplyMasking(s.ctx, record, "invoice", "support", &s.tenant)
		s.Require().NoError(err)
		s.Equal("johnsmith@example.com", masked["email"])
	})
}

func (s *EngineSuite) TestPriorityWins() {
	s.addRule(Rule{TenantID: &s.tenant, ResourceType: "user", FieldName: "notes", Type: TypePartial, Priority: 1})
	s.addRule(Rule{TenantID: &s.tenant, ResourceType: "user", FieldName: "notes", Type: TypeRedact, Priority: 10})

	masked, err := s.engine.ApplyMasking(s.ctx, map[string]any{"notes": "confidential"}, "user", "support", &s.tenant)
	s.Require().NoError(err)
	s.Equal("[REDACTED]", masked["notes"])
}

func (s *EngineSuite) TestGlobalAndWildcardRulesApply() {
	s.addRule(Rule{ResourceType: "user", FieldName: "phone", Type: TypePartial})

	masked, err := s.engine.ApplyMaskingAll(s.ctx, []map[string]any{
		{"phone": "+1-555-123-4567"},
		{"phone": "+1-555-987-1111"},
	}, "user", "analyst", &s.tenant)
	s.Require().NoError(err)
	s.Equal("+*-***-***-4567", masked[0]["phone"])
	s.Equal("+*-***-***-1111", masked[1]["phone"])
}
