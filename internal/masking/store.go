package masking

import (
	"context"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
)

// RuleStore persists masking rules. ListForScope returns enabled rules whose
// scope covers the given tenant (global rules always included) and role
// (wildcard rules always included), highest priority first.
type RuleStore interface {
	Create(ctx context.Context, rule *Rule) error
	Update(ctx context.Context, rule *Rule) error
	SetEnabled(ctx context.Context, ruleID uuid.UUID, enabled bool) error
	ListForScope(ctx context.Context, tenantID *id.TenantID, role string) ([]Rule, error)
	List(ctx context.Context, tenantID *id.TenantID) ([]Rule, error)
}
