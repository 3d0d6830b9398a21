package masking

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"custodia/internal/platform/metrics"
	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
)

// DefaultCacheTTL bounds how stale a resolved rule set may be served.
const DefaultCacheTTL = 5 * time.Minute

// Engine resolves which fields of a resource must be obscured for a
// (tenant, role) scope and transforms record values accordingly. The rule
// cache is its only mutable state; construct one Engine at startup and share it.
type Engine struct {
	store   RuleStore
	cache   *ruleCache
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewEngine builds an Engine with the given cache TTL; ttl <= 0 selects the
// default. Metrics may be nil in tests.
func NewEngine(store RuleStore, logger *slog.Logger, m *metrics.Metrics, ttl time.Duration) *Engine {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Engine{
		store:   store,
		cache:   newRuleCache(ttl),
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("custodia/masking"),
	}
}

// Reset drops the rule cache; call on configuration reload.
func (e *Engine) Reset() {
	e.cache.reset()
}

// ResolveRules returns the enabled rules covering the scope, consulting the
// per-key cache first.
func (e *Engine) ResolveRules(ctx context.Context, tenantID *id.TenantID, role string) ([]Rule, error) {
	key := scopeKey(tenantID, role)
	now := time.Now()
	if rules, ok := e.cache.get(key, now); ok {
		if e.metrics != nil {
			e.metrics.MaskingCacheHits.Inc()
		}
		return rules, nil
	}
	if e.metrics != nil {
		e.metrics.MaskingCacheMisses.Inc()
	}

	ctx, span := e.tracer.Start(ctx, "masking.ResolveRules")
	defer span.End()

	rules, err := e.store.ListForScope(ctx, tenantID, role)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "resolve masking rules")
	}
	e.cache.put(key, rules, now)
	return rules, nil
}

// ApplyMasking obscures the fields of record that have a matching enabled rule
// for the resource type. Fields absent from the record are left untouched;
// when no rule matches, the input map is returned as-is with no copy made.
func (e *Engine) ApplyMasking(ctx context.Context, record map[string]any, resourceType, role string, tenantID *id.TenantID) (map[string]any, error) {
	if len(record) == 0 {
		return record, nil
	}
	rules, err := e.ResolveRules(ctx, tenantID, role)
	if err != nil {
		return nil, err
	}

	// Highest priority rule wins per field; ListForScope orders by priority.
	selected := make(map[string]Rule)
	for _, rule := range rules {
		if !rule.AppliesTo(resourceType) {
			continue
		}
		if _, taken := selected[rule.FieldName]; taken {
			continue
		}
		if _, present := record[rule.FieldName]; !present {
			continue
		}
		selected[rule.FieldName] = rule
	}
	if len(selected) == 0 {
		return record, nil
	}

	masked := make(map[string]any, len(record))
	for k, v := range record {
		masked[k] = v
	}
	for field, rule := range selected {
		str, ok := masked[field].(string)
		if !ok {
			// Non-string sensitive values are fully redacted rather than
			// stringified, so numeric identifiers never leak their magnitude.
			masked[field] = redactedLiteral
			continue
		}
		masked[field] = maskByFieldName(field, str, rule)
		if e.metrics != nil {
			e.metrics.FieldsMasked.Inc()
		}
	}
	return masked, nil
}

// ApplyMaskingAll masks a slice of records; used by the response interceptor
// for array payloads.
func (e *Engine) ApplyMaskingAll(ctx context.Context, records []map[string]any, resourceType, role string, tenantID *id.TenantID) ([]map[string]any, error) {
	out := make([]map[string]any, len(records))
	for i, record := range records {
		masked, err := e.ApplyMasking(ctx, record, resourceType, role, tenantID)
		if err != nil {
			return nil, err
		}
		out[i] = masked
	}
	return out, nil
}

func scopeKey(tenantID *id.TenantID, role string) string {
	if tenantID == nil {
		return "global|" + role
	}
	return tenantID.String() + "|" + role
}
