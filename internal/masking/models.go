package masking

import (
	"time"

	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
)

// Type selects how a field value is obscured.
type Type string

const (
	// TypeFull replaces the whole value with asterisks.
	TypeFull Type = "full"
	// TypePartial keeps the edges of the value and stars the middle.
	TypePartial Type = "partial"
	// TypeHash emits a placeholder tag embedding the first characters of the
	// source. This is display obfuscation, not a digest.
	TypeHash Type = "hash"
	// TypeRedact replaces the value with a fixed redaction literal.
	TypeRedact Type = "redact"
	// TypeTokenize emits a placeholder token with a random suffix. Tokens are
	// not stable across calls; callers must not join on them.
	TypeTokenize Type = "tokenize"
)

// ParseType validates a masking type received at a boundary.
func ParseType(raw string) (Type, error) {
	switch Type(raw) {
	case TypeFull, TypePartial, TypeHash, TypeRedact, TypeTokenize:
		return Type(raw), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown masking type: "+raw)
}

// RoleWildcard matches any role when set on a rule.
const RoleWildcard = "*"

// Rule decides whether one field of one resource type is obscured for a
// (tenant, role) scope. Rules are looked up and applied, never mutated by the
// masking path; higher priority wins when several rules match a field.
type Rule struct {
	ID             uuid.UUID
	TenantID       *id.TenantID // nil scopes the rule globally
	Role           string       // specific role name or RoleWildcard
	ResourceType   string
	FieldName      string
	Type           Type
	Pattern        string // optional literal override for TypePartial
	PreserveLength bool
	Priority       int
	Enabled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AppliesTo reports whether the rule covers the given resource type.
func (r Rule) AppliesTo(resourceType string) bool {
	return r.Enabled && r.ResourceType == resourceType
}
