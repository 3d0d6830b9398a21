// Package domain holds identifier types shared across features. Distinct UUID
// wrappers keep tenant and user identifiers from being swapped at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
)

// TenantID identifies a tenant. The zero value means "no tenant" and is used
// for global/system-scoped rows such as shared masking rules.
type TenantID uuid.UUID

// UserID identifies an accessor (end user, admin, or service principal).
type UserID uuid.UUID

func (t TenantID) String() string { return uuid.UUID(t).String() }
func (t TenantID) IsNil() bool    { return uuid.UUID(t) == uuid.Nil }

func (u UserID) String() string { return uuid.UUID(u).String() }
func (u UserID) IsNil() bool    { return uuid.UUID(u) == uuid.Nil }

// ParseTenantID parses and validates a tenant identifier.
func ParseTenantID(raw string) (TenantID, error) {
	id, err := parseUUID(raw)
	if err != nil {
		return TenantID{}, err
	}
	return TenantID(id), nil
}

// ParseUserID parses and validates a user identifier.
func ParseUserID(raw string) (UserID, error) {
	id, err := parseUUID(raw)
	if err != nil {
		return UserID{}, err
	}
	return UserID(id), nil
}

func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "identifier must not be empty")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "identifier is not a valid UUID")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "identifier must not be the nil UUID")
	}
	return id, nil
}
