package consent

import (
	"time"

	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
)

// SubjectType identifies what kind of data subject a consent belongs to.
type SubjectType string

const (
	SubjectEmployee SubjectType = "employee"
	SubjectCustomer SubjectType = "customer"
	SubjectUser     SubjectType = "user"
)

// Type labels what processing the subject consented to.
type Type string

const (
	TypeDataProcessing    Type = "data_processing"
	TypeMarketing         Type = "marketing"
	TypeAnalytics         Type = "analytics"
	TypeThirdPartySharing Type = "third_party_sharing"
	TypeCookies           Type = "cookies"
	TypeBiometric         Type = "biometric"
)

// ParseType validates a consent type received at a boundary.
func ParseType(raw string) (Type, error) {
	switch Type(raw) {
	case TypeDataProcessing, TypeMarketing, TypeAnalytics,
		TypeThirdPartySharing, TypeCookies, TypeBiometric:
		return Type(raw), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown consent type: "+raw)
}

// Status is the lifecycle state of one consent record.
type Status string

const (
	StatusGranted   Status = "granted"
	StatusWithdrawn Status = "withdrawn"
)

// LegalBasis names the lawful ground for processing.
type LegalBasis string

const (
	BasisConsent            LegalBasis = "consent"
	BasisContract           LegalBasis = "contract"
	BasisLegalObligation    LegalBasis = "legal_obligation"
	BasisLegitimateInterest LegalBasis = "legitimate_interest"
	BasisVitalInterest      LegalBasis = "vital_interest"
	BasisPublicTask         LegalBasis = "public_task"
)

// SupersededReason is stamped on the withdrawn record when a new grant
// replaces it.
const SupersededReason = "Superseded by new consent"

// Key identifies the one slot that may hold a granted consent at any instant.
type Key struct {
	TenantID    id.TenantID
	SubjectType SubjectType
	SubjectID   string
	ConsentType Type
}

// Record captures one consent decision with the text and version the subject
// actually saw. History is append-only: withdrawal flips status in place, but
// a new grant is always a new row.
type Record struct {
	ID               uuid.UUID
	TenantID         id.TenantID
	SubjectType      SubjectType
	SubjectID        string
	ConsentType      Type
	Status           Status
	Purpose          string
	LegalBasis       LegalBasis
	ConsentText      string
	ConsentVersion   string
	ExpiresAt        *time.Time // nil never expires
	CollectedBy      string
	CollectionMethod string
	CollectionIP     string
	GrantedAt        time.Time
	WithdrawnAt      *time.Time
	WithdrawalReason string
	CreatedAt        time.Time
}

// Key returns the supersession key of the record.
func (r Record) Key() Key {
	return Key{
		TenantID:    r.TenantID,
		SubjectType: r.SubjectType,
		SubjectID:   r.SubjectID,
		ConsentType: r.ConsentType,
	}
}

// ActiveAt reports whether the record is granted and unexpired at now.
func (r Record) ActiveAt(now time.Time) bool {
	if r.Status != StatusGranted {
		return false
	}
	return r.ExpiresAt == nil || now.Before(*r.ExpiresAt)
}
