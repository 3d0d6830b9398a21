package audit

import (
	"time"

	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
)

// AccessorKind classifies who touched sensitive data.
type AccessorKind string

const (
	AccessorEndUser       AccessorKind = "end_user"
	AccessorTenantAdmin   AccessorKind = "tenant_admin"
	AccessorPlatformAdmin AccessorKind = "platform_admin"
	AccessorSystem        AccessorKind = "system"
)

// DataCategory classifies the sensitivity of the data touched.
type DataCategory string

const (
	CategoryPII            DataCategory = "pii"
	CategoryPHI            DataCategory = "phi"
	CategoryFinancial      DataCategory = "financial"
	CategoryBiometric      DataCategory = "biometric"
	CategoryLocation       DataCategory = "location"
	CategoryAuthentication DataCategory = "authentication"
)

// AccessKind is what was done with the data.
type AccessKind string

const (
	AccessView   AccessKind = "view"
	AccessExport AccessKind = "export"
	AccessModify AccessKind = "modify"
	AccessDelete AccessKind = "delete"
)

// AccessReason is the declared justification for a sensitive touch. PHI
// access must always carry one.
type AccessReason string

const (
	ReasonCustomerRequest         AccessReason = "customer_request"
	ReasonSupportTicket           AccessReason = "support_ticket"
	ReasonComplianceAudit         AccessReason = "compliance_audit"
	ReasonLegalRequirement        AccessReason = "legal_requirement"
	ReasonSystemMaintenance       AccessReason = "system_maintenance"
	ReasonDebugging               AccessReason = "debugging"
	ReasonAuthorizedInvestigation AccessReason = "authorized_investigation"
)

// ValidReasons lists every accepted access reason, in the order surfaced to
// clients in policy-violation responses.
func ValidReasons() []AccessReason {
	return []AccessReason{
		ReasonCustomerRequest,
		ReasonSupportTicket,
		ReasonComplianceAudit,
		ReasonLegalRequirement,
		ReasonSystemMaintenance,
		ReasonDebugging,
		ReasonAuthorizedInvestigation,
	}
}

// ParseAccessReason validates a reason received at a boundary. Unknown values
// are rejected rather than silently defaulted.
func ParseAccessReason(raw string) (AccessReason, error) {
	for _, reason := range ValidReasons() {
		if AccessReason(raw) == reason {
			return reason, nil
		}
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown access reason: "+raw)
}

// RiskTier is the coarse classification attached to each entry.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// ClientMetadata captures network and client details of the request that
// triggered the access.
type ClientMetadata struct {
	IPAddress string
	UserAgent string
	Browser   string
	OS        string
	SessionID string
}

// Entry is one immutable record of a sensitive-data touch. Only the flag
// fields may be patched after creation, and only by a reviewer.
type Entry struct {
	ID            uuid.UUID
	TenantID      *id.TenantID // nil for global/system contexts
	AccessorKind  AccessorKind
	AccessorID    id.UserID
	AccessorEmail string
	AccessorRole  string
	DataCategory  DataCategory
	ResourceType  string
	ResourceID    string
	Fields        []string
	AccessKind    AccessKind
	Reason        AccessReason
	ReasonDetail  string
	TicketRef     string
	Client        ClientMetadata
	RiskTier      RiskTier
	Flagged       bool
	FlagReason    string
	ReviewedBy    *id.UserID
	ReviewedAt    *time.Time
	CreatedAt     time.Time
}

// ComputeRiskTier derives the tier deterministically from what was touched,
// how, and by whom. A platform admin touching PHI is always high risk.
func ComputeRiskTier(category DataCategory, access AccessKind, accessor AccessorKind) RiskTier {
	tier := RiskLow
	if category == CategoryPHI || category == CategoryFinancial {
		tier = RiskMedium
	}
	if access == AccessExport || access == AccessDelete {
		if category == CategoryPHI {
			tier = RiskHigh
		} else if tier == RiskLow {
			tier = RiskMedium
		}
	}
	if accessor == AccessorPlatformAdmin && category == CategoryPHI {
		tier = RiskHigh
	}
	return tier
}
