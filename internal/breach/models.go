package breach

import (
	"time"

	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
)

// Type classifies how the incident happened.
type Type string

const (
	TypeUnauthorizedAccess Type = "unauthorized_access"
	TypeDataLeak           Type = "data_leak"
	TypeRansomware         Type = "ransomware"
	TypeInsiderThreat      Type = "insider_threat"
	TypeLostDevice         Type = "lost_device"
	TypeMisconfiguration   Type = "misconfiguration"
	TypeOther              Type = "other"
)

// ParseType validates a breach type received at a boundary.
func ParseType(raw string) (Type, error) {
	switch Type(raw) {
	case TypeUnauthorizedAccess, TypeDataLeak, TypeRansomware,
		TypeInsiderThreat, TypeLostDevice, TypeMisconfiguration, TypeOther:
		return Type(raw), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown breach type: "+raw)
}

// Severity is the assessed impact level.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity validates a severity received at a boundary.
func ParseSeverity(raw string) (Severity, error) {
	switch Severity(raw) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(raw), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown breach severity: "+raw)
}

// Status is the investigation state. Every register entry starts at
// investigating; further lifecycle movement happens in external reporting
// tooling, not here.
type Status string

const (
	StatusInvestigating Status = "investigating"
	StatusContained     Status = "contained"
	StatusReported      Status = "reported"
	StatusResolved      Status = "resolved"
)

// ReportWindow is the statutory notification window counted from discovery,
// the same for every supported regulation.
const ReportWindow = 72 * time.Hour

// Record is one registered incident.
type Record struct {
	ID                 uuid.UUID
	TenantID           *id.TenantID
	BreachType         Type
	Severity           Severity
	Regulation         string
	Title              string
	Description        string
	DiscoveredAt       time.Time
	OccurredAt         *time.Time
	ReportDeadline     time.Time
	AffectedCategories []string
	AffectedSubjects   int
	ContainmentActions string
	ReportedBy         id.UserID
	Status             Status
	CreatedAt          time.Time
}
