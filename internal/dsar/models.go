package dsar

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
)

// RequestType is the right the data subject is exercising.
type RequestType string

const (
	TypeAccess        RequestType = "access"
	TypeRectification RequestType = "rectification"
	TypeErasure       RequestType = "erasure"
	TypePortability   RequestType = "portability"
	TypeRestriction   RequestType = "restriction"
	TypeObjection     RequestType = "objection"
)

// ParseRequestType validates a request type received at a boundary.
func ParseRequestType(raw string) (RequestType, error) {
	switch RequestType(raw) {
	case TypeAccess, TypeRectification, TypeErasure, TypePortability,
		TypeRestriction, TypeObjection:
		return RequestType(raw), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown DSAR request type: "+raw)
}

// Status is the lifecycle state of a request.
type Status string

const (
	StatusSubmitted           Status = "submitted"
	StatusAcknowledged        Status = "acknowledged"
	StatusInProgress          Status = "in_progress"
	StatusPendingVerification Status = "pending_verification"
	StatusCompleted           Status = "completed"
	StatusRejected            Status = "rejected"
	StatusExpired             Status = "expired"
)

// transitions is the allowed next-status table. Rejected and expired are
// reachable from every non-terminal state; pending_verification may fall back
// to in_progress when verification fails.
var transitions = map[Status][]Status{
	StatusSubmitted:           {StatusAcknowledged, StatusRejected, StatusExpired},
	StatusAcknowledged:        {StatusInProgress, StatusRejected, StatusExpired},
	StatusInProgress:          {StatusPendingVerification, StatusRejected, StatusExpired},
	StatusPendingVerification: {StatusCompleted, StatusInProgress, StatusRejected, StatusExpired},
	StatusCompleted:           {},
	StatusRejected:            {},
	StatusExpired:             {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Regulation tags the jurisdictional regime a request falls under.
type Regulation string

const (
	RegulationGDPR   Regulation = "gdpr"
	RegulationPDPASG Regulation = "pdpa_sg"
	RegulationPDPAMY Regulation = "pdpa_my"
	RegulationDPDP   Regulation = "dpdp"
	RegulationUAEDPL Regulation = "uae_dpl"
)

// ResponseWindow is the statutory response period applied at creation.
// All supported regulations currently share the 30-day window; the
// regulation stays on the record so per-regime windows can diverge later
// without a data migration.
const ResponseWindow = 30 * 24 * time.Hour

// Request is one data-subject request moving through the lifecycle.
type Request struct {
	ID               uuid.UUID
	TenantID         id.TenantID
	RequestType      RequestType
	SubjectName      string
	SubjectEmail     string
	SubjectID        string
	DataCategories   []string
	Regulation       Regulation
	Details          string
	Status           Status
	ResponseDeadline time.Time
	AcknowledgedAt   *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ActivityEntry is one append-only trail row. One is written at creation and
// on every status transition; rows are never rewritten.
type ActivityEntry struct {
	ID               uuid.UUID
	RequestID        uuid.UUID
	Action           string
	PreviousStatus   Status
	NewStatus        Status
	PerformedBy      id.UserID
	PerformedByEmail string
	Notes            string
	CreatedAt        time.Time
}

// Activity action labels.
const (
	ActionCreated            = "DSAR_CREATED"
	actionStatusChangePrefix = "STATUS_CHANGED_TO_"
)

// StatusChangeAction builds the trail label for a transition.
func StatusChangeAction(to Status) string {
	return actionStatusChangePrefix + strings.ToUpper(string(to))
}
