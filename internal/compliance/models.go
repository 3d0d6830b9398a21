package compliance

import (
	"time"

	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
)

// Pack is a reusable checklist template. TotalItems is a denormalized count
// of the pack's checklist items, maintained by the item mutators rather than
// recomputed on read.
type Pack struct {
	ID            uuid.UUID
	Code          string
	Name          string
	Description   string
	Regulation    string
	Countries     []string
	BusinessTypes []string
	Active        bool
	Default       bool
	TotalItems    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AppliesTo reports whether the pack covers the given country and business
// type. Empty applicability lists mean the pack applies to everything.
func (p Pack) AppliesTo(country, businessType string) bool {
	return matchesList(p.Countries, country) && matchesList(p.BusinessTypes, businessType)
}

func matchesList(list []string, value string) bool {
	if len(list) == 0 {
		return true
	}
	for _, candidate := range list {
		if candidate == value {
			return true
		}
	}
	return false
}

// ItemPriority ranks a checklist item.
type ItemPriority string

const (
	PriorityLow      ItemPriority = "low"
	PriorityMedium   ItemPriority = "medium"
	PriorityHigh     ItemPriority = "high"
	PriorityCritical ItemPriority = "critical"
)

// ChecklistItem is one obligation within a pack.
type ChecklistItem struct {
	ID               uuid.UUID
	PackID           uuid.UUID
	Category         string
	Title            string
	Description      string
	Guidance         string
	Priority         ItemPriority
	Mandatory        bool
	RequiresEvidence bool
	EvidenceTypes    []string
	// DueDays is the lead time before the pack due date; nil means no
	// per-item due date is derived at assignment.
	DueDays   *int
	SortOrder int
	CreatedAt time.Time
}

// PackStatus is the state of a tenant's assignment.
type PackStatus string

const (
	PackActive    PackStatus = "active"
	PackCompleted PackStatus = "completed"
)

// TenantPack assigns one pack to one tenant. The pair is unique; the
// completion percentage and status are derived from progress rows and never
// hand-edited.
type TenantPack struct {
	ID                   uuid.UUID
	TenantID             id.TenantID
	PackID               uuid.UUID
	AssignedBy           id.UserID
	DueDate              *time.Time
	Status               PackStatus
	CompletionPercentage int
	CompletedAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ProgressStatus is the state of one item for one tenant.
type ProgressStatus string

const (
	ProgressNotStarted    ProgressStatus = "not_started"
	ProgressInProgress    ProgressStatus = "in_progress"
	ProgressCompleted     ProgressStatus = "completed"
	ProgressNotApplicable ProgressStatus = "not_applicable"
	ProgressOverdue       ProgressStatus = "overdue"
)

// ParseProgressStatus validates a progress status received at a boundary.
func ParseProgressStatus(raw string) (ProgressStatus, error) {
	switch ProgressStatus(raw) {
	case ProgressNotStarted, ProgressInProgress, ProgressCompleted,
		ProgressNotApplicable, ProgressOverdue:
		return ProgressStatus(raw), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown progress status: "+raw)
}

// Counts toward completion: completed and not_applicable both satisfy the
// roll-up numerator.
func (s ProgressStatus) CountsTowardCompletion() bool {
	return s == ProgressCompleted || s == ProgressNotApplicable
}

// Progress is one row per (tenant, pack, item), snapshotted in bulk when the
// pack is assigned. Later pack edits do not add rows retroactively.
type Progress struct {
	ID                  uuid.UUID
	TenantID            id.TenantID
	PackID              uuid.UUID
	ItemID              uuid.UUID
	Status              ProgressStatus
	Notes               string
	EvidenceRef         string
	EvidenceDescription string
	AssignedTo          *id.UserID
	DueDate             *time.Time
	StartedAt           *time.Time
	CompletedAt         *time.Time
	CompletedBy         *id.UserID
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Summary aggregates a tenant's standing across every assigned pack.
type Summary struct {
	TenantID          id.TenantID
	TotalPacks        int
	CompletedPacks    int
	TotalItems        int
	CompletedItems    int
	InProgressItems   int
	OverdueItems      int
	OverallPercentage int
}
