package compliance

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"custodia/internal/platform/metrics"
	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// Service runs the compliance program tracker. It owns the derived
// completion percentage and assignment status; callers never set those
// directly.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewService(store Store, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("custodia/compliance"),
	}
}

// PackParams carries a new pack template.
type PackParams struct {
	Code          string
	Name          string
	Description   string
	Regulation    string
	Countries     []string
	BusinessTypes []string
	Default       bool
}

// CreatePack registers a pack template. The code must be unique.
func (s *Service) CreatePack(ctx context.Context, params PackParams) (*Pack, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.CreatePack")
	defer span.End()

	if params.Code == "" || params.Name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "pack code and name must not be empty")
	}
	now := time.Now()
	pack := &Pack{
		ID:            uuid.New(),
		Code:          params.Code,
		Name:          params.Name,
		Description:   params.Description,
		Regulation:    params.Regulation,
		Countries:     params.Countries,
		BusinessTypes: params.BusinessTypes,
		Active:        true,
		Default:       params.Default,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreatePack(ctx, pack); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "pack code already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "create pack")
	}
	return pack, nil
}

// ItemParams carries a new checklist item.
type ItemParams struct {
	Category         string
	Title            string
	Description      string
	Guidance         string
	Priority         ItemPriority
	Mandatory        bool
	RequiresEvidence bool
	EvidenceTypes    []string
	DueDays          *int
	SortOrder        int
}

// AddChecklistItem appends an item to a pack and bumps the pack's item
// counter in the same transaction.
func (s *Service) AddChecklistItem(ctx context.Context, packID uuid.UUID, params ItemParams) (*ChecklistItem, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.AddChecklistItem")
	defer span.End()

	if params.Title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "item title must not be empty")
	}
	item := &ChecklistItem{
		ID:               uuid.New(),
		PackID:           packID,
		Category:         params.Category,
		Title:            params.Title,
		Description:      params.Description,
		Guidance:         params.Guidance,
		Priority:         params.Priority,
		Mandatory:        params.Mandatory,
		RequiresEvidence: params.RequiresEvidence,
		EvidenceTypes:    params.EvidenceTypes,
		DueDays:          params.DueDays,
		SortOrder:        params.SortOrder,
		CreatedAt:        time.Now(),
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateItem(ctx, item); err != nil {
			return err
		}
		return s.store.AdjustPackTotalItems(ctx, packID, 1)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "pack not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "add checklist item")
	}
	return item, nil
}

// RemoveChecklistItem deletes an item and decrements the pack's counter in
// the same transaction. The counter floors at zero.
func (s *Service) RemoveChecklistItem(ctx context.Context, itemID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "compliance.RemoveChecklistItem")
	defer span.End()

	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "checklist item not found")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "load checklist item")
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.DeleteItem(ctx, itemID); err != nil {
			return err
		}
		return s.store.AdjustPackTotalItems(ctx, item.PackID, -1)
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "remove checklist item")
	}
	return nil
}

// GetPacks lists every pack template.
func (s *Service) GetPacks(ctx context.Context) ([]Pack, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.GetPacks")
	defer span.End()

	packs, err := s.store.ListPacks(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list packs")
	}
	return packs, nil
}

// GetPackItems lists a pack's checklist in sort order.
func (s *Service) GetPackItems(ctx context.Context, packID uuid.UUID) ([]ChecklistItem, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.GetPackItems")
	defer span.End()

	if _, err := s.store.GetPack(ctx, packID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "pack not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "load pack")
	}
	items, err := s.store.ListItems(ctx, packID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list checklist items")
	}
	return items, nil
}

// AssignPackToTenant assigns a pack and snapshots its current checklist into
// one not_started progress row per item. The per-item due date is the
// assignment due date minus the item's lead days when both are set. The
// snapshot commits with the assignment row or not at all.
func (s *Service) AssignPackToTenant(ctx context.Context, tenantID id.TenantID, packID uuid.UUID, assignedBy id.UserID, dueDate *time.Time) (*TenantPack, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.AssignPackToTenant")
	defer span.End()

	if _, err := s.store.GetPack(ctx, packID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "pack not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "load pack")
	}
	items, err := s.store.ListItems(ctx, packID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list checklist items")
	}

	now := time.Now()
	assignment := &TenantPack{
		ID:         uuid.New(),
		TenantID:   tenantID,
		PackID:     packID,
		AssignedBy: assignedBy,
		DueDate:    dueDate,
		Status:     PackActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	rows := make([]Progress, 0, len(items))
	for _, item := range items {
		rows = append(rows, Progress{
			ID:        uuid.New(),
			TenantID:  tenantID,
			PackID:    packID,
			ItemID:    item.ID,
			Status:    ProgressNotStarted,
			DueDate:   itemDueDate(dueDate, item.DueDays),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.InsertAssignment(ctx, assignment); err != nil {
			return err
		}
		return s.store.InsertProgress(ctx, rows)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "pack already assigned to tenant")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "assign pack")
	}
	if s.metrics != nil {
		s.metrics.PacksAssigned.Inc()
	}
	s.logger.InfoContext(ctx, "compliance pack assigned",
		"tenant_id", tenantID.String(),
		"pack_id", packID.String(),
		"items", len(rows),
	)
	return assignment, nil
}

// itemDueDate derives a per-item due date as the pack due date minus the
// item's lead days. Either side missing means no per-item date.
func itemDueDate(packDue *time.Time, dueDays *int) *time.Time {
	if packDue == nil || dueDays == nil {
		return nil
	}
	due := packDue.AddDate(0, 0, -*dueDays)
	return &due
}

// ProgressPatch is a partial update to one progress row. Nil fields are left
// unchanged.
type ProgressPatch struct {
	Status              *ProgressStatus
	Notes               *string
	EvidenceRef         *string
	EvidenceDescription *string
	AssignedTo          *id.UserID
}

// UpdateItemProgress applies the patch, stamping startedAt on entering
// in_progress and completedAt/completedBy on entering completed, then
// recomputes the pack roll-up. Both writes share one transaction so a
// concurrent reader never sees the row updated but the percentage stale.
func (s *Service) UpdateItemProgress(ctx context.Context, tenantID id.TenantID, packID, itemID uuid.UUID, patch ProgressPatch, userID id.UserID) (*Progress, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.UpdateItemProgress")
	defer span.End()

	row, err := s.store.GetProgress(ctx, tenantID, packID, itemID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "progress row not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "load progress row")
	}

	now := time.Now()
	if patch.Status != nil {
		if _, err := ParseProgressStatus(string(*patch.Status)); err != nil {
			return nil, err
		}
		if *patch.Status != row.Status {
			switch *patch.Status {
			case ProgressInProgress:
				row.StartedAt = &now
			case ProgressCompleted:
				row.CompletedAt = &now
				completer := userID
				row.CompletedBy = &completer
			}
			if s.metrics != nil {
				s.metrics.ProgressTransitions.WithLabelValues(string(*patch.Status)).Inc()
			}
		}
		row.Status = *patch.Status
	}
	if patch.Notes != nil {
		row.Notes = *patch.Notes
	}
	if patch.EvidenceRef != nil {
		row.EvidenceRef = *patch.EvidenceRef
	}
	if patch.EvidenceDescription != nil {
		row.EvidenceDescription = *patch.EvidenceDescription
	}
	if patch.AssignedTo != nil {
		row.AssignedTo = patch.AssignedTo
	}
	row.UpdatedAt = now

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateProgress(ctx, row); err != nil {
			return err
		}
		return s.recomputeRollup(ctx, tenantID, packID)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "update item progress")
	}
	return row, nil
}

// UpdatePackCompletionPercentage recomputes the roll-up for one assignment
// outside any ongoing progress update.
func (s *Service) UpdatePackCompletionPercentage(ctx context.Context, tenantID id.TenantID, packID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "compliance.UpdatePackCompletionPercentage")
	defer span.End()

	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		return s.recomputeRollup(ctx, tenantID, packID)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "pack assignment not found")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "recompute completion percentage")
	}
	return nil
}

// recomputeRollup derives the assignment's completion percentage from its
// progress rows. percentage = round(100 * (completed + not_applicable) /
// total); 100 flips the assignment to completed and stamps completedAt,
// anything less keeps it active.
func (s *Service) recomputeRollup(ctx context.Context, tenantID id.TenantID, packID uuid.UUID) error {
	assignment, err := s.store.GetAssignment(ctx, tenantID, packID)
	if err != nil {
		return err
	}
	rows, err := s.store.ListProgress(ctx, tenantID, packID)
	if err != nil {
		return err
	}

	percentage := completionPercentage(rows)
	now := time.Now()
	assignment.CompletionPercentage = percentage
	assignment.UpdatedAt = now
	if percentage == 100 {
		if assignment.Status != PackCompleted {
			assignment.CompletedAt = &now
		}
		assignment.Status = PackCompleted
	} else {
		assignment.Status = PackActive
		assignment.CompletedAt = nil
	}
	return s.store.UpdateAssignment(ctx, assignment)
}

func completionPercentage(rows []Progress) int {
	if len(rows) == 0 {
		return 0
	}
	done := 0
	for _, row := range rows {
		if row.Status.CountsTowardCompletion() {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(rows))))
}

// GetComplianceSummary aggregates a tenant's standing across all assigned
// packs. Assignments and progress rows load concurrently.
func (s *Service) GetComplianceSummary(ctx context.Context, tenantID id.TenantID) (*Summary, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.GetComplianceSummary")
	defer span.End()

	var (
		assignments []TenantPack
		rows        []Progress
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		assignments, err = s.store.ListAssignments(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = s.store.ListTenantProgress(gctx, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "load compliance summary")
	}

	summary := &Summary{TenantID: tenantID, TotalPacks: len(assignments)}
	for _, assignment := range assignments {
		if assignment.Status == PackCompleted {
			summary.CompletedPacks++
		}
	}
	done := 0
	for _, row := range rows {
		summary.TotalItems++
		switch row.Status {
		case ProgressInProgress:
			summary.InProgressItems++
		case ProgressOverdue:
			summary.OverdueItems++
		}
		if row.Status.CountsTowardCompletion() {
			done++
		}
		if row.Status == ProgressCompleted {
			summary.CompletedItems++
		}
	}
	if summary.TotalItems > 0 {
		summary.OverallPercentage = int(math.Round(100 * float64(done) / float64(summary.TotalItems)))
	}
	return summary, nil
}
