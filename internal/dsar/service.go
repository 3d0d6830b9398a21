package dsar

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"custodia/internal/platform/metrics"
	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
	"custodia/pkg/email"
	"custodia/pkg/platform/sentinel"
	strutil "custodia/pkg/platform/strings"
)

// Service moves data-subject requests through the lifecycle and keeps the
// activity trail append-only.
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
		tracer:  otel.Tracer("custodia/dsar"),
	}
}

// CreateParams carries one inbound data-subject request.
type CreateParams struct {
	TenantID       id.TenantID
	RequestType    RequestType
	SubjectName    string
	SubjectEmail   string
	SubjectID      string
	DataCategories []string
	Regulation     Regulation
	Details        string
	CreatedBy      id.UserID
	CreatedByEmail string
}

// CreateDSAR registers a request with its statutory response deadline and
// writes the first activity row.
func (s *Service) CreateDSAR(ctx context.Context, params CreateParams) (*Request, error) {
	ctx, span := s.tracer.Start(ctx, "dsar.CreateDSAR")
	defer span.End()

	if _, err := ParseRequestType(string(params.RequestType)); err != nil {
		return nil, err
	}
	if params.SubjectEmail == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subject email must not be empty")
	}
	if params.SubjectName == "" {
		first, last := email.DeriveNameFromEmail(params.SubjectEmail)
		params.SubjectName = first + " " + last
	}

	now := time.Now()
	request := &Request{
		ID:               uuid.New(),
		TenantID:         params.TenantID,
		RequestType:      params.RequestType,
		SubjectName:      params.SubjectName,
		SubjectEmail:     params.SubjectEmail,
		SubjectID:        params.SubjectID,
		DataCategories:   strutil.DedupeAndTrimLower(params.DataCategories),
		Regulation:       params.Regulation,
		Details:          params.Details,
		Status:           StatusSubmitted,
		ResponseDeadline: now.Add(ResponseWindow),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Insert(ctx, request); err != nil {
			return err
		}
		return s.store.AppendActivity(ctx, &ActivityEntry{
			ID:               uuid.New(),
			RequestID:        request.ID,
			Action:           ActionCreated,
			NewStatus:        StatusSubmitted,
			PerformedBy:      params.CreatedBy,
			PerformedByEmail: params.CreatedByEmail,
			CreatedAt:        now,
		})
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "create DSAR")
	}
	if s.metrics != nil {
		s.metrics.DSARsCreated.WithLabelValues(string(request.RequestType)).Inc()
	}
	return request, nil
}

// UpdateDSARStatus validates the transition against the lifecycle table,
// stamps acknowledgement/completion times, persists the new status, and
// appends one activity row capturing the transition.
func (s *Service) UpdateDSARStatus(ctx context.Context, requestID uuid.UUID, newStatus Status, performedBy id.UserID, performedByEmail, notes string) (*Request, error) {
	ctx, span := s.tracer.Start(ctx, "dsar.UpdateDSARStatus")
	defer span.End()

	request, err := s.store.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "DSAR not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "load DSAR")
	}

	previous := request.Status
	if !CanTransition(previous, newStatus) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation,
			"illegal DSAR transition from "+string(previous)+" to "+string(newStatus))
	}

	now := time.Now()
	request.Status = newStatus
	request.UpdatedAt = now
	switch newStatus {
	case StatusAcknowledged:
		request.AcknowledgedAt = &now
	case StatusCompleted:
		request.CompletedAt = &now
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateStatus(ctx, request); err != nil {
			return err
		}
		return s.store.AppendActivity(ctx, &ActivityEntry{
			ID:               uuid.New(),
			RequestID:        request.ID,
			Action:           StatusChangeAction(newStatus),
			PreviousStatus:   previous,
			NewStatus:        newStatus,
			PerformedBy:      performedBy,
			PerformedByEmail: performedByEmail,
			Notes:            notes,
			CreatedAt:        now,
		})
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "update DSAR status")
	}

	s.logger.InfoContext(ctx, "dsar status changed",
		"request_id", request.ID.String(),
		"previous_status", string(previous),
		"new_status", string(newStatus),
	)
	return request, nil
}

// GetDSARs returns matching requests, newest first, with the total count
// before pagination.
func (s *Service) GetDSARs(ctx context.Context, filter Filter) ([]Request, int, error) {
	ctx, span := s.tracer.Start(ctx, "dsar.GetDSARs")
	defer span.End()

	requests, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "list DSARs")
	}
	return requests, total, nil
}

// GetDSARActivityLog returns the request's full trail, newest first.
func (s *Service) GetDSARActivityLog(ctx context.Context, requestID uuid.UUID) ([]ActivityEntry, error) {
	ctx, span := s.tracer.Start(ctx, "dsar.GetDSARActivityLog")
	defer span.End()

	if _, err := s.store.Get(ctx, requestID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "DSAR not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "load DSAR")
	}
	entries, err := s.store.ListActivity(ctx, requestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list DSAR activity")
	}
	return entries, nil
}
