package breach

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
	"custodia/pkg/platform/sentinel"
	strutil "custodia/pkg/platform/strings"
)

// Service maintains the breach register.
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
		tracer:  otel.Tracer("custodia/breach"),
	}
}

// ReportParams carries one inbound incident report.
type ReportParams struct {
	TenantID           *id.TenantID
	BreachType         Type
	Severity           Severity
	Regulation         string
	Title              string
	Description        string
	DiscoveredAt       time.Time
	OccurredAt         *time.Time
	AffectedCategories []string
	AffectedSubjects   int
	ContainmentActions string
	ReportedBy         id.UserID
}

// ReportDataBreach registers an incident with its notification deadline fixed
// at discovery + 72 hours, status investigating.
func (s *Service) ReportDataBreach(ctx context.Context, params ReportParams) (*Record, error) {
	ctx, span := s.tracer.Start(ctx, "breach.ReportDataBreach")
	defer span.End()

	if _, err := ParseType(string(params.BreachType)); err != nil {
		return nil, err
	}
	if _, err := ParseSeverity(string(params.Severity)); err != nil {
		return nil, err
	}
	if params.DiscoveredAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "discoveredAt must be set")
	}

	record := &Record{
		ID:                 uuid.New(),
		TenantID:           params.TenantID,
		BreachType:         params.BreachType,
		Severity:           params.Severity,
		Regulation:         params.Regulation,
		Title:              params.Title,
		Description:        params.Description,
		DiscoveredAt:       params.DiscoveredAt,
		OccurredAt:         params.OccurredAt,
		ReportDeadline:     params.DiscoveredAt.Add(ReportWindow),
		AffectedCategories: strutil.DedupeAndTrimLower(params.AffectedCategories),
		AffectedSubjects:   params.AffectedSubjects,
		ContainmentActions: params.ContainmentActions,
		ReportedBy:         params.ReportedBy,
		Status:             StatusInvestigating,
		CreatedAt:          time.Now(),
	}
	if err := s.store.Insert(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "report data breach")
	}
	if s.metrics != nil {
		s.metrics.BreachesReported.Inc()
	}
	s.logger.InfoContext(ctx, "data breach reported",
		"breach_id", record.ID.String(),
		"severity", string(record.Severity),
		"report_deadline", record.ReportDeadline,
	)
	return record, nil
}

// GetBreaches returns matching records, newest discovery first, with the
// total count before pagination.
func (s *Service) GetBreaches(ctx context.Context, filter Filter) ([]Record, int, error) {
	ctx, span := s.tracer.Start(ctx, "breach.GetBreaches")
	defer span.End()

	records, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "list breaches")
	}
	return records, total, nil
}

// GetBreach returns a single register entry.
func (s *Service) GetBreach(ctx context.Context, recordID uuid.UUID) (*Record, error) {
	ctx, span := s.tracer.Start(ctx, "breach.GetBreach")
	defer span.End()

	record, err := s.store.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "breach not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "load breach")
	}
	return record, nil
}
