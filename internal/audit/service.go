package audit

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
)

//go:generate mockgen -source=service.go -destination=mocks/publisher_mock.go -package=mocks Publisher

// Publisher streams committed entries to an external sink. Implementations
// must not block the caller; failures are the publisher's to log.
type Publisher interface {
	Publish(ctx context.Context, entry Entry)
}

// Service records sensitive-data touches and answers reporting queries.
// Persistence failures surface as errors here; the request pipeline decides
// whether to await or fire-and-forget (see transport middleware).
type Service struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// NewService builds the audit service. publisher and metrics may be nil.
func NewService(store Store, publisher Publisher, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("custodia/audit"),
	}
}

// LogParams carries everything needed to record one sensitive-data touch.
type LogParams struct {
	TenantID      *id.TenantID
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
}

// LogSensitiveAccess computes the risk tier, appends one immutable entry, and
// hands it to the publisher. PHI touches must carry a reason.
func (s *Service) LogSensitiveAccess(ctx context.Context, params LogParams) (uuid.UUID, error) {
	ctx, span := s.tracer.Start(ctx, "audit.LogSensitiveAccess")
	defer span.End()

	if params.DataCategory == CategoryPHI && params.Reason == "" {
		return uuid.Nil, dErrors.New(dErrors.CodePolicyViolation, "PHI access requires an access reason")
	}

	entry := Entry{
		ID:            uuid.New(),
		TenantID:      params.TenantID,
		AccessorKind:  params.AccessorKind,
		AccessorID:    params.AccessorID,
		AccessorEmail: params.AccessorEmail,
		AccessorRole:  params.AccessorRole,
		DataCategory:  params.DataCategory,
		ResourceType:  params.ResourceType,
		ResourceID:    params.ResourceID,
		Fields:        params.Fields,
		AccessKind:    params.AccessKind,
		Reason:        params.Reason,
		ReasonDetail:  params.ReasonDetail,
		TicketRef:     params.TicketRef,
		Client:        params.Client,
		RiskTier:      ComputeRiskTier(params.DataCategory, params.AccessKind, params.AccessorKind),
		CreatedAt:     time.Now(),
	}

	if err := s.store.Append(ctx, &entry); err != nil {
		if s.metrics != nil {
			s.metrics.AccessLogFailures.Inc()
		}
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "append access log")
	}
	if s.metrics != nil {
		s.metrics.AccessLogsRecorded.WithLabelValues(string(entry.RiskTier)).Inc()
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, entry)
	}
	return entry.ID, nil
}

// GetAccessLogs returns matching entries, newest first, with the total count
// before pagination.
func (s *Service) GetAccessLogs(ctx context.Context, filter Filter) ([]Entry, int, error) {
	ctx, span := s.tracer.Start(ctx, "audit.GetAccessLogs")
	defer span.End()

	entries, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "list access logs")
	}
	return entries, total, nil
}

// FlagAccessLog marks an entry for review. This is the only mutation allowed
// on a recorded entry.
func (s *Service) FlagAccessLog(ctx context.Context, entryID uuid.UUID, reason string, reviewerID id.UserID) error {
	ctx, span := s.tracer.Start(ctx, "audit.FlagAccessLog")
	defer span.End()

	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, "flag reason must not be empty")
	}
	err := s.store.Flag(ctx, entryID, reason, reviewerID, time.Now())
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "access log entry not found")
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "flag access log")
}
