package consent

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

// Service is the consent ledger. It keeps orchestration out of handlers and
// guarantees the supersession invariant: at most one granted record per
// (tenant, subject type, subject id, consent type) key at any instant.
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
		tracer:  otel.Tracer("custodia/consent"),
	}
}

// RecordParams carries one consent grant.
type RecordParams struct {
	TenantID         id.TenantID
	SubjectType      SubjectType
	SubjectID        string
	ConsentType      Type
	Purpose          string
	LegalBasis       LegalBasis
	ConsentText      string
	ConsentVersion   string
	ExpiresAt        *time.Time
	CollectedBy      string
	CollectionMethod string
	CollectionIP     string
}

// RecordConsent withdraws any existing granted record for the key, then
// inserts the new grant — both inside one store transaction so a concurrent
// reader never sees two granted rows.
func (s *Service) RecordConsent(ctx context.Context, params RecordParams) (*Record, error) {
	ctx, span := s.tracer.Start(ctx, "consent.RecordConsent")
	defer span.End()

	if params.SubjectID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subject id must not be empty")
	}
	if _, err := ParseType(string(params.ConsentType)); err != nil {
		return nil, err
	}

	now := time.Now()
	record := &Record{
		ID:               uuid.New(),
		TenantID:         params.TenantID,
		SubjectType:      params.SubjectType,
		SubjectID:        params.SubjectID,
		ConsentType:      params.ConsentType,
		Status:           StatusGranted,
		Purpose:          params.Purpose,
		LegalBasis:       params.LegalBasis,
		ConsentText:      params.ConsentText,
		ConsentVersion:   params.ConsentVersion,
		ExpiresAt:        params.ExpiresAt,
		CollectedBy:      params.CollectedBy,
		CollectionMethod: params.CollectionMethod,
		CollectionIP:     params.CollectionIP,
		GrantedAt:        now,
		CreatedAt:        now,
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		superseded, err := s.store.Withdraw(ctx, record.Key(), SupersededReason, now)
		if err != nil {
			return err
		}
		if superseded {
			s.logger.InfoContext(ctx, "consent superseded",
				"tenant_id", record.TenantID.String(),
				"subject_id", record.SubjectID,
				"consent_type", string(record.ConsentType),
			)
		}
		return s.store.Insert(ctx, record)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "record consent")
	}
	if s.metrics != nil {
		s.metrics.ConsentsGranted.Inc()
	}
	return record, nil
}

// WithdrawConsent transitions the key's granted record to withdrawn with the
// caller's reason. Succeeds trivially when nothing is granted.
func (s *Service) WithdrawConsent(ctx context.Context, key Key, reason string) error {
	ctx, span := s.tracer.Start(ctx, "consent.WithdrawConsent")
	defer span.End()

	withdrawn, err := s.store.Withdraw(ctx, key, reason, time.Now())
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "withdraw consent")
	}
	if withdrawn && s.metrics != nil {
		s.metrics.ConsentsWithdrawn.Inc()
	}
	return nil
}

// CheckConsent reports whether a currently granted, non-expired consent exists
// for the key and returns the most recent such record.
func (s *Service) CheckConsent(ctx context.Context, key Key) (bool, *Record, error) {
	ctx, span := s.tracer.Start(ctx, "consent.CheckConsent")
	defer span.End()

	record, err := s.store.CurrentGranted(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil, nil
		}
		return false, nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "check consent")
	}
	if !record.ActiveAt(time.Now()) {
		return false, nil, nil
	}
	return true, record, nil
}

// GetSubjectConsents lists the subject's full consent history, newest grant
// first, irrespective of status.
func (s *Service) GetSubjectConsents(ctx context.Context, tenantID id.TenantID, subjectType SubjectType, subjectID string) ([]Record, error) {
	ctx, span := s.tracer.Start(ctx, "consent.GetSubjectConsents")
	defer span.End()

	records, err := s.store.ListBySubject(ctx, tenantID, subjectType, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list subject consents")
	}
	return records, nil
}
