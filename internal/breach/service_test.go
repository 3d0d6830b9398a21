package breach

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
	"custodia/pkg/testutil"
)

type BreachServiceSuite struct {
	suite.Suite
	store    *InMemoryStore
	service  *Service
	ctx      context.Context
	tenant   id.TenantID
	reporter id.UserID
}

func (s *BreachServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.service = NewService(s.store, testutil.Logger(), nil)
	s.ctx = context.Background()
	s.tenant = id.TenantID(uuid.New())
	s.reporter = id.UserID(uuid.New())
}

func TestBreachServiceSuite(t *testing.T) {
	suite.Run(t, new(BreachServiceSuite))
}

func (s *BreachServiceSuite) report(severity Severity, discoveredAt time.Time) *Record {
	record, err := s.service.ReportDataBreach(s.ctx, ReportParams{
		TenantID:     &s.tenant,
		BreachType:   TypeUnauthorizedAccess,
		Severity:     severity,
		Regulation:   "gdpr",
		Title:        "exposed export bucket",
		DiscoveredAt: discoveredAt,
		ReportedBy:   s.reporter,
	})
	s.Require().NoError(err)
	return record
}

func (s *BreachServiceSuite) TestReportDataBreach() {
	s.Run("fixes the report deadline at discovery plus 72 hours", func() {
		discovered := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
		record := s.report(SeverityHigh, discovered)
		s.Equal(discovered.Add(72*time.Hour), record.ReportDeadline)
		s.Equal(StatusInvestigating, record.Status)
	})

	s.Run("rejects an unknown breach type", func() {
		_, err := s.service.ReportDataBreach(s.ctx, ReportParams{
			BreachType:   Type("gremlins"),
			Severity:     SeverityLow,
			DiscoveredAt: time.Now(),
			ReportedBy:   s.reporter,
		})
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("rejects an unknown severity", func() {
		_, err := s.service.ReportDataBreach(s.ctx, ReportParams{
			BreachType:   TypeDataLeak,
			Severity:     Severity("catastrophic"),
			DiscoveredAt: time.Now(),
			ReportedBy:   s.reporter,
		})
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("rejects a zero discovery time", func() {
		_, err := s.service.ReportDataBreach(s.ctx, ReportParams{
			BreachType: TypeRansomware,
			Severity:   SeverityCritical,
			ReportedBy: s.reporter,
		})
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})
}

func (s *BreachServiceSuite) TestGetBreach() {
	record := s.report(SeverityMedium, time.Now().Add(-time.Hour))

	loaded, err := s.service.GetBreach(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(record.ID, loaded.ID)

	s.Run("unknown id is not found", func() {
		_, err := s.service.GetBreach(s.ctx, uuid.New())
		s.Require().Error(err)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})
}

func (s *BreachServiceSuite) TestGetBreaches() {
	older := s.report(SeverityLow, time.Now().Add(-48*time.Hour))
	newer := s.report(SeverityCritical, time.Now().Add(-time.Hour))

	s.Run("newest discovery first", func() {
		records, total, err := s.service.GetBreaches(s.ctx, Filter{TenantID: &s.tenant})
		s.Require().NoError(err)
		s.Equal(2, total)
		s.Equal(newer.ID, records[0].ID)
		s.Equal(older.ID, records[1].ID)
	})

	s.Run("filters by severity", func() {
		records, total, err := s.service.GetBreaches(s.ctx, Filter{Severity: SeverityCritical})
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Equal(newer.ID, records[0].ID)
	})
}
