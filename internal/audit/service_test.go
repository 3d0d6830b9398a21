package audit_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"custodia/internal/audit"
	"custodia/internal/audit/mocks"
	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
	"custodia/pkg/testutil"
)

type AuditServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *audit.InMemoryStore
	publisher *mocks.MockPublisher
	service   *audit.Service
	ctx       context.Context
	tenant    id.TenantID
	accessor  id.UserID
}

func (s *AuditServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = audit.NewInMemoryStore()
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.service = audit.NewService(s.store, s.publisher, testutil.Logger(), nil)
	s.ctx = context.Background()
	s.tenant = id.TenantID(uuid.New())
	s.accessor = id.UserID(uuid.New())
}

func TestAuditServiceSuite(t *testing.T) {
	suite.Run(t, new(AuditServiceSuite))
}

func (s *AuditServiceSuite) params(category audit.DataCategory, access audit.AccessKind, kind audit.AccessorKind) audit.LogParams {
	return audit.LogParams{
		TenantID:     &s.tenant,
		AccessorKind: kind,
		AccessorID:   s.accessor,
		AccessorRole: "support",
		DataCategory: category,
		ResourceType: "patient",
		ResourceID:   "p-1",
		AccessKind:   access,
		Reason:       audit.ReasonSupportTicket,
	}
}

func (s *AuditServiceSuite) TestLogSensitiveAccess() {
	s.Run("records the entry and publishes it", func() {
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any())

		entryID, err := s.service.LogSensitiveAccess(s.ctx, s.params(audit.CategoryPII, audit.AccessView, audit.AccessorEndUser))
		s.Require().NoError(err)
		s.NotEqual(uuid.Nil, entryID)

		entries, total, err := s.service.GetAccessLogs(s.ctx, audit.Filter{TenantID: &s.tenant})
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Equal(entryID, entries[0].ID)
		s.False(entries[0].CreatedAt.IsZero())
	})

	s.Run("rejects PHI access without a reason", func() {
		params := s.params(audit.CategoryPHI, audit.AccessView, audit.AccessorTenantAdmin)
		params.Reason = ""
		_, err := s.service.LogSensitiveAccess(s.ctx, params)
		s.Require().Error(err)
		s.Equal(dErrors.CodePolicyViolation, dErrors.CodeOf(err))
	})
}

func (s *AuditServiceSuite) TestRiskTiers() {
	cases := []struct {
		name     string
		category audit.DataCategory
		access   audit.AccessKind
		kind     audit.AccessorKind
		want     audit.RiskTier
	}{
		{"end-user PII view is low", audit.CategoryPII, audit.AccessView, audit.AccessorEndUser, audit.RiskLow},
		{"PHI view is medium", audit.CategoryPHI, audit.AccessView, audit.AccessorEndUser, audit.RiskMedium},
		{"financial view is medium", audit.CategoryFinancial, audit.AccessView, audit.AccessorTenantAdmin, audit.RiskMedium},
		{"PII export is medium", audit.CategoryPII, audit.AccessExport, audit.AccessorTenantAdmin, audit.RiskMedium},
		{"PHI export is high", audit.CategoryPHI, audit.AccessExport, audit.AccessorTenantAdmin, audit.RiskHigh},
		{"PHI delete is high", audit.CategoryPHI, audit.AccessDelete, audit.AccessorEndUser, audit.RiskHigh},
		{"platform admin touching PHI is always high", audit.CategoryPHI, audit.AccessView, audit.AccessorPlatformAdmin, audit.RiskHigh},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.Equal(tc.want, audit.ComputeRiskTier(tc.category, tc.access, tc.kind))
		})
	}
}

func (s *AuditServiceSuite) TestFlagAccessLog() {
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any())
	entryID, err := s.service.LogSensitiveAccess(s.ctx, s.params(audit.CategoryPII, audit.AccessView, audit.AccessorEndUser))
	s.Require().NoError(err)

	reviewer := id.UserID(uuid.New())

	s.Run("requires a reason", func() {
		err := s.service.FlagAccessLog(s.ctx, entryID, "", reviewer)
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("unknown entry is not found", func() {
		err := s.service.FlagAccessLog(s.ctx, uuid.New(), "suspicious", reviewer)
		s.Require().Error(err)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	s.Run("stamps reviewer and reason", func() {
		s.Require().NoError(s.service.FlagAccessLog(s.ctx, entryID, "out-of-hours export", reviewer))

		flagged := true
		entries, _, err := s.service.GetAccessLogs(s.ctx, audit.Filter{Flagged: &flagged})
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal("out-of-hours export", entries[0].FlagReason)
		s.Require().NotNil(entries[0].ReviewedBy)
		s.Equal(reviewer, *entries[0].ReviewedBy)
		s.NotNil(entries[0].ReviewedAt)
	})
}

func (s *AuditServiceSuite) TestGetAccessLogsFiltering() {
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(3)

	_, err := s.service.LogSensitiveAccess(s.ctx, s.params(audit.CategoryPII, audit.AccessView, audit.AccessorEndUser))
	s.Require().NoError(err)
	_, err = s.service.LogSensitiveAccess(s.ctx, s.params(audit.CategoryPHI, audit.AccessExport, audit.AccessorTenantAdmin))
	s.Require().NoError(err)

	other := s.params(audit.CategoryFinancial, audit.AccessView, audit.AccessorSystem)
	other.AccessorID = id.UserID(uuid.New())
	_, err = s.service.LogSensitiveAccess(s.ctx, other)
	s.Require().NoError(err)

	s.Run("by accessor", func() {
		entries, total, err := s.service.GetAccessLogs(s.ctx, audit.Filter{AccessorID: &s.accessor})
		s.Require().NoError(err)
		s.Equal(2, total)
		s.Len(entries, 2)
	})

	s.Run("by risk tier", func() {
		entries, total, err := s.service.GetAccessLogs(s.ctx, audit.Filter{RiskTier: audit.RiskHigh})
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Equal(audit.CategoryPHI, entries[0].DataCategory)
	})

	s.Run("pagination reports the pre-page total", func() {
		entries, total, err := s.service.GetAccessLogs(s.ctx, audit.Filter{Limit: 1, Offset: 1})
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Len(entries, 1)
	})
}
