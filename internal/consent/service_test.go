package consent

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

type ConsentServiceSuite struct {
	suite.Suite
	store   *InMemoryStore
	service *Service
	ctx     context.Context
	tenant  id.TenantID
}

func (s *ConsentServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.service = NewService(s.store, testutil.Logger(), nil)
	s.ctx = context.Background()
	s.tenant = id.TenantID(uuid.New())
}

func TestConsentServiceSuite(t *testing.T) {
	suite.Run(t, new(ConsentServiceSuite))
}

func (s *ConsentServiceSuite) grant(subjectID string, consentType Type) *Record {
	record, err := s.service.RecordConsent(s.ctx, RecordParams{
		TenantID:       s.tenant,
		SubjectType:    SubjectCustomer,
		SubjectID:      subjectID,
		ConsentType:    consentType,
		Purpose:        "newsletter",
		LegalBasis:     BasisConsent,
		ConsentVersion: "v1",
	})
	s.Require().NoError(err)
	return record
}

func (s *ConsentServiceSuite) TestRecordConsent() {
	s.Run("rejects an empty subject", func() {
		_, err := s.service.RecordConsent(s.ctx, RecordParams{
			TenantID:    s.tenant,
			SubjectType: SubjectCustomer,
			ConsentType: TypeMarketing,
		})
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("rejects an unknown consent type", func() {
		_, err := s.service.RecordConsent(s.ctx, RecordParams{
			TenantID:    s.tenant,
			SubjectType: SubjectCustomer,
			SubjectID:   "c-1",
			ConsentType: Type("telepathy"),
		})
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("grants and is immediately checkable", func() {
		record := s.grant("c-1", TypeMarketing)
		s.Equal(StatusGranted, record.Status)

		active, current, err := s.service.CheckConsent(s.ctx, record.Key())
		s.Require().NoError(err)
		s.True(active)
		s.Equal(record.ID, current.ID)
	})
}

func (s *ConsentServiceSuite) TestSupersession() {
	first := s.grant("c-2", TypeMarketing)
	second := s.grant("c-2", TypeMarketing)
	third := s.grant("c-2", TypeMarketing)

	history, err := s.service.GetSubjectConsents(s.ctx, s.tenant, SubjectCustomer, "c-2")
	s.Require().NoError(err)
	s.Require().Len(history, 3, "every grant is a new row")

	var granted []Record
	for _, r := range history {
		if r.Status == StatusGranted {
			granted = append(granted, r)
		}
	}
	s.Require().Len(granted, 1, "only the newest grant may remain granted")
	s.Equal(third.ID, granted[0].ID)

	for _, old := range []uuid.UUID{first.ID, second.ID} {
		for _, r := range history {
			if r.ID == old {
				s.Equal(StatusWithdrawn, r.Status)
				s.Equal(SupersededReason, r.WithdrawalReason)
				s.NotNil(r.WithdrawnAt)
			}
		}
	}
}

func (s *ConsentServiceSuite) TestSupersessionScopedToKey() {
	marketing := s.grant("c-3", TypeMarketing)
	analytics := s.grant("c-3", TypeAnalytics)

	active, _, err := s.service.CheckConsent(s.ctx, marketing.Key())
	s.Require().NoError(err)
	s.True(active, "a grant for another consent type must not supersede this one")

	active, _, err = s.service.CheckConsent(s.ctx, analytics.Key())
	s.Require().NoError(err)
	s.True(active)
}

func (s *ConsentServiceSuite) TestWithdrawConsent() {
	record := s.grant("c-4", TypeCookies)

	s.Require().NoError(s.service.WithdrawConsent(s.ctx, record.Key(), "user opted out"))

	active, current, err := s.service.CheckConsent(s.ctx, record.Key())
	s.Require().NoError(err)
	s.False(active)
	s.Nil(current)

	history, err := s.service.GetSubjectConsents(s.ctx, s.tenant, SubjectCustomer, "c-4")
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal("user opted out", history[0].WithdrawalReason)

	s.Run("withdrawing again is a no-op", func() {
		s.Require().NoError(s.service.WithdrawConsent(s.ctx, record.Key(), "again"))
		history, err := s.service.GetSubjectConsents(s.ctx, s.tenant, SubjectCustomer, "c-4")
		s.Require().NoError(err)
		s.Equal("user opted out", history[0].WithdrawalReason, "original reason must survive")
	})
}

func (s *ConsentServiceSuite) TestExpiredConsentIsInactive() {
	expired := time.Now().Add(-time.Minute)
	record, err := s.service.RecordConsent(s.ctx, RecordParams{
		TenantID:    s.tenant,
		SubjectType: SubjectCustomer,
		SubjectID:   "c-5",
		ConsentType: TypeAnalytics,
		ExpiresAt:   &expired,
	})
	s.Require().NoError(err)

	active, current, err := s.service.CheckConsent(s.ctx, record.Key())
	s.Require().NoError(err)
	s.False(active, "an expired grant must not count as consent")
	s.Nil(current)
}

func (s *ConsentServiceSuite) TestHistoryIsNewestFirst() {
	s.grant("c-6", TypeMarketing)
	time.Sleep(2 * time.Millisecond)
	s.grant("c-6", TypeAnalytics)

	history, err := s.service.GetSubjectConsents(s.ctx, s.tenant, SubjectCustomer, "c-6")
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.False(history[0].GrantedAt.Before(history[1].GrantedAt))
}
