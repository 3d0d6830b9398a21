package dsar

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

type DSARServiceSuite struct {
	suite.Suite
	store   *InMemoryStore
	service *Service
	ctx     context.Context
	tenant  id.TenantID
	officer id.UserID
}

func (s *DSARServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.service = NewService(s.store, testutil.Logger(), nil)
	s.ctx = context.Background()
	s.tenant = id.TenantID(uuid.New())
	s.officer = id.UserID(uuid.New())
}

func TestDSARServiceSuite(t *testing.T) {
	suite.Run(t, new(DSARServiceSuite))
}

func (s *DSARServiceSuite) create() *Request {
	request, err := s.service.CreateDSAR(s.ctx, CreateParams{
		TenantID:     s.tenant,
		RequestType:  TypeAccess,
		SubjectName:  "Dana Subject",
		SubjectEmail: "dana@example.com",
		Regulation:   RegulationGDPR,
		CreatedBy:    s.officer,
	})
	s.Require().NoError(err)
	return request
}

func (s *DSARServiceSuite) transition(requestID uuid.UUID, to Status) (*Request, error) {
	return s.service.UpdateDSARStatus(s.ctx, requestID, to, s.officer, "officer@example.com", "")
}

func (s *DSARServiceSuite) TestCreateDSAR() {
	s.Run("rejects an unknown request type", func() {
		_, err := s.service.CreateDSAR(s.ctx, CreateParams{
			TenantID:     s.tenant,
			RequestType:  RequestType("bogus"),
			SubjectEmail: "dana@example.com",
		})
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("rejects a missing subject email", func() {
		_, err := s.service.CreateDSAR(s.ctx, CreateParams{
			TenantID:    s.tenant,
			RequestType: TypeErasure,
		})
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("sets the 30-day response deadline", func() {
		request := s.create()
		s.Equal(StatusSubmitted, request.Status)
		s.WithinDuration(request.CreatedAt.Add(30*24*time.Hour), request.ResponseDeadline, time.Second)
	})

	s.Run("derives a subject name from the email when missing", func() {
		request, err := s.service.CreateDSAR(s.ctx, CreateParams{
			TenantID:       s.tenant,
			RequestType:    TypeAccess,
			SubjectEmail:   "jane.doe@example.com",
			DataCategories: []string{"Contact ", "contact", "billing"},
			CreatedBy:      s.officer,
		})
		s.Require().NoError(err)
		s.Equal("Jane Doe", request.SubjectName)
		s.Equal([]string{"contact", "billing"}, request.DataCategories)
	})

	s.Run("writes the creation activity row", func() {
		request := s.create()
		trail, err := s.service.GetDSARActivityLog(s.ctx, request.ID)
		s.Require().NoError(err)
		s.Require().Len(trail, 1)
		s.Equal(ActionCreated, trail[0].Action)
		s.Equal(StatusSubmitted, trail[0].NewStatus)
		s.Equal(s.officer, trail[0].PerformedBy)
	})
}

func (s *DSARServiceSuite) TestUpdateDSARStatus() {
	s.Run("acknowledgement stamps the timestamp", func() {
		request := s.create()
		updated, err := s.transition(request.ID, StatusAcknowledged)
		s.Require().NoError(err)
		s.Equal(StatusAcknowledged, updated.Status)
		s.NotNil(updated.AcknowledgedAt)
		s.Nil(updated.CompletedAt)
	})

	s.Run("full lifecycle reaches completed", func() {
		request := s.create()
		for _, next := range []Status{StatusAcknowledged, StatusInProgress, StatusPendingVerification, StatusCompleted} {
			_, err := s.transition(request.ID, next)
			s.Require().NoError(err, "transition to %s", next)
		}
		final, err := s.store.Get(s.ctx, request.ID)
		s.Require().NoError(err)
		s.NotNil(final.CompletedAt)
	})

	s.Run("verification may fall back to in progress", func() {
		request := s.create()
		for _, next := range []Status{StatusAcknowledged, StatusInProgress, StatusPendingVerification} {
			_, err := s.transition(request.ID, next)
			s.Require().NoError(err)
		}
		_, err := s.transition(request.ID, StatusInProgress)
		s.Require().NoError(err)
	})

	s.Run("skipping states is an invariant violation", func() {
		request := s.create()
		_, err := s.transition(request.ID, StatusCompleted)
		s.Require().Error(err)
		s.Equal(dErrors.CodeInvariantViolation, dErrors.CodeOf(err))
	})

	s.Run("terminal states admit no transitions", func() {
		request := s.create()
		_, err := s.transition(request.ID, StatusRejected)
		s.Require().NoError(err)
		_, err = s.transition(request.ID, StatusAcknowledged)
		s.Require().Error(err)
		s.Equal(dErrors.CodeInvariantViolation, dErrors.CodeOf(err))
	})

	s.Run("unknown request is not found", func() {
		_, err := s.transition(uuid.New(), StatusAcknowledged)
		s.Require().Error(err)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})
}

func (s *DSARServiceSuite) TestActivityTrail() {
	request := s.create()
	_, err := s.transition(request.ID, StatusAcknowledged)
	s.Require().NoError(err)
	_, err = s.transition(request.ID, StatusInProgress)
	s.Require().NoError(err)

	trail, err := s.service.GetDSARActivityLog(s.ctx, request.ID)
	s.Require().NoError(err)
	s.Require().Len(trail, 3, "one row per event, none rewritten")

	// Newest first.
	s.Equal("STATUS_CHANGED_TO_IN_PROGRESS", trail[0].Action)
	s.Equal(StatusAcknowledged, trail[0].PreviousStatus)
	s.Equal("STATUS_CHANGED_TO_ACKNOWLEDGED", trail[1].Action)
	s.Equal(StatusSubmitted, trail[1].PreviousStatus)
	s.Equal(ActionCreated, trail[2].Action)

	s.Run("trail for an unknown request is not found", func() {
		_, err := s.service.GetDSARActivityLog(s.ctx, uuid.New())
		s.Require().Error(err)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})
}

func (s *DSARServiceSuite) TestGetDSARs() {
	first := s.create()
	second, err := s.service.CreateDSAR(s.ctx, CreateParams{
		TenantID:     s.tenant,
		RequestType:  TypeErasure,
		SubjectEmail: "erase-me@example.com",
		Regulation:   RegulationPDPASG,
		CreatedBy:    s.officer,
	})
	s.Require().NoError(err)

	s.Run("filters by subject email", func() {
		requests, total, err := s.service.GetDSARs(s.ctx, Filter{TenantID: &s.tenant, SubjectEmail: "erase-me@example.com"})
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Equal(second.ID, requests[0].ID)
	})

	s.Run("filters by status", func() {
		_, err := s.transition(first.ID, StatusAcknowledged)
		s.Require().NoError(err)

		requests, total, err := s.service.GetDSARs(s.ctx, Filter{TenantID: &s.tenant, Status: StatusSubmitted})
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Equal(second.ID, requests[0].ID)
	})
}
