package compliance

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

type ComplianceServiceSuite struct {
	suite.Suite
	store   *InMemoryStore
	service *Service
	ctx     context.Context
	tenant  id.TenantID
	admin   id.UserID
}

func (s *ComplianceServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.service = NewService(s.store, testutil.Logger(), nil)
	s.ctx = context.Background()
	s.tenant = id.TenantID(uuid.New())
	s.admin = id.UserID(uuid.New())
}

func TestComplianceServiceSuite(t *testing.T) {
	suite.Run(t, new(ComplianceServiceSuite))
}

func (s *ComplianceServiceSuite) createPack(code string) *Pack {
	pack, err := s.service.CreatePack(s.ctx, PackParams{
		Code:       code,
		Name:       "Test Pack " + code,
		Regulation: "gdpr",
	})
	s.Require().NoError(err)
	return pack
}

func (s *ComplianceServiceSuite) addItem(packID uuid.UUID, title string, dueDays *int) *ChecklistItem {
	item, err := s.service.AddChecklistItem(s.ctx, packID, ItemParams{
		Title:    title,
		Priority: PriorityMedium,
		DueDays:  dueDays,
	})
	s.Require().NoError(err)
	return item
}

func (s *ComplianceServiceSuite) setStatus(packID, itemID uuid.UUID, status ProgressStatus) {
	_, err := s.service.UpdateItemProgress(s.ctx, s.tenant, packID, itemID, ProgressPatch{Status: &status}, s.admin)
	s.Require().NoError(err)
}

func (s *ComplianceServiceSuite) TestCreatePack() {
	s.createPack("GDPR_TEST")

	s.Run("duplicate code conflicts", func() {
		_, err := s.service.CreatePack(s.ctx, PackParams{Code: "GDPR_TEST", Name: "again"})
		s.Require().Error(err)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	})

	s.Run("code and name are mandatory", func() {
		_, err := s.service.CreatePack(s.ctx, PackParams{Code: "NO_NAME"})
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})
}

func (s *ComplianceServiceSuite) TestItemCounter() {
	pack := s.createPack("COUNTER")

	first := s.addItem(pack.ID, "first", nil)
	s.addItem(pack.ID, "second", nil)

	loaded, err := s.store.GetPack(s.ctx, pack.ID)
	s.Require().NoError(err)
	s.Equal(2, loaded.TotalItems)

	s.Require().NoError(s.service.RemoveChecklistItem(s.ctx, first.ID))
	loaded, err = s.store.GetPack(s.ctx, pack.ID)
	s.Require().NoError(err)
	s.Equal(1, loaded.TotalItems)

	s.Run("removing an unknown item is not found", func() {
		err := s.service.RemoveChecklistItem(s.ctx, uuid.New())
		s.Require().Error(err)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})
}

func (s *ComplianceServiceSuite) TestAssignPackToTenant() {
	pack := s.createPack("ASSIGN")
	lead := 10
	s.addItem(pack.ID, "with lead time", &lead)
	s.addItem(pack.ID, "no lead time", nil)

	due := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	assignment, err := s.service.AssignPackToTenant(s.ctx, s.tenant, pack.ID, s.admin, &due)
	s.Require().NoError(err)
	s.Equal(PackActive, assignment.Status)
	s.Zero(assignment.CompletionPercentage)

	s.Run("snapshots one progress row per item", func() {
		rows, err := s.store.ListProgress(s.ctx, s.tenant, pack.ID)
		s.Require().NoError(err)
		s.Require().Len(rows, 2)
		for _, row := range rows {
			s.Equal(ProgressNotStarted, row.Status)
		}
	})

	s.Run("per-item due date is the pack due date minus lead days", func() {
		rows, err := s.store.ListProgress(s.ctx, s.tenant, pack.ID)
		s.Require().NoError(err)
		for _, row := range rows {
			item, err := s.store.GetItem(s.ctx, row.ItemID)
			s.Require().NoError(err)
			if item.DueDays == nil {
				s.Nil(row.DueDate)
				continue
			}
			s.Require().NotNil(row.DueDate)
			s.Equal(due.AddDate(0, 0, -lead), *row.DueDate)
		}
	})

	s.Run("assigning twice conflicts", func() {
		_, err := s.service.AssignPackToTenant(s.ctx, s.tenant, pack.ID, s.admin, nil)
		s.Require().Error(err)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	})

	s.Run("unknown pack is not found", func() {
		_, err := s.service.AssignPackToTenant(s.ctx, s.tenant, uuid.New(), s.admin, nil)
		s.Require().Error(err)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})
}

func (s *ComplianceServiceSuite) TestProgressAndRollup() {
	pack := s.createPack("ROLLUP")
	items := []*ChecklistItem{
		s.addItem(pack.ID, "one", nil),
		s.addItem(pack.ID, "two", nil),
		s.addItem(pack.ID, "three", nil),
	}
	_, err := s.service.AssignPackToTenant(s.ctx, s.tenant, pack.ID, s.admin, nil)
	s.Require().NoError(err)

	percentage := func() int {
		assignment, err := s.store.GetAssignment(s.ctx, s.tenant, pack.ID)
		s.Require().NoError(err)
		return assignment.CompletionPercentage
	}

	s.Run("in progress stamps startedAt without moving the percentage", func() {
		s.setStatus(pack.ID, items[0].ID, ProgressInProgress)
		row, err := s.store.GetProgress(s.ctx, s.tenant, pack.ID, items[0].ID)
		s.Require().NoError(err)
		s.NotNil(row.StartedAt)
		s.Zero(percentage())
	})

	s.Run("one of three completed rounds to 33", func() {
		s.setStatus(pack.ID, items[0].ID, ProgressCompleted)
		s.Equal(33, percentage())

		row, err := s.store.GetProgress(s.ctx, s.tenant, pack.ID, items[0].ID)
		s.Require().NoError(err)
		s.NotNil(row.CompletedAt)
		s.Require().NotNil(row.CompletedBy)
		s.Equal(s.admin, *row.CompletedBy)
	})

	s.Run("not applicable counts toward completion", func() {
		s.setStatus(pack.ID, items[1].ID, ProgressNotApplicable)
		s.Equal(67, percentage())
	})

	s.Run("full completion flips the assignment", func() {
		s.setStatus(pack.ID, items[2].ID, ProgressCompleted)
		assignment, err := s.store.GetAssignment(s.ctx, s.tenant, pack.ID)
		s.Require().NoError(err)
		s.Equal(100, assignment.CompletionPercentage)
		s.Equal(PackCompleted, assignment.Status)
		s.NotNil(assignment.CompletedAt)
	})

	s.Run("reopening an item reverts the assignment to active", func() {
		s.setStatus(pack.ID, items[2].ID, ProgressInProgress)
		assignment, err := s.store.GetAssignment(s.ctx, s.tenant, pack.ID)
		s.Require().NoError(err)
		s.Equal(67, assignment.CompletionPercentage)
		s.Equal(PackActive, assignment.Status)
		s.Nil(assignment.CompletedAt)
	})

	s.Run("unknown status is rejected", func() {
		bad := ProgressStatus("finished")
		_, err := s.service.UpdateItemProgress(s.ctx, s.tenant, pack.ID, items[0].ID, ProgressPatch{Status: &bad}, s.admin)
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})
}

func (s *ComplianceServiceSuite) TestGetComplianceSummary() {
	first := s.createPack("SUMMARY_A")
	a1 := s.addItem(first.ID, "a1", nil)
	a2 := s.addItem(first.ID, "a2", nil)
	second := s.createPack("SUMMARY_B")
	b1 := s.addItem(second.ID, "b1", nil)

	_, err := s.service.AssignPackToTenant(s.ctx, s.tenant, first.ID, s.admin, nil)
	s.Require().NoError(err)
	_, err = s.service.AssignPackToTenant(s.ctx, s.tenant, second.ID, s.admin, nil)
	s.Require().NoError(err)

	s.setStatus(first.ID, a1.ID, ProgressCompleted)
	s.setStatus(first.ID, a2.ID, ProgressCompleted)
	s.setStatus(second.ID, b1.ID, ProgressInProgress)

	summary, err := s.service.GetComplianceSummary(s.ctx, s.tenant)
	s.Require().NoError(err)
	s.Equal(2, summary.TotalPacks)
	s.Equal(1, summary.CompletedPacks)
	s.Equal(3, summary.TotalItems)
	s.Equal(2, summary.CompletedItems)
	s.Equal(1, summary.InProgressItems)
	s.Equal(67, summary.OverallPercentage)
}

func (s *ComplianceServiceSuite) TestSeedDefaultPacks() {
	s.Require().NoError(s.service.SeedDefaultPacks(s.ctx))

	packs, err := s.service.GetPacks(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(packs, 4)

	codes := make(map[string]Pack, len(packs))
	for _, pack := range packs {
		codes[pack.Code] = pack
		s.Positive(pack.TotalItems, "pack %s must carry items", pack.Code)
		items, err := s.service.GetPackItems(s.ctx, pack.ID)
		s.Require().NoError(err)
		s.Len(items, pack.TotalItems, "counter must match the checklist for %s", pack.Code)
	}
	s.Contains(codes, "GDPR_CORE")
	s.Contains(codes, "PDPA_SG_CORE")
	s.Contains(codes, "DPDP_CORE")
	s.Contains(codes, "UAE_DPL_CORE")

	s.Run("seeding again is a no-op", func() {
		s.Require().NoError(s.service.SeedDefaultPacks(s.ctx))
		packs, err := s.service.GetPacks(s.ctx)
		s.Require().NoError(err)
		s.Len(packs, 4)
	})
}
