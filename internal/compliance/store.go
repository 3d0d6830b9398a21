package compliance

import (
	"context"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
)

// Store persists packs, checklist items, assignments, and progress rows.
// Multi-step sequences (item counter maintenance, assignment snapshots,
// progress-then-rollup) run inside RunInTx so partial writes never become
// visible.
type Store interface {
	CreatePack(ctx context.Context, pack *Pack) error
	GetPack(ctx context.Context, packID uuid.UUID) (*Pack, error)
	ListPacks(ctx context.Context) ([]Pack, error)
	CountPacks(ctx context.Context) (int, error)
	// AdjustPackTotalItems moves the denormalized counter by delta,
	// flooring at zero.
	AdjustPackTotalItems(ctx context.Context, packID uuid.UUID, delta int) error

	CreateItem(ctx context.Context, item *ChecklistItem) error
	GetItem(ctx context.Context, itemID uuid.UUID) (*ChecklistItem, error)
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	// ListItems returns the pack's items in sort order.
	ListItems(ctx context.Context, packID uuid.UUID) ([]ChecklistItem, error)

	InsertAssignment(ctx context.Context, assignment *TenantPack) error
	GetAssignment(ctx context.Context, tenantID id.TenantID, packID uuid.UUID) (*TenantPack, error)
	ListAssignments(ctx context.Context, tenantID id.TenantID) ([]TenantPack, error)
	UpdateAssignment(ctx context.Context, assignment *TenantPack) error

	InsertProgress(ctx context.Context, rows []Progress) error
	GetProgress(ctx context.Context, tenantID id.TenantID, packID, itemID uuid.UUID) (*Progress, error)
	ListProgress(ctx context.Context, tenantID id.TenantID, packID uuid.UUID) ([]Progress, error)
	ListTenantProgress(ctx context.Context, tenantID id.TenantID) ([]Progress, error)
	UpdateProgress(ctx context.Context, row *Progress) error

	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
