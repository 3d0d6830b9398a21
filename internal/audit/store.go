package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
)

// Filter narrows GetAccessLogs results. All set fields combine with AND.
type Filter struct {
	TenantID     *id.TenantID
	AccessorID   *id.UserID
	ResourceType string
	ResourceID   string
	DataCategory DataCategory
	RiskTier     RiskTier
	Flagged      *bool
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// ActivityWindow describes one accessor's recent touch counts, used by the
// anomaly heuristic.
type ActivityWindow struct {
	LastHour    int
	LastDay     int
	PHILastHour int
}

// Store persists access log entries. Entries are append-only; Flag is the
// only mutation and never removes a row.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, int, error)
	Flag(ctx context.Context, entryID uuid.UUID, reason string, reviewerID id.UserID, reviewedAt time.Time) error
	AccessorActivity(ctx context.Context, accessorID id.UserID, tenantID *id.TenantID, now time.Time) (ActivityWindow, error)
}
