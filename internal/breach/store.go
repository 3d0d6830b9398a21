package breach

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
)

// Filter narrows GetBreaches results. All set fields combine with AND.
type Filter struct {
	TenantID *id.TenantID
	Severity Severity
	Status   Status
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// Store persists the breach register.
type Store interface {
	Insert(ctx context.Context, record *Record) error
	Get(ctx context.Context, recordID uuid.UUID) (*Record, error)
	// List returns matching records newest-discovery-first with the total
	// count before pagination.
	List(ctx context.Context, filter Filter) ([]Record, int, error)
}
