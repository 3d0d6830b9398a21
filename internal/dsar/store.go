package dsar

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
)

// Filter narrows GetDSARs results. All set fields combine with AND.
type Filter struct {
	TenantID     *id.TenantID
	Status       Status
	SubjectEmail string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// Store persists requests and their activity trail. Activity rows are
// append-only and never rewritten.
type Store interface {
	Insert(ctx context.Context, request *Request) error
	Get(ctx context.Context, requestID uuid.UUID) (*Request, error)
	UpdateStatus(ctx context.Context, request *Request) error
	List(ctx context.Context, filter Filter) ([]Request, int, error)
	AppendActivity(ctx context.Context, entry *ActivityEntry) error
	// ListActivity returns the full trail, newest first.
	ListActivity(ctx context.Context, requestID uuid.UUID) ([]ActivityEntry, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
