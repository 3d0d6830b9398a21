package consent

import (
	"context"
	"time"

	id "custodia/pkg/domain"
)

// Store persists consent records. Mutating sequences that must be atomic run
// inside RunInTx; implementations provide a real transaction (postgres) or an
// equivalent coarse lock (memory) so the "at most one granted row per key"
// invariant holds under concurrent writers.
type Store interface {
	Insert(ctx context.Context, record *Record) error
	// CurrentGranted returns the granted row for the key, or sentinel.ErrNotFound.
	CurrentGranted(ctx context.Context, key Key) (*Record, error)
	// Withdraw flips the current granted row for the key to withdrawn.
	// Returns false when no granted row exists; that is not an error.
	Withdraw(ctx context.Context, key Key, reason string, at time.Time) (bool, error)
	// ListBySubject returns the subject's full history across consent types,
	// newest grant first.
	ListBySubject(ctx context.Context, tenantID id.TenantID, subjectType SubjectType, subjectID string) ([]Record, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
