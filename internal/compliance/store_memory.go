package compliance

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps the tracker state in process memory. RunInTx serializes
// writers behind one mutex, the in-memory stand-in for the postgres
// transaction around multi-step sequences.
type InMemoryStore struct {
	mu          sync.Mutex
	txMu        sync.Mutex
	packs       map[uuid.UUID]Pack
	items       map[uuid.UUID]ChecklistItem
	assignments map[uuid.UUID]TenantPack
	progress    map[uuid.UUID]Progress
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		packs:       make(map[uuid.UUID]Pack),
		items:       make(map[uuid.UUID]ChecklistItem),
		assignments: make(map[uuid.UUID]TenantPack),
		progress:    make(map[uuid.UUID]Progress),
	}
}

func (s *InMemoryStore) CreatePack(_ context.Context, pack *Pack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.packs {
		if existing.Code == pack.Code {
			return sentinel.ErrConflict
		}
	}
	s.packs[pack.ID] = *pack
	return nil
}

func (s *InMemoryStore) GetPack(_ context.Context, packID uuid.UUID) (*Pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pack, ok := s.packs[packID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &pack, nil
}

func (s *InMemoryStore) ListPacks(_ context.Context) ([]Pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Pack, 0, len(s.packs))
	for _, pack := range s.packs {
		out = append(out, pack)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (s *InMemoryStore) CountPacks(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.packs), nil
}

func (s *InMemoryStore) AdjustPackTotalItems(_ context.Context, packID uuid.UUID, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pack, ok := s.packs[packID]
	if !ok {
		return sentinel.ErrNotFound
	}
	pack.TotalItems += delta
	if pack.TotalItems < 0 {
		pack.TotalItems = 0
	}
	s.packs[packID] = pack
	return nil
}

func (s *InMemoryStore) CreateItem(_ context.Context, item *ChecklistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.packs[item.PackID]; !ok {
		return sentinel.ErrNotFound
	}
	s.items[item.ID] = *item
	return nil
}

func (s *InMemoryStore) GetItem(_ context.Context, itemID uuid.UUID) (*ChecklistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &item, nil
}

func (s *InMemoryStore) DeleteItem(_ context.Context, itemID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[itemID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.items, itemID)
	return nil
}

func (s *InMemoryStore) ListItems(_ context.Context, packID uuid.UUID) ([]ChecklistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ChecklistItem
	for _, item := range s.items {
		if item.PackID == packID {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SortOrder < out[j].SortOrder
	})
	return out, nil
}

func (s *InMemoryStore) InsertAssignment(_ context.Context, assignment *TenantPack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assignments {
		if existing.TenantID == assignment.TenantID && existing.PackID == assignment.PackID {
			return sentinel.ErrConflict
		}
	}
	s.assignments[assignment.ID] = *assignment
	return nil
}

func (s *InMemoryStore) GetAssignment(_ context.Context, tenantID id.TenantID, packID uuid.UUID) (*TenantPack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, assignment := range s.assignments {
		if assignment.TenantID == tenantID && assignment.PackID == packID {
			copied := assignment
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListAssignments(_ context.Context, tenantID id.TenantID) ([]TenantPack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TenantPack
	for _, assignment := range s.assignments {
		if assignment.TenantID == tenantID {
			out = append(out, assignment)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) UpdateAssignment(_ context.Context, assignment *TenantPack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[assignment.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.assignments[assignment.ID] = *assignment
	return nil
}

func (s *InMemoryStore) InsertProgress(_ context.Context, rows []Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.progress[row.ID] = row
	}
	return nil
}

func (s *InMemoryStore) GetProgress(_ context.Context, tenantID id.TenantID, packID, itemID uuid.UUID) (*Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.progress {
		if row.TenantID == tenantID && row.PackID == packID && row.ItemID == itemID {
			copied := row
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListProgress(_ context.Context, tenantID id.TenantID, packID uuid.UUID) ([]Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Progress
	for _, row := range s.progress {
		if row.TenantID == tenantID && row.PackID == packID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListTenantProgress(_ context.Context, tenantID id.TenantID) ([]Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Progress
	for _, row := range s.progress {
		if row.TenantID == tenantID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *InMemoryStore) UpdateProgress(_ context.Context, row *Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.progress[row.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.progress[row.ID] = *row
	return nil
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx)
}
