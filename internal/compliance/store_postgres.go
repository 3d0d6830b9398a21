package compliance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"custodia/internal/platform/db"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
	txcontext "custodia/pkg/platform/tx"
)

// PostgresStore persists the tracker in compliance_packs,
// compliance_checklist_items, tenant_compliance_packs, and
// tenant_compliance_progress. RunInTx opens a real transaction and threads it
// through context so counter maintenance, snapshots, and roll-ups commit
// atomically.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(database *sql.DB) *PostgresStore {
	return &PostgresStore{db: database}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin compliance tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback compliance tx: %v (original: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit compliance tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePack(ctx context.Context, pack *Pack) error {
	query := `
		INSERT INTO compliance_packs
			(id, code, name, description, regulation, countries, business_types,
			 active, is_default, total_items, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		pack.ID, pack.Code, pack.Name, pack.Description, pack.Regulation,
		pq.Array(pack.Countries), pq.Array(pack.BusinessTypes),
		pack.Active, pack.Default, pack.TotalItems, pack.CreatedAt, pack.UpdatedAt,
	)
	if db.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert compliance pack: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPack(ctx context.Context, packID uuid.UUID) (*Pack, error) {
	row := s.execer(ctx).QueryRowContext(ctx, packColumns+`
		FROM compliance_packs WHERE id = $1`, packID)
	pack, err := scanPack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query compliance pack: %w", err)
	}
	return pack, nil
}

func (s *PostgresStore) ListPacks(ctx context.Context) ([]Pack, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, packColumns+`
		FROM compliance_packs ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list compliance packs: %w", err)
	}
	defer rows.Close()

	var out []Pack
	for rows.Next() {
		pack, err := scanPack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan compliance pack: %w", err)
		}
		out = append(out, *pack)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountPacks(ctx context.Context) (int, error) {
	var count int
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM compliance_packs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count compliance packs: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) AdjustPackTotalItems(ctx context.Context, packID uuid.UUID, delta int) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE compliance_packs
		SET total_items = GREATEST(0, total_items + $2), updated_at = NOW()
		WHERE id = $1`, packID, delta)
	if err != nil {
		return fmt.Errorf("adjust pack total items: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) CreateItem(ctx context.Context, item *ChecklistItem) error {
	query := `
		INSERT INTO compliance_checklist_items
			(id, pack_id, category, title, description, guidance, priority,
			 mandatory, requires_evidence, evidence_types, due_days, sort_order,
			 created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		item.ID, item.PackID, item.Category, item.Title, item.Description,
		item.Guidance, string(item.Priority), item.Mandatory,
		item.RequiresEvidence, pq.Array(item.EvidenceTypes),
		nullInt(item.DueDays), item.SortOrder, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert checklist item: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetItem(ctx context.Context, itemID uuid.UUID) (*ChecklistItem, error) {
	row := s.execer(ctx).QueryRowContext(ctx, itemColumns+`
		FROM compliance_checklist_items WHERE id = $1`, itemID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query checklist item: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM compliance_checklist_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete checklist item: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) ListItems(ctx context.Context, packID uuid.UUID) ([]ChecklistItem, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, itemColumns+`
		FROM compliance_checklist_items
		WHERE pack_id = $1
		ORDER BY sort_order`, packID)
	if err != nil {
		return nil, fmt.Errorf("list checklist items: %w", err)
	}
	defer rows.Close()

	var out []ChecklistItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertAssignment(ctx context.Context, assignment *TenantPack) error {
	query := `
		INSERT INTO tenant_compliance_packs
			(id, tenant_id, pack_id, assigned_by, due_date, status,
			 completion_percentage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		assignment.ID, uuid.UUID(assignment.TenantID), assignment.PackID,
		uuid.UUID(assignment.AssignedBy), nullTime(assignment.DueDate),
		string(assignment.Status), assignment.CompletionPercentage,
		assignment.CreatedAt, assignment.UpdatedAt,
	)
	if db.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert pack assignment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAssignment(ctx context.Context, tenantID id.TenantID, packID uuid.UUID) (*TenantPack, error) {
	row := s.execer(ctx).QueryRowContext(ctx, assignmentColumns+`
		FROM tenant_compliance_packs
		WHERE tenant_id = $1 AND pack_id = $2`, uuid.UUID(tenantID), packID)
	assignment, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query pack assignment: %w", err)
	}
	return assignment, nil
}

func (s *PostgresStore) ListAssignments(ctx context.Context, tenantID id.TenantID) ([]TenantPack, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, assignmentColumns+`
		FROM tenant_compliance_packs
		WHERE tenant_id = $1
		ORDER BY created_at`, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list pack assignments: %w", err)
	}
	defer rows.Close()

	var out []TenantPack
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pack assignment: %w", err)
		}
		out = append(out, *assignment)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateAssignment(ctx context.Context, assignment *TenantPack) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE tenant_compliance_packs
		SET status = $2, completion_percentage = $3, completed_at = $4, updated_at = $5
		WHERE id = $1`,
		assignment.ID, string(assignment.Status),
		assignment.CompletionPercentage, nullTime(assignment.CompletedAt),
		assignment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update pack assignment: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) InsertProgress(ctx context.Context, rows []Progress) error {
	query := `
		INSERT INTO tenant_compliance_progress
			(id, tenant_id, pack_id, item_id, status, notes, evidence_ref,
			 evidence_description, assigned_to, due_date, started_at,
			 completed_at, completed_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	for i := range rows {
		row := &rows[i]
		_, err := s.execer(ctx).ExecContext(ctx, query,
			row.ID, uuid.UUID(row.TenantID), row.PackID, row.ItemID,
			string(row.Status), row.Notes, row.EvidenceRef,
			row.EvidenceDescription, userValue(row.AssignedTo),
			nullTime(row.DueDate), nullTime(row.StartedAt),
			nullTime(row.CompletedAt), userValue(row.CompletedBy),
			row.CreatedAt, row.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert progress row: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetProgress(ctx context.Context, tenantID id.TenantID, packID, itemID uuid.UUID) (*Progress, error) {
	row := s.execer(ctx).QueryRowContext(ctx, progressColumns+`
		FROM tenant_compliance_progress
		WHERE tenant_id = $1 AND pack_id = $2 AND item_id = $3`,
		uuid.UUID(tenantID), packID, itemID)
	progress, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query progress row: %w", err)
	}
	return progress, nil
}

func (s *PostgresStore) ListProgress(ctx context.Context, tenantID id.TenantID, packID uuid.UUID) ([]Progress, error) {
	return s.listProgress(ctx, progressColumns+`
		FROM tenant_compliance_progress
		WHERE tenant_id = $1 AND pack_id = $2`, uuid.UUID(tenantID), packID)
}

func (s *PostgresStore) ListTenantProgress(ctx context.Context, tenantID id.TenantID) ([]Progress, error) {
	return s.listProgress(ctx, progressColumns+`
		FROM tenant_compliance_progress
		WHERE tenant_id = $1`, uuid.UUID(tenantID))
}

func (s *PostgresStore) listProgress(ctx context.Context, query string, args ...any) ([]Progress, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list progress rows: %w", err)
	}
	defer rows.Close()

	var out []Progress
	for rows.Next() {
		progress, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress row: %w", err)
		}
		out = append(out, *progress)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, row *Progress) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE tenant_compliance_progress
		SET status = $2, notes = $3, evidence_ref = $4, evidence_description = $5,
		    assigned_to = $6, started_at = $7, completed_at = $8,
		    completed_by = $9, updated_at = $10
		WHERE id = $1`,
		row.ID, string(row.Status), row.Notes, row.EvidenceRef,
		row.EvidenceDescription, userValue(row.AssignedTo),
		nullTime(row.StartedAt), nullTime(row.CompletedAt),
		userValue(row.CompletedBy), row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update progress row: %w", err)
	}
	return requireRow(res)
}

const packColumns = `
		SELECT id, code, name, description, regulation, countries, business_types,
		       active, is_default, total_items, created_at, updated_at`

const itemColumns = `
		SELECT id, pack_id, category, title, description, guidance, priority,
		       mandatory, requires_evidence, evidence_types, due_days, sort_order,
		       created_at`

const assignmentColumns = `
		SELECT id, tenant_id, pack_id, assigned_by, due_date, status,
		       completion_percentage, completed_at, created_at, updated_at`

const progressColumns = `
		SELECT id, tenant_id, pack_id, item_id, status, notes, evidence_ref,
		       evidence_description, assigned_to, due_date, started_at,
		       completed_at, completed_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPack(row rowScanner) (*Pack, error) {
	var (
		pack          Pack
		countries     pq.StringArray
		businessTypes pq.StringArray
	)
	err := row.Scan(
		&pack.ID, &pack.Code, &pack.Name, &pack.Description, &pack.Regulation,
		&countries, &businessTypes, &pack.Active, &pack.Default,
		&pack.TotalItems, &pack.CreatedAt, &pack.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	pack.Countries = []string(countries)
	pack.BusinessTypes = []string(businessTypes)
	return &pack, nil
}

func scanItem(row rowScanner) (*ChecklistItem, error) {
	var (
		item          ChecklistItem
		evidenceTypes pq.StringArray
		dueDays       sql.NullInt64
	)
	err := row.Scan(
		&item.ID, &item.PackID, &item.Category, &item.Title, &item.Description,
		&item.Guidance, &item.Priority, &item.Mandatory, &item.RequiresEvidence,
		&evidenceTypes, &dueDays, &item.SortOrder, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.EvidenceTypes = []string(evidenceTypes)
	if dueDays.Valid {
		days := int(dueDays.Int64)
		item.DueDays = &days
	}
	return &item, nil
}

func scanAssignment(row rowScanner) (*TenantPack, error) {
	var (
		assignment  TenantPack
		tenantID    uuid.UUID
		assignedBy  uuid.UUID
		dueDate     sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(
		&assignment.ID, &tenantID, &assignment.PackID, &assignedBy, &dueDate,
		&assignment.Status, &assignment.CompletionPercentage, &completedAt,
		&assignment.CreatedAt, &assignment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	assignment.TenantID = id.TenantID(tenantID)
	assignment.AssignedBy = id.UserID(assignedBy)
	if dueDate.Valid {
		assignment.DueDate = &dueDate.Time
	}
	if completedAt.Valid {
		assignment.CompletedAt = &completedAt.Time
	}
	return &assignment, nil
}

func scanProgress(row rowScanner) (*Progress, error) {
	var (
		progress    Progress
		tenantID    uuid.UUID
		assignedTo  uuid.NullUUID
		completedBy uuid.NullUUID
		dueDate     sql.NullTime
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(
		&progress.ID, &tenantID, &progress.PackID, &progress.ItemID,
		&progress.Status, &progress.Notes, &progress.EvidenceRef,
		&progress.EvidenceDescription, &assignedTo, &dueDate, &startedAt,
		&completedAt, &completedBy, &progress.CreatedAt, &progress.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	progress.TenantID = id.TenantID(tenantID)
	if assignedTo.Valid {
		uid := id.UserID(assignedTo.UUID)
		progress.AssignedTo = &uid
	}
	if completedBy.Valid {
		uid := id.UserID(completedBy.UUID)
		progress.CompletedBy = &uid
	}
	if dueDate.Valid {
		progress.DueDate = &dueDate.Time
	}
	if startedAt.Valid {
		progress.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		progress.CompletedAt = &completedAt.Time
	}
	return &progress, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func userValue(userID *id.UserID) any {
	if userID == nil {
		return nil
	}
	return uuid.UUID(*userID)
}

func nullInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}
