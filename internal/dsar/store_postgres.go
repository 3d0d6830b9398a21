package dsar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
	txcontext "custodia/pkg/platform/tx"
)

// PostgresStore persists requests in dsar_requests and the trail in
// dsar_activity. RunInTx opens a real transaction and threads it through
// context so request row and activity row commit together.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
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
		return fmt.Errorf("begin dsar tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback dsar tx: %v (original: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dsar tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, request *Request) error {
	query := `
		INSERT INTO dsar_requests
			(id, tenant_id, request_type, subject_name, subject_email, subject_id,
			 data_categories, regulation, details, status, response_deadline,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		request.ID, uuid.UUID(request.TenantID), string(request.RequestType),
		request.SubjectName, request.SubjectEmail, request.SubjectID,
		pq.Array(request.DataCategories), string(request.Regulation),
		request.Details, string(request.Status), request.ResponseDeadline,
		request.CreatedAt, request.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dsar request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, requestID uuid.UUID) (*Request, error) {
	row := s.execer(ctx).QueryRowContext(ctx, requestColumns+`
		FROM dsar_requests WHERE id = $1`, requestID)
	request, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query dsar request: %w", err)
	}
	return request, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, request *Request) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE dsar_requests
		SET status = $2, acknowledged_at = $3, completed_at = $4, updated_at = $5
		WHERE id = $1`,
		request.ID, string(request.Status),
		nullTime(request.AcknowledgedAt), nullTime(request.CompletedAt),
		request.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update dsar status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Request, int, error) {
	where, args := buildWhere(filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM dsar_requests" + where
	if err := s.execer(ctx).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count dsar requests: %w", err)
	}

	query := requestColumns + " FROM dsar_requests" + where + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list dsar requests: %w", err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan dsar request: %w", err)
		}
		out = append(out, *request)
	}
	return out, total, rows.Err()
}

func buildWhere(filter Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.TenantID != nil {
		add("tenant_id = $%d", uuid.UUID(*filter.TenantID))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.SubjectEmail != "" {
		add("subject_email = $%d", filter.SubjectEmail)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at <= $%d", *filter.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	where := " WHERE " + clauses[0]
	for _, clause := range clauses[1:] {
		where += " AND " + clause
	}
	return where, args
}

func (s *PostgresStore) AppendActivity(ctx context.Context, entry *ActivityEntry) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO dsar_activity
			(id, request_id, action, previous_status, new_status,
			 performed_by, performed_by_email, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.RequestID, entry.Action,
		string(entry.PreviousStatus), string(entry.NewStatus),
		uuid.UUID(entry.PerformedBy), entry.PerformedByEmail,
		entry.Notes, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append dsar activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivity(ctx context.Context, requestID uuid.UUID) ([]ActivityEntry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, request_id, action, previous_status, new_status,
		       performed_by, performed_by_email, notes, created_at
		FROM dsar_activity
		WHERE request_id = $1
		ORDER BY created_at DESC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list dsar activity: %w", err)
	}
	defer rows.Close()

	var out []ActivityEntry
	for rows.Next() {
		var (
			entry       ActivityEntry
			performedBy uuid.UUID
		)
		err := rows.Scan(
			&entry.ID, &entry.RequestID, &entry.Action,
			&entry.PreviousStatus, &entry.NewStatus,
			&performedBy, &entry.PerformedByEmail, &entry.Notes, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan dsar activity: %w", err)
		}
		entry.PerformedBy = id.UserID(performedBy)
		out = append(out, entry)
	}
	return out, rows.Err()
}

const requestColumns = `
		SELECT id, tenant_id, request_type, subject_name, subject_email, subject_id,
		       data_categories, regulation, details, status, response_deadline,
		       acknowledged_at, completed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var (
		request        Request
		tenantID       uuid.UUID
		categories     pq.StringArray
		acknowledgedAt sql.NullTime
		completedAt    sql.NullTime
	)
	err := row.Scan(
		&request.ID, &tenantID, &request.RequestType, &request.SubjectName,
		&request.SubjectEmail, &request.SubjectID, &categories,
		&request.Regulation, &request.Details, &request.Status,
		&request.ResponseDeadline, &acknowledgedAt, &completedAt,
		&request.CreatedAt, &request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	request.TenantID = id.TenantID(tenantID)
	request.DataCategories = []string(categories)
	if acknowledgedAt.Valid {
		request.AcknowledgedAt = &acknowledgedAt.Time
	}
	if completedAt.Valid {
		request.CompletedAt = &completedAt.Time
	}
	return &request, nil
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}
