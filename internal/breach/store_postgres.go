package breach

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
)

// PostgresStore persists the register in the breach_records table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO breach_records
			(id, tenant_id, breach_type, severity, regulation, title, description,
			 discovered_at, occurred_at, report_deadline, affected_categories,
			 affected_subjects, containment_actions, reported_by, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ID, tenantValue(record.TenantID), string(record.BreachType),
		string(record.Severity), record.Regulation, record.Title,
		record.Description, record.DiscoveredAt, nullTime(record.OccurredAt),
		record.ReportDeadline, pq.Array(record.AffectedCategories),
		record.AffectedSubjects, record.ContainmentActions,
		uuid.UUID(record.ReportedBy), string(record.Status), record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert breach record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, recordID uuid.UUID) (*Record, error) {
	row := s.db.QueryRowContext(ctx, recordColumns+`
		FROM breach_records WHERE id = $1`, recordID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query breach record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Record, int, error) {
	where, args := buildWhere(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM breach_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count breach records: %w", err)
	}

	query := recordColumns + " FROM breach_records" + where + " ORDER BY discovered_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list breach records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan breach record: %w", err)
		}
		out = append(out, *record)
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
	if filter.Severity != "" {
		add("severity = $%d", string(filter.Severity))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.From != nil {
		add("discovered_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("discovered_at <= $%d", *filter.To)
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

const recordColumns = `
		SELECT id, tenant_id, breach_type, severity, regulation, title, description,
		       discovered_at, occurred_at, report_deadline, affected_categories,
		       affected_subjects, containment_actions, reported_by, status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record     Record
		tenantID   uuid.NullUUID
		occurredAt sql.NullTime
		categories pq.StringArray
		reportedBy uuid.UUID
	)
	err := row.Scan(
		&record.ID, &tenantID, &record.BreachType, &record.Severity,
		&record.Regulation, &record.Title, &record.Description,
		&record.DiscoveredAt, &occurredAt, &record.ReportDeadline,
		&categories, &record.AffectedSubjects, &record.ContainmentActions,
		&reportedBy, &record.Status, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tenantID.Valid {
		tid := id.TenantID(tenantID.UUID)
		record.TenantID = &tid
	}
	if occurredAt.Valid {
		record.OccurredAt = &occurredAt.Time
	}
	record.AffectedCategories = []string(categories)
	record.ReportedBy = id.UserID(reportedBy)
	return &record, nil
}

func tenantValue(tenantID *id.TenantID) any {
	if tenantID == nil {
		return nil
	}
	return uuid.UUID(*tenantID)
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}
