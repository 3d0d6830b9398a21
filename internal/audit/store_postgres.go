package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// PostgresStore persists access log entries in the access_logs table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO access_logs
			(id, tenant_id, accessor_kind, accessor_id, accessor_email, accessor_role,
			 data_category, resource_type, resource_id, fields, access_kind,
			 reason, reason_detail, ticket_ref, ip_address, user_agent, browser,
			 os, session_id, risk_tier, flagged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20, FALSE, $21)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, tenantValue(entry.TenantID), string(entry.AccessorKind),
		uuid.UUID(entry.AccessorID), entry.AccessorEmail, entry.AccessorRole,
		string(entry.DataCategory), entry.ResourceType, entry.ResourceID,
		pq.Array(entry.Fields), string(entry.AccessKind), string(entry.Reason),
		entry.ReasonDetail, entry.TicketRef, entry.Client.IPAddress,
		entry.Client.UserAgent, entry.Client.Browser, entry.Client.OS,
		entry.Client.SessionID, string(entry.RiskTier), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Entry, int, error) {
	where, args := buildWhere(filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM access_logs" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count access logs: %w", err)
	}

	query := `
		SELECT id, tenant_id, accessor_kind, accessor_id, accessor_email, accessor_role,
		       data_category, resource_type, resource_id, fields, access_kind,
		       reason, reason_detail, ticket_ref, ip_address, user_agent, browser,
		       os, session_id, risk_tier, flagged, flag_reason, reviewed_by,
		       reviewed_at, created_at
		FROM access_logs` + where + `
		ORDER BY created_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list access logs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

func (s *PostgresStore) Flag(ctx context.Context, entryID uuid.UUID, reason string, reviewerID id.UserID, reviewedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE access_logs
		SET flagged = TRUE, flag_reason = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $1`,
		entryID, reason, uuid.UUID(reviewerID), reviewedAt,
	)
	if err != nil {
		return fmt.Errorf("flag access log: %w", err)
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

func (s *PostgresStore) AccessorActivity(ctx context.Context, accessorID id.UserID, tenantID *id.TenantID, now time.Time) (ActivityWindow, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE created_at > $2),
			COUNT(*) FILTER (WHERE created_at > $3),
			COUNT(*) FILTER (WHERE created_at > $2 AND data_category = 'phi')
		FROM access_logs
		WHERE accessor_id = $1 AND ($4::uuid IS NULL OR tenant_id = $4)
	`
	var window ActivityWindow
	err := s.db.QueryRowContext(ctx, query,
		uuid.UUID(accessorID), now.Add(-time.Hour), now.Add(-24*time.Hour), tenantValue(tenantID),
	).Scan(&window.LastHour, &window.LastDay, &window.PHILastHour)
	if err != nil {
		return ActivityWindow{}, fmt.Errorf("accessor activity: %w", err)
	}
	return window, nil
}

func buildWhere(filter Filter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.TenantID != nil {
		add("tenant_id = $%d", uuid.UUID(*filter.TenantID))
	}
	if filter.AccessorID != nil {
		add("accessor_id = $%d", uuid.UUID(*filter.AccessorID))
	}
	if filter.ResourceType != "" {
		add("resource_type = $%d", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		add("resource_id = $%d", filter.ResourceID)
	}
	if filter.DataCategory != "" {
		add("data_category = $%d", string(filter.DataCategory))
	}
	if filter.RiskTier != "" {
		add("risk_tier = $%d", string(filter.RiskTier))
	}
	if filter.Flagged != nil {
		add("flagged = $%d", *filter.Flagged)
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
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		entry      Entry
		tenant     sql.NullString
		accessorID uuid.UUID
		fields     pq.StringArray
		flagReason sql.NullString
		reviewedBy sql.NullString
		reviewedAt sql.NullTime
	)
	if err := rows.Scan(
		&entry.ID, &tenant, &entry.AccessorKind, &accessorID, &entry.AccessorEmail,
		&entry.AccessorRole, &entry.DataCategory, &entry.ResourceType, &entry.ResourceID,
		&fields, &entry.AccessKind, &entry.Reason, &entry.ReasonDetail, &entry.TicketRef,
		&entry.Client.IPAddress, &entry.Client.UserAgent, &entry.Client.Browser,
		&entry.Client.OS, &entry.Client.SessionID, &entry.RiskTier, &entry.Flagged,
		&flagReason, &reviewedBy, &reviewedAt, &entry.CreatedAt,
	); err != nil {
		return Entry{}, fmt.Errorf("scan access log: %w", err)
	}
	entry.AccessorID = id.UserID(accessorID)
	entry.Fields = fields
	if tenant.Valid {
		tenantID, err := id.ParseTenantID(tenant.String)
		if err != nil {
			return Entry{}, fmt.Errorf("scan access log tenant: %w", err)
		}
		entry.TenantID = &tenantID
	}
	if flagReason.Valid {
		entry.FlagReason = flagReason.String
	}
	if reviewedBy.Valid {
		reviewer, err := id.ParseUserID(reviewedBy.String)
		if err != nil {
			return Entry{}, fmt.Errorf("scan access log reviewer: %w", err)
		}
		entry.ReviewedBy = &reviewer
	}
	if reviewedAt.Valid {
		entry.ReviewedAt = &reviewedAt.Time
	}
	return entry, nil
}

func tenantValue(tenantID *id.TenantID) any {
	if tenantID == nil {
		return nil
	}
	return uuid.UUID(*tenantID)
}
