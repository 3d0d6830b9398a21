package masking

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// PostgresStore persists masking rules in the masking_rules table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, rule *Rule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	query := `
		INSERT INTO masking_rules
			(id, tenant_id, role, resource_type, field_name, masking_type,
			 pattern, preserve_length, priority, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		rule.ID, tenantValue(rule.TenantID), rule.Role, rule.ResourceType,
		rule.FieldName, string(rule.Type), rule.Pattern, rule.PreserveLength,
		rule.Priority, rule.Enabled, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert masking rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, rule *Rule) error {
	rule.UpdatedAt = time.Now()
	query := `
		UPDATE masking_rules
		SET role = $2, resource_type = $3, field_name = $4, masking_type = $5,
		    pattern = $6, preserve_length = $7, priority = $8, enabled = $9,
		    updated_at = $10
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		rule.ID, rule.Role, rule.ResourceType, rule.FieldName, string(rule.Type),
		rule.Pattern, rule.PreserveLength, rule.Priority, rule.Enabled, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update masking rule: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) SetEnabled(ctx context.Context, ruleID uuid.UUID, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE masking_rules SET enabled = $2, updated_at = $3 WHERE id = $1`,
		ruleID, enabled, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("set masking rule enabled: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) ListForScope(ctx context.Context, tenantID *id.TenantID, role string) ([]Rule, error) {
	query := `
		SELECT id, tenant_id, role, resource_type, field_name, masking_type,
		       pattern, preserve_length, priority, enabled, created_at, updated_at
		FROM masking_rules
		WHERE enabled = TRUE
		  AND (tenant_id IS NULL OR tenant_id = $1)
		  AND (role = '*' OR role = $2)
		ORDER BY priority DESC, created_at
	`
	rows, err := s.db.QueryContext(ctx, query, tenantValue(tenantID), role)
	if err != nil {
		return nil, fmt.Errorf("list masking rules for scope: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

func (s *PostgresStore) List(ctx context.Context, tenantID *id.TenantID) ([]Rule, error) {
	query := `
		SELECT id, tenant_id, role, resource_type, field_name, masking_type,
		       pattern, preserve_length, priority, enabled, created_at, updated_at
		FROM masking_rules
		WHERE ($1::uuid IS NULL AND tenant_id IS NULL) OR tenant_id = $1
		ORDER BY priority DESC, created_at
	`
	rows, err := s.db.QueryContext(ctx, query, tenantValue(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list masking rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

func scanRules(rows *sql.Rows) ([]Rule, error) {
	var out []Rule
	for rows.Next() {
		var (
			rule     Rule
			tenant   sql.NullString
			maskType string
		)
		if err := rows.Scan(
			&rule.ID, &tenant, &rule.Role, &rule.ResourceType, &rule.FieldName,
			&maskType, &rule.Pattern, &rule.PreserveLength, &rule.Priority,
			&rule.Enabled, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan masking rule: %w", err)
		}
		rule.Type = Type(maskType)
		if tenant.Valid {
			tenantID, err := id.ParseTenantID(tenant.String)
			if err != nil {
				return nil, fmt.Errorf("scan masking rule tenant: %w", err)
			}
			rule.TenantID = &tenantID
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func tenantValue(tenantID *id.TenantID) any {
	if tenantID == nil {
		return nil
	}
	return uuid.UUID(*tenantID)
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
