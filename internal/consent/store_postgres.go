package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
	txcontext "custodia/pkg/platform/tx"
)

// PostgresStore persists consent records in the consent_records table.
// RunInTx opens a real transaction and threads it through context so the
// supersession sequence commits atomically.
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
		return fmt.Errorf("begin consent tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback consent tx: %v (original: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit consent tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO consent_records
			(id, tenant_id, subject_type, subject_id, consent_type, status,
			 purpose, legal_basis, consent_text, consent_version, expires_at,
			 collected_by, collection_method, collection_ip, granted_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		record.ID, uuid.UUID(record.TenantID), string(record.SubjectType),
		record.SubjectID, string(record.ConsentType), string(record.Status),
		record.Purpose, string(record.LegalBasis), record.ConsentText,
		record.ConsentVersion, nullTime(record.ExpiresAt), record.CollectedBy,
		record.CollectionMethod, record.CollectionIP, record.GrantedAt, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert consent record: %w", err)
	}
	return nil
}

func (s *PostgresStore) CurrentGranted(ctx context.Context, key Key) (*Record, error) {
	query := selectColumns + `
		FROM consent_records
		WHERE tenant_id = $1 AND subject_type = $2 AND subject_id = $3
		  AND consent_type = $4 AND status = 'granted'
		ORDER BY granted_at DESC
		LIMIT 1
	`
	row := s.execer(ctx).QueryRowContext(ctx, query,
		uuid.UUID(key.TenantID), string(key.SubjectType), key.SubjectID, string(key.ConsentType),
	)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query current granted consent: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) Withdraw(ctx context.Context, key Key, reason string, at time.Time) (bool, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE consent_records
		SET status = 'withdrawn', withdrawn_at = $5, withdrawal_reason = $6
		WHERE tenant_id = $1 AND subject_type = $2 AND subject_id = $3
		  AND consent_type = $4 AND status = 'granted'`,
		uuid.UUID(key.TenantID), string(key.SubjectType), key.SubjectID,
		string(key.ConsentType), at, reason,
	)
	if err != nil {
		return false, fmt.Errorf("withdraw consent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, tenantID id.TenantID, subjectType SubjectType, subjectID string) ([]Record, error) {
	query := selectColumns + `
		FROM consent_records
		WHERE tenant_id = $1 AND subject_type = $2 AND subject_id = $3
		ORDER BY granted_at DESC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query,
		uuid.UUID(tenantID), string(subjectType), subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list subject consents: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent record: %w", err)
		}
		out = append(out, *record)
	}
	return out, rows.Err()
}

const selectColumns = `
		SELECT id, tenant_id, subject_type, subject_id, consent_type, status,
		       purpose, legal_basis, consent_text, consent_version, expires_at,
		       collected_by, collection_method, collection_ip, granted_at,
		       withdrawn_at, withdrawal_reason, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record           Record
		tenantID         uuid.UUID
		expiresAt        sql.NullTime
		withdrawnAt      sql.NullTime
		withdrawalReason sql.NullString
	)
	err := row.Scan(
		&record.ID, &tenantID, &record.SubjectType, &record.SubjectID,
		&record.ConsentType, &record.Status, &record.Purpose, &record.LegalBasis,
		&record.ConsentText, &record.ConsentVersion, &expiresAt,
		&record.CollectedBy, &record.CollectionMethod, &record.CollectionIP,
		&record.GrantedAt, &withdrawnAt, &withdrawalReason, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.TenantID = id.TenantID(tenantID)
	if expiresAt.Valid {
		record.ExpiresAt = &expiresAt.Time
	}
	if withdrawnAt.Valid {
		record.WithdrawnAt = &withdrawnAt.Time
	}
	if withdrawalReason.Valid {
		record.WithdrawalReason = withdrawalReason.String
	}
	return &record, nil
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}
