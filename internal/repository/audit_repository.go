package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ops-management-api/internal/database"
	"github.com/ops-management-api/internal/models"
)

// AuditRepository is the append-only audit sink. It runs on the shared pool,
// never on a request session, so audit rows survive a rolled-back command.
type AuditRepository struct {
	db database.Querier
}

func NewAuditRepository(db database.Querier) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append writes one audit record.
func (r *AuditRepository) Append(ctx context.Context, record models.AuditRecord) error {
	query := `
		INSERT INTO audit_records (id, action, entity_type, entity_id, old_values, new_values,
			tenant_id, user_id, duration_ms, success, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.Action,
		record.EntityType,
		record.EntityID,
		record.OldValues,
		record.NewValues,
		record.TenantID,
		record.UserID,
		record.DurationMs,
		record.Success,
		nullableString(record.ErrorMessage),
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// DeleteOlderThan purges records before the retention cutoff; run by the
// worker sweep.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM audit_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListByTenant returns the newest records for a tenant.
func (r *AuditRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]models.AuditRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, action, entity_type, entity_id, old_values, new_values,
			tenant_id, user_id, duration_ms, success, error_message, created_at
		FROM audit_records
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []models.AuditRecord
	for rows.Next() {
		var record models.AuditRecord
		var errorMessage *string
		if err := rows.Scan(
			&record.ID,
			&record.Action,
			&record.EntityType,
			&record.EntityID,
			&record.OldValues,
			&record.NewValues,
			&record.TenantID,
			&record.UserID,
			&record.DurationMs,
			&record.Success,
			&errorMessage,
			&record.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if errorMessage != nil {
			record.ErrorMessage = *errorMessage
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}
	return records, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
