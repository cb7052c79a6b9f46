package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/database"
	"github.com/ops-management-api/internal/models"
)

// InspectionRepository runs on a request session, so row visibility comes
// from the bound tenant scope; no query here filters by tenant id itself.
type InspectionRepository struct {
	db database.Querier
}

func NewInspectionRepository(db database.Querier) *InspectionRepository {
	return &InspectionRepository{db: db}
}

const inspectionColumns = `id, tenant_id, title, location, status, scheduled_for, completed_at,
		created_by, created_at, updated_at, deleted_at`

func scanInspection(row pgx.Row) (*models.Inspection, error) {
	insp := &models.Inspection{}
	err := row.Scan(
		&insp.ID,
		&insp.TenantID,
		&insp.Title,
		&insp.Location,
		&insp.Status,
		&insp.ScheduledFor,
		&insp.CompletedAt,
		&insp.CreatedBy,
		&insp.CreatedAt,
		&insp.UpdatedAt,
		&insp.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return insp, nil
}

// Create inserts an inspection.
func (r *InspectionRepository) Create(ctx context.Context, insp *models.Inspection) error {
	query := `
		INSERT INTO inspections (id, tenant_id, title, location, status, scheduled_for, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query,
		insp.ID,
		insp.TenantID,
		insp.Title,
		insp.Location,
		insp.Status,
		insp.ScheduledFor,
		insp.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create inspection: %w", err)
	}
	return nil
}

// GetByID returns one inspection. Soft-deleted rows are hidden unless
// includeDeleted is set.
func (r *InspectionRepository) GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*models.Inspection, error) {
	query := `SELECT ` + inspectionColumns + ` FROM inspections WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	insp, err := scanInspection(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("inspection")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inspection: %w", err)
	}
	return insp, nil
}

// List returns inspections newest first.
func (r *InspectionRepository) List(ctx context.Context, includeDeleted bool, limit, offset int) ([]models.Inspection, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT ` + inspectionColumns + ` FROM inspections`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query inspections: %w", err)
	}
	defer rows.Close()

	var inspections []models.Inspection
	for rows.Next() {
		insp, err := scanInspection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inspection: %w", err)
		}
		inspections = append(inspections, *insp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inspections: %w", err)
	}
	return inspections, nil
}

// Update persists title, location, status and schedule changes.
func (r *InspectionRepository) Update(ctx context.Context, insp *models.Inspection) error {
	query := `
		UPDATE inspections
		SET title = $2, location = $3, status = $4, scheduled_for = $5, completed_at = $6, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query,
		insp.ID,
		insp.Title,
		insp.Location,
		insp.Status,
		insp.ScheduledFor,
		insp.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update inspection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("inspection")
	}
	return nil
}

// SoftDelete marks an inspection deleted without removing the row.
func (r *InspectionRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE inspections SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete inspection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("inspection")
	}
	return nil
}
