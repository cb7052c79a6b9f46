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

type DocumentRepository struct {
	db database.Querier
}

func NewDocumentRepository(db database.Querier) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, tenant_id, inspection_id, file_name, content_type, size_bytes,
		storage_path, public_url, thumbnail_url, uploaded_by, created_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	doc := &models.Document{}
	var publicURL, thumbnailURL *string
	err := row.Scan(
		&doc.ID,
		&doc.TenantID,
		&doc.InspectionID,
		&doc.FileName,
		&doc.ContentType,
		&doc.SizeBytes,
		&doc.StoragePath,
		&publicURL,
		&thumbnailURL,
		&doc.UploadedBy,
		&doc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if publicURL != nil {
		doc.PublicURL = *publicURL
	}
	if thumbnailURL != nil {
		doc.ThumbnailURL = *thumbnailURL
	}
	return doc, nil
}

// Create inserts a document row.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, tenant_id, inspection_id, file_name, content_type, size_bytes,
			storage_path, public_url, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		doc.ID,
		doc.TenantID,
		doc.InspectionID,
		doc.FileName,
		doc.ContentType,
		doc.SizeBytes,
		doc.StoragePath,
		nullableString(doc.PublicURL),
		doc.UploadedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID returns one document.
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	doc, err := scanDocument(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("document")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListByInspection returns an inspection's attachments.
func (r *DocumentRepository) ListByInspection(ctx context.Context, inspectionID uuid.UUID) ([]models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE inspection_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

// SetThumbnailURL is called by the worker once a thumbnail has been rendered.
func (r *DocumentRepository) SetThumbnailURL(ctx context.Context, id uuid.UUID, url string) error {
	tag, err := r.db.Exec(ctx, `UPDATE documents SET thumbnail_url = $2 WHERE id = $1`, id, url)
	if err != nil {
		return fmt.Errorf("failed to set thumbnail url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("document")
	}
	return nil
}

// Delete removes a document row.
func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("document")
	}
	return nil
}
