package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ops-management-api/internal/apperr"
)

// Inspection is a safety/compliance inspection. Rows are tenant-partitioned
// by RLS; DeletedAt implements soft delete with an explicit includeDeleted
// flag on reads.
type Inspection struct {
	ID           uuid.UUID        `json:"id"`
	TenantID     uuid.UUID        `json:"tenant_id"`
	Title        string           `json:"title"`
	Location     string           `json:"location,omitempty"`
	Status       InspectionStatus `json:"status"`
	ScheduledFor *time.Time       `json:"scheduled_for,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	CreatedBy    uuid.UUID        `json:"created_by"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	DeletedAt    *time.Time       `json:"deleted_at,omitempty"`
}

// TransitionTo moves the inspection forward through its workflow. Completed
// is terminal and stamps CompletedAt.
func (i *Inspection) TransitionTo(status InspectionStatus, now time.Time) error {
	if i.Status == InspectionStatusCompleted {
		return apperr.BusinessRule("inspection_completed", "a completed inspection cannot change status")
	}
	switch status {
	case InspectionStatusDraft, InspectionStatusScheduled:
		i.Status = status
	case InspectionStatusCompleted:
		i.Status = status
		i.CompletedAt = &now
	default:
		return apperr.BusinessRule("invalid_status", "unknown inspection status").
			WithDetail("status", string(status))
	}
	return nil
}

// Document is an uploaded attachment (report, photo evidence) counted against
// the tenant's max_documents and max_storage_mb entitlements.
type Document struct {
	ID           uuid.UUID  `json:"id"`
	TenantID     uuid.UUID  `json:"tenant_id"`
	InspectionID *uuid.UUID `json:"inspection_id,omitempty"`
	FileName     string     `json:"file_name"`
	ContentType  string     `json:"content_type"`
	SizeBytes    int64      `json:"size_bytes"`
	StoragePath  string     `json:"storage_path"`
	PublicURL    string     `json:"public_url,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	UploadedBy   uuid.UUID  `json:"uploaded_by"`
	CreatedAt    time.Time  `json:"created_at"`
}
