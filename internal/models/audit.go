package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditRecord is one append-only row per executed command, written whether
// the command succeeded or failed. Retention is handled by the worker purge.
type AuditRecord struct {
	ID           uuid.UUID  `json:"id"`
	Action       string     `json:"action"`
	EntityType   string     `json:"entity_type"`
	EntityID     *uuid.UUID `json:"entity_id,omitempty"`
	OldValues    []byte     `json:"old_values,omitempty"`
	NewValues    []byte     `json:"new_values,omitempty"`
	TenantID     *uuid.UUID `json:"tenant_id,omitempty"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	DurationMs   int64      `json:"duration_ms"`
	Success      bool       `json:"success"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}
