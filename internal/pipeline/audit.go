package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/metrics"
	"github.com/ops-management-api/internal/models"
)

// AuditSink is the append-only trail the recorder writes to. Implementations
// must not join the request's transaction: a failed command still leaves an
// audit row.
type AuditSink interface {
	Append(ctx context.Context, record models.AuditRecord) error
}

// AuditBehavior records every command outcome, success or failure, after the
// handler has run. Append failures are logged and swallowed; auditing is
// observability, not a correctness gate.
type AuditBehavior struct {
	sink    AuditSink
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewAuditBehavior(sink AuditSink, logger *zap.Logger, m *metrics.Metrics) *AuditBehavior {
	return &AuditBehavior{sink: sink, logger: logger, metrics: m, now: time.Now}
}

func (b *AuditBehavior) Handle(ctx context.Context, sc *Scope, req Request, next Handler) (any, error) {
	if req.Kind() != KindCommand {
		return next(ctx, sc, req)
	}

	start := b.now()
	result, err := next(ctx, sc, req)

	action, entityType := DeriveAudit(req.Name())
	record := models.AuditRecord{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		TenantID:   sc.Principal.TenantID,
		UserID:     sc.Principal.UserID,
		DurationMs: b.now().Sub(start).Milliseconds(),
		Success:    err == nil,
		Timestamp:  start,
	}
	if identified, ok := req.(Identified); ok {
		id := identified.EntityID()
		record.EntityID = &id
	}
	if payload, marshalErr := json.Marshal(req); marshalErr == nil {
		record.NewValues = payload
	}
	if err != nil {
		record.ErrorMessage = safeErrorMessage(err)
	}

	// The record survives a client disconnect that cancelled the request.
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if appendErr := b.sink.Append(appendCtx, record); appendErr != nil {
		b.logger.Warn("audit append failed",
			zap.String("request", req.Name()), zap.Error(appendErr))
		if b.metrics != nil {
			b.metrics.AuditFailures.Inc()
		}
	}

	return result, err
}

// safeErrorMessage keeps internal detail out of the stored message for
// untyped errors.
func safeErrorMessage(err error) string {
	if apperr.KindOf(err) != apperr.KindUnexpected {
		return err.Error()
	}
	return "internal error"
}

var auditActionPrefixes = []string{"Create", "Update", "Delete", "Upload", "Download"}

// DeriveAudit maps a request name to its audit action and entity type by the
// naming convention: a known action prefix is split off, the Command suffix
// is dropped, and anything else becomes an Execute on the full stem.
func DeriveAudit(name string) (action, entityType string) {
	stem := strings.TrimSuffix(name, "Command")
	for _, prefix := range auditActionPrefixes {
		if strings.HasPrefix(stem, prefix) && len(stem) > len(prefix) {
			return prefix, stem[len(prefix):]
		}
	}
	return "Execute", stem
}
