package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ops-management-api/internal/models"
	"github.com/ops-management-api/internal/pipeline"
	"github.com/ops-management-api/internal/repository"
)

// GetAuditTrailQuery pages through a tenant's audit records, newest first.
type GetAuditTrailQuery struct {
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}

func (GetAuditTrailQuery) Name() string        { return "GetAuditTrailQuery" }
func (GetAuditTrailQuery) Kind() pipeline.Kind { return pipeline.KindQuery }
func (GetAuditTrailQuery) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true, Permissions: []string{"audit.read"}}
}

type AuditService struct {
	logger *zap.Logger
}

func NewAuditService(logger *zap.Logger) *AuditService {
	return &AuditService{logger: logger}
}

func (s *AuditService) RegisterHandlers(exec *pipeline.Executor) {
	exec.Register("GetAuditTrailQuery", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.GetTrail(ctx, sc, req.(GetAuditTrailQuery))
	})
}

func (s *AuditService) GetTrail(ctx context.Context, sc *pipeline.Scope, q GetAuditTrailQuery) ([]models.AuditRecord, error) {
	tenantID, err := tenantFor(sc, q.TenantID)
	if err != nil {
		return nil, err
	}

	audits := repository.NewAuditRepository(sc.DB())
	records, err := audits.ListByTenant(ctx, tenantID, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.AuditRecord{}
	}
	return records, nil
}
