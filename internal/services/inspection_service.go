package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/models"
	"github.com/ops-management-api/internal/pipeline"
	"github.com/ops-management-api/internal/repository"
)

type CreateInspectionCommand struct {
	Title        string     `json:"title"`
	Location     string     `json:"location"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`

	// id is assigned before dispatch so the audit trail can correlate the
	// record that the handler creates.
	id uuid.UUID
}

func NewCreateInspectionCommand(title, location string, scheduledFor *time.Time) CreateInspectionCommand {
	return CreateInspectionCommand{Title: title, Location: location, ScheduledFor: scheduledFor, id: uuid.New()}
}

func (CreateInspectionCommand) Name() string        { return "CreateInspectionCommand" }
func (CreateInspectionCommand) Kind() pipeline.Kind { return pipeline.KindCommand }
func (CreateInspectionCommand) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true, Permissions: []string{"inspections.write"}}
}
func (c CreateInspectionCommand) EntityID() uuid.UUID { return c.id }

type UpdateInspectionCommand struct {
	InspectionID uuid.UUID                `json:"inspection_id"`
	Title        *string                  `json:"title,omitempty"`
	Location     *string                  `json:"location,omitempty"`
	Status       *models.InspectionStatus `json:"status,omitempty"`
	ScheduledFor *time.Time               `json:"scheduled_for,omitempty"`
}

func (UpdateInspectionCommand) Name() string        { return "UpdateInspectionCommand" }
func (UpdateInspectionCommand) Kind() pipeline.Kind { return pipeline.KindCommand }
func (UpdateInspectionCommand) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true, Permissions: []string{"inspections.write"}}
}
func (c UpdateInspectionCommand) EntityID() uuid.UUID { return c.InspectionID }

type DeleteInspectionCommand struct {
	InspectionID uuid.UUID `json:"inspection_id"`
}

func (DeleteInspectionCommand) Name() string        { return "DeleteInspectionCommand" }
func (DeleteInspectionCommand) Kind() pipeline.Kind { return pipeline.KindCommand }
func (DeleteInspectionCommand) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true, Permissions: []string{"inspections.delete"}}
}
func (c DeleteInspectionCommand) EntityID() uuid.UUID { return c.InspectionID }

type GetInspectionQuery struct {
	InspectionID   uuid.UUID `json:"inspection_id"`
	IncludeDeleted bool      `json:"include_deleted,omitempty"`
}

func (GetInspectionQuery) Name() string        { return "GetInspectionQuery" }
func (GetInspectionQuery) Kind() pipeline.Kind { return pipeline.KindQuery }
func (GetInspectionQuery) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true, Permissions: []string{"inspections.read"}}
}

type ListInspectionsQuery struct {
	IncludeDeleted bool `json:"include_deleted,omitempty"`
	Limit          int  `json:"limit,omitempty"`
	Offset         int  `json:"offset,omitempty"`
}

func (ListInspectionsQuery) Name() string        { return "ListInspectionsQuery" }
func (ListInspectionsQuery) Kind() pipeline.Kind { return pipeline.KindQuery }
func (ListInspectionsQuery) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true, Permissions: []string{"inspections.read"}}
}
func (ListInspectionsQuery) CachePolicy() pipeline.CachePolicy {
	return pipeline.CachePolicy{KeyPrefix: "inspections", TTL: time.Minute, VaryByTenant: true}
}

// InspectionDetail bundles an inspection with its attachments.
type InspectionDetail struct {
	Inspection models.Inspection `json:"inspection"`
	Documents  []models.Document `json:"documents"`
}

type InspectionService struct {
	logger        *zap.Logger
	cache         CacheInvalidator
	subscriptions *SubscriptionService
}

func NewInspectionService(logger *zap.Logger, cache CacheInvalidator, subscriptions *SubscriptionService) *InspectionService {
	return &InspectionService{logger: logger, cache: cache, subscriptions: subscriptions}
}

func (s *InspectionService) RegisterHandlers(exec *pipeline.Executor) {
	exec.Register("CreateInspectionCommand", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.Create(ctx, sc, req.(CreateInspectionCommand))
	})
	exec.Register("UpdateInspectionCommand", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.Update(ctx, sc, req.(UpdateInspectionCommand))
	})
	exec.Register("DeleteInspectionCommand", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return nil, s.Delete(ctx, sc, req.(DeleteInspectionCommand))
	})
	exec.Register("GetInspectionQuery", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.Get(ctx, sc, req.(GetInspectionQuery))
	})
	exec.Register("ListInspectionsQuery", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.List(ctx, sc, req.(ListInspectionsQuery))
	})
}

func (s *InspectionService) Create(ctx context.Context, sc *pipeline.Scope, cmd CreateInspectionCommand) (*models.Inspection, error) {
	if strings.TrimSpace(cmd.Title) == "" {
		return nil, apperr.BusinessRule("title_required", "inspection title is required")
	}
	if err := s.subscriptions.EnsureTenantActive(ctx, sc); err != nil {
		return nil, err
	}
	tenantID, err := tenantFor(sc, nil)
	if err != nil {
		return nil, err
	}

	id := cmd.id
	if id == uuid.Nil {
		id = uuid.New()
	}
	insp := &models.Inspection{
		ID:           id,
		TenantID:     tenantID,
		Title:        cmd.Title,
		Location:     cmd.Location,
		Status:       models.InspectionStatusDraft,
		ScheduledFor: cmd.ScheduledFor,
	}
	if cmd.ScheduledFor != nil {
		insp.Status = models.InspectionStatusScheduled
	}
	if sc.Principal.UserID != nil {
		insp.CreatedBy = *sc.Principal.UserID
	}

	inspections := repository.NewInspectionRepository(sc.DB())
	if err := inspections.Create(ctx, insp); err != nil {
		return nil, err
	}

	s.invalidateLists(ctx, tenantID)
	return insp, nil
}

func (s *InspectionService) Update(ctx context.Context, sc *pipeline.Scope, cmd UpdateInspectionCommand) (*models.Inspection, error) {
	if err := s.subscriptions.EnsureTenantActive(ctx, sc); err != nil {
		return nil, err
	}

	inspections := repository.NewInspectionRepository(sc.DB())
	insp, err := inspections.GetByID(ctx, cmd.InspectionID, false)
	if err != nil {
		return nil, err
	}

	if cmd.Title != nil {
		if strings.TrimSpace(*cmd.Title) == "" {
			return nil, apperr.BusinessRule("title_required", "inspection title is required")
		}
		insp.Title = *cmd.Title
	}
	if cmd.Location != nil {
		insp.Location = *cmd.Location
	}
	if cmd.ScheduledFor != nil {
		insp.ScheduledFor = cmd.ScheduledFor
	}
	if cmd.Status != nil {
		if err := insp.TransitionTo(*cmd.Status, time.Now()); err != nil {
			return nil, err
		}
	}

	if err := inspections.Update(ctx, insp); err != nil {
		return nil, err
	}

	s.invalidateLists(ctx, insp.TenantID)
	return insp, nil
}

func (s *InspectionService) Delete(ctx context.Context, sc *pipeline.Scope, cmd DeleteInspectionCommand) error {
	if err := s.subscriptions.EnsureTenantActive(ctx, sc); err != nil {
		return err
	}

	inspections := repository.NewInspectionRepository(sc.DB())
	insp, err := inspections.GetByID(ctx, cmd.InspectionID, false)
	if err != nil {
		return err
	}
	if err := inspections.SoftDelete(ctx, insp.ID); err != nil {
		return err
	}

	s.invalidateLists(ctx, insp.TenantID)
	return nil
}

func (s *InspectionService) Get(ctx context.Context, sc *pipeline.Scope, q GetInspectionQuery) (*InspectionDetail, error) {
	inspections := repository.NewInspectionRepository(sc.DB())
	insp, err := inspections.GetByID(ctx, q.InspectionID, q.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	documents := repository.NewDocumentRepository(sc.DB())
	docs, err := documents.ListByInspection(ctx, insp.ID)
	if err != nil {
		return nil, err
	}

	return &InspectionDetail{Inspection: *insp, Documents: docs}, nil
}

func (s *InspectionService) List(ctx context.Context, sc *pipeline.Scope, q ListInspectionsQuery) ([]models.Inspection, error) {
	inspections := repository.NewInspectionRepository(sc.DB())
	list, err := inspections.List(ctx, q.IncludeDeleted, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Inspection{}
	}
	return list, nil
}

func (s *InspectionService) invalidateLists(ctx context.Context, tenantID uuid.UUID) {
	if err := s.cache.RemoveByPattern(ctx, "inspections:T"+tenantID.String()); err != nil {
		s.logger.Warn("failed to invalidate inspection cache",
			zap.String("tenant_id", tenantID.String()), zap.Error(err))
	}
}
