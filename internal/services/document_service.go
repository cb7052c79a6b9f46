package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/models"
	"github.com/ops-management-api/internal/pipeline"
	"github.com/ops-management-api/internal/repository"
	"github.com/ops-management-api/internal/storage"
)

// Feature codes the document workflow consumes.
const (
	FeatureMaxDocuments = "max_documents"
	FeatureMaxStorageMB = "max_storage_mb"
)

type UploadDocumentCommand struct {
	InspectionID *uuid.UUID `json:"inspection_id,omitempty"`
	FileName     string     `json:"file_name"`
	ContentType  string     `json:"content_type"`
	SizeBytes    int64      `json:"size_bytes"`

	// Content never enters the audit trail or any serialized form.
	Content []byte `json:"-"`

	id uuid.UUID
}

func NewUploadDocumentCommand(inspectionID *uuid.UUID, fileName, contentType string, content []byte) UploadDocumentCommand {
	return UploadDocumentCommand{
		InspectionID: inspectionID,
		FileName:     fileName,
		ContentType:  contentType,
		SizeBytes:    int64(len(content)),
		Content:      content,
		id:           uuid.New(),
	}
}

func (UploadDocumentCommand) Name() string        { return "UploadDocumentCommand" }
func (UploadDocumentCommand) Kind() pipeline.Kind { return pipeline.KindCommand }
func (UploadDocumentCommand) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true, Permissions: []string{"documents.write"}}
}
func (c UploadDocumentCommand) EntityID() uuid.UUID { return c.id }

type DeleteDocumentCommand struct {
	DocumentID uuid.UUID `json:"document_id"`
}

func (DeleteDocumentCommand) Name() string        { return "DeleteDocumentCommand" }
func (DeleteDocumentCommand) Kind() pipeline.Kind { return pipeline.KindCommand }
func (DeleteDocumentCommand) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true, Permissions: []string{"documents.delete"}}
}
func (c DeleteDocumentCommand) EntityID() uuid.UUID { return c.DocumentID }

// DownloadDocumentCommand is a command, not a query, so every download lands
// in the audit trail.
type DownloadDocumentCommand struct {
	DocumentID uuid.UUID `json:"document_id"`
}

func (DownloadDocumentCommand) Name() string        { return "DownloadDocumentCommand" }
func (DownloadDocumentCommand) Kind() pipeline.Kind { return pipeline.KindCommand }
func (DownloadDocumentCommand) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true, Permissions: []string{"documents.read"}}
}
func (c DownloadDocumentCommand) EntityID() uuid.UUID { return c.DocumentID }

// DocumentContent carries a download stream back to the transport layer.
type DocumentContent struct {
	Document models.Document
	Body     io.ReadCloser
}

// ThumbnailJob is the payload queued for the worker after an image upload.
type ThumbnailJob struct {
	DocumentID  uuid.UUID `json:"document_id"`
	StoragePath string    `json:"storage_path"`
}

// Enqueuer pushes background jobs; the redis cache satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, payload []byte) error
}

type DocumentService struct {
	logger        *zap.Logger
	driver        storage.Driver
	queue         Enqueuer
	queueName     string
	subscriptions *SubscriptionService
	entitlements  *EntitlementService
}

func NewDocumentService(logger *zap.Logger, driver storage.Driver, queue Enqueuer, queueName string,
	subscriptions *SubscriptionService, entitlements *EntitlementService) *DocumentService {
	return &DocumentService{
		logger:        logger,
		driver:        driver,
		queue:         queue,
		queueName:     queueName,
		subscriptions: subscriptions,
		entitlements:  entitlements,
	}
}

func (s *DocumentService) RegisterHandlers(exec *pipeline.Executor) {
	exec.Register("UploadDocumentCommand", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.Upload(ctx, sc, req.(UploadDocumentCommand))
	})
	exec.Register("DeleteDocumentCommand", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return nil, s.Delete(ctx, sc, req.(DeleteDocumentCommand))
	})
	exec.Register("DownloadDocumentCommand", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.Download(ctx, sc, req.(DownloadDocumentCommand))
	})
}

// storageMB converts a byte count to the whole megabytes it occupies,
// rounding up so a 1-byte file still costs one unit.
func storageMB(sizeBytes int64) int64 {
	const mb = 1 << 20
	return (sizeBytes + mb - 1) / mb
}

// Upload consumes the document-count and storage entitlements, stores the
// file, and records the document. Everything but the stored bytes rolls back
// with the transaction; a leaked file without a row is harmless.
func (s *DocumentService) Upload(ctx context.Context, sc *pipeline.Scope, cmd UploadDocumentCommand) (*models.Document, error) {
	if cmd.FileName == "" || len(cmd.Content) == 0 {
		return nil, apperr.BusinessRule("file_required", "a non-empty file is required")
	}
	if err := s.subscriptions.EnsureTenantActive(ctx, sc); err != nil {
		return nil, err
	}
	tenantID, err := tenantFor(sc, nil)
	if err != nil {
		return nil, err
	}

	if cmd.InspectionID != nil {
		inspections := repository.NewInspectionRepository(sc.DB())
		if _, err := inspections.GetByID(ctx, *cmd.InspectionID, false); err != nil {
			return nil, err
		}
	}

	if _, err := s.entitlements.Consume(ctx, sc, tenantID, FeatureMaxDocuments, 1); err != nil {
		return nil, err
	}
	if _, err := s.entitlements.Consume(ctx, sc, tenantID, FeatureMaxStorageMB, storageMB(cmd.SizeBytes)); err != nil {
		return nil, err
	}

	id := cmd.id
	if id == uuid.Nil {
		id = uuid.New()
	}
	path := fmt.Sprintf("tenants/%s/documents/%s%s", tenantID, id, filepath.Ext(cmd.FileName))

	storagePath, publicURL, err := s.driver.Upload(ctx, bytes.NewReader(cmd.Content), path, cmd.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	doc := &models.Document{
		ID:           id,
		TenantID:     tenantID,
		InspectionID: cmd.InspectionID,
		FileName:     cmd.FileName,
		ContentType:  cmd.ContentType,
		SizeBytes:    cmd.SizeBytes,
		StoragePath:  storagePath,
		PublicURL:    publicURL,
	}
	if sc.Principal.UserID != nil {
		doc.UploadedBy = *sc.Principal.UserID
	}

	documents := repository.NewDocumentRepository(sc.DB())
	if err := documents.Create(ctx, doc); err != nil {
		return nil, err
	}

	if strings.HasPrefix(cmd.ContentType, "image/") {
		s.enqueueThumbnail(ctx, doc)
	}

	return doc, nil
}

func (s *DocumentService) Delete(ctx context.Context, sc *pipeline.Scope, cmd DeleteDocumentCommand) error {
	if err := s.subscriptions.EnsureTenantActive(ctx, sc); err != nil {
		return err
	}

	documents := repository.NewDocumentRepository(sc.DB())
	doc, err := documents.GetByID(ctx, cmd.DocumentID)
	if err != nil {
		return err
	}

	if err := documents.Delete(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.entitlements.Release(ctx, sc, doc.TenantID, FeatureMaxDocuments, 1); err != nil {
		return err
	}
	if err := s.entitlements.Release(ctx, sc, doc.TenantID, FeatureMaxStorageMB, storageMB(doc.SizeBytes)); err != nil {
		return err
	}

	// The row delete commits with the transaction; a failed backend delete
	// only leaks the stored bytes.
	if err := s.driver.Delete(ctx, doc.StoragePath); err != nil {
		s.logger.Warn("failed to delete stored file",
			zap.String("document_id", doc.ID.String()),
			zap.String("storage_path", doc.StoragePath),
			zap.Error(err),
		)
	}
	return nil
}

func (s *DocumentService) Download(ctx context.Context, sc *pipeline.Scope, cmd DownloadDocumentCommand) (*DocumentContent, error) {
	documents := repository.NewDocumentRepository(sc.DB())
	doc, err := documents.GetByID(ctx, cmd.DocumentID)
	if err != nil {
		return nil, err
	}

	body, err := s.driver.Reader(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open stored file: %w", err)
	}
	return &DocumentContent{Document: *doc, Body: body}, nil
}

func (s *DocumentService) enqueueThumbnail(ctx context.Context, doc *models.Document) {
	payload, err := json.Marshal(ThumbnailJob{DocumentID: doc.ID, StoragePath: doc.StoragePath})
	if err != nil {
		return
	}
	if err := s.queue.Enqueue(ctx, s.queueName, payload); err != nil {
		s.logger.Warn("failed to enqueue thumbnail job",
			zap.String("document_id", doc.ID.String()), zap.Error(err))
	}
}
