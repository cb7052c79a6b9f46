package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ops-management-api/internal/database"
	"github.com/ops-management-api/internal/repository"
	"github.com/ops-management-api/internal/services"
	"github.com/ops-management-api/internal/storage"
)

// thumbnailMaxSize bounds the longest edge of a generated thumbnail.
const thumbnailMaxSize = 320

// ThumbnailProcessor consumes queued image uploads and renders thumbnails
// back into storage.
type ThumbnailProcessor struct {
	logger *zap.Logger
	db     database.Querier
	client *redis.Client
	driver storage.Driver
	queue  string
}

func NewThumbnailProcessor(logger *zap.Logger, db database.Querier, client *redis.Client,
	driver storage.Driver, queue string) *ThumbnailProcessor {
	return &ThumbnailProcessor{logger: logger, db: db, client: client, driver: driver, queue: queue}
}

// Run blocks popping jobs until the context is cancelled. A malformed or
// failed job is logged and dropped; the queue is not a durable retry system.
func (p *ThumbnailProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		values, err := p.client.BRPop(ctx, 5*time.Second, p.queue).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("failed to pop thumbnail job", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if len(values) != 2 {
			continue
		}

		var job services.ThumbnailJob
		if err := json.Unmarshal([]byte(values[1]), &job); err != nil {
			p.logger.Warn("malformed thumbnail job", zap.Error(err))
			continue
		}

		if err := p.Process(ctx, job); err != nil {
			p.logger.Warn("thumbnail job failed",
				zap.String("document_id", job.DocumentID.String()), zap.Error(err))
			continue
		}
		p.logger.Info("thumbnail rendered", zap.String("document_id", job.DocumentID.String()))
	}
}

// Process renders one thumbnail and records its URL on the document.
func (p *ThumbnailProcessor) Process(ctx context.Context, job services.ThumbnailJob) error {
	src, err := p.driver.Reader(ctx, job.StoragePath)
	if err != nil {
		return fmt.Errorf("failed to open source image: %w", err)
	}
	defer src.Close()

	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	thumb := imaging.Fit(img, thumbnailMaxSize, thumbnailMaxSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	thumbPath := thumbnailPath(job.StoragePath)
	_, url, err := p.driver.Upload(ctx, &buf, thumbPath, "image/jpeg")
	if err != nil {
		return fmt.Errorf("failed to store thumbnail: %w", err)
	}

	documents := repository.NewDocumentRepository(p.db)
	if err := documents.SetThumbnailURL(ctx, job.DocumentID, url); err != nil {
		return err
	}
	return nil
}

// thumbnailPath derives "<dir>/<name>_thumb.jpg" from the source path.
func thumbnailPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_thumb.jpg"
}
