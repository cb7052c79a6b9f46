package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ops-management-api/internal/cache"
	"github.com/ops-management-api/internal/config"
	"github.com/ops-management-api/internal/database"
	"github.com/ops-management-api/internal/logger"
	"github.com/ops-management-api/internal/storage"
	"github.com/ops-management-api/internal/worker"
)

func main() {
	cfg := config.Load()

	log := logger.New()
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbManager, err := database.NewManager(ctx, &cfg.DB)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbManager.Close()

	redisCache, err := cache.NewRedisCache(&cfg.Redis)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisCache.Close()

	storageDriver, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}

	sweeps := worker.New(log, dbManager.Pool(), cfg)
	thumbnails := worker.NewThumbnailProcessor(log, dbManager.Pool(), redisCache.Client,
		storageDriver, cfg.Worker.ThumbnailQueue)

	go sweeps.RunSweeps(ctx)
	go thumbnails.Run(ctx)

	log.Info("worker running",
		zap.Duration("sweep_interval", cfg.Worker.SweepInterval),
		zap.String("thumbnail_queue", cfg.Worker.ThumbnailQueue),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker")
	cancel()
}
