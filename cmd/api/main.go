package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ops-management-api/internal/auth"
	"github.com/ops-management-api/internal/cache"
	"github.com/ops-management-api/internal/config"
	"github.com/ops-management-api/internal/database"
	"github.com/ops-management-api/internal/handlers"
	"github.com/ops-management-api/internal/logger"
	"github.com/ops-management-api/internal/metrics"
	"github.com/ops-management-api/internal/pipeline"
	"github.com/ops-management-api/internal/repository"
	"github.com/ops-management-api/internal/services"
	"github.com/ops-management-api/internal/storage"
)

func main() {
	cfg := config.Load()

	log := logger.New()
	defer log.Sync()

	gin.SetMode(cfg.Server.GinMode)

	ctx := context.Background()

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

	m := metrics.New()

	// The audit sink runs on the pool, outside any request session, so a
	// rolled-back command still leaves its audit row.
	auditSink := repository.NewAuditRepository(dbManager.Pool())

	exec := pipeline.NewExecutor(log,
		pipeline.NewAuthorizeBehavior(log, m),
		pipeline.NewCacheBehavior(redisCache, log, m, cfg.Cache.OperationTimeout),
		pipeline.NewTenantScopeBehavior(dbManager, log),
		pipeline.NewAuditBehavior(auditSink, log, m),
		pipeline.NewTransactionBehavior(log),
	)

	subscriptionSvc := services.NewSubscriptionService(log)
	entitlementSvc := services.NewEntitlementService(log)
	planSvc := services.NewPlanService(log, redisCache)
	inspectionSvc := services.NewInspectionService(log, redisCache, subscriptionSvc)
	documentSvc := services.NewDocumentService(log, storageDriver, redisCache, cfg.Worker.ThumbnailQueue,
		subscriptionSvc, entitlementSvc)
	auditSvc := services.NewAuditService(log)

	subscriptionSvc.RegisterHandlers(exec)
	entitlementSvc.RegisterHandlers(exec)
	planSvc.RegisterHandlers(exec)
	inspectionSvc.RegisterHandlers(exec)
	documentSvc.RegisterHandlers(exec)
	auditSvc.RegisterHandlers(exec)

	userRepo := repository.NewUserRepository(dbManager.Pool())
	tenantRepo := repository.NewTenantRepository(dbManager.Pool())

	authHandler := handlers.NewAuthHandler(userRepo, tenantRepo, cfg, log)
	inspectionHandler := handlers.NewInspectionHandler(exec)
	documentHandler := handlers.NewDocumentHandler(exec)
	subscriptionHandler := handlers.NewSubscriptionHandler(exec)
	planHandler := handlers.NewPlanHandler(exec)
	auditHandler := handlers.NewAuditHandler(exec)

	router := setupRouter(cfg, m, authHandler, inspectionHandler, documentHandler,
		subscriptionHandler, planHandler, auditHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info("api listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down api")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}

	log.Info("api exited")
}

func setupRouter(
	cfg *config.Config,
	m *metrics.Metrics,
	authHandler *handlers.AuthHandler,
	inspectionHandler *handlers.InspectionHandler,
	documentHandler *handlers.DocumentHandler,
	subscriptionHandler *handlers.SubscriptionHandler,
	planHandler *handlers.PlanHandler,
	auditHandler *handlers.AuditHandler,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(m.GinMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	if cfg.Storage.Driver == "local" || cfg.Storage.Driver == "" {
		router.Static("/uploads", cfg.Storage.UploadsPath)
	}

	api := router.Group("/api/v1")
	api.Use(auth.Middleware(cfg))
	{
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)
		api.GET("/auth/me", authHandler.Me)

		api.GET("/plans", planHandler.List)
		api.GET("/plans/:id", planHandler.Get)
		api.POST("/plans", planHandler.Create)

		api.POST("/subscriptions", subscriptionHandler.Subscribe)
		api.GET("/subscriptions/current", subscriptionHandler.Current)
		api.POST("/subscriptions/:id/activate", subscriptionHandler.Activate)
		api.POST("/subscriptions/:id/renew", subscriptionHandler.Renew)
		api.POST("/subscriptions/:id/suspend", subscriptionHandler.Suspend)
		api.POST("/subscriptions/:id/cancel", subscriptionHandler.Cancel)
		api.POST("/subscriptions/:id/change-plan", subscriptionHandler.ChangePlan)
		api.GET("/usage", subscriptionHandler.Usage)

		api.POST("/inspections", inspectionHandler.Create)
		api.GET("/inspections", inspectionHandler.List)
		api.GET("/inspections/:id", inspectionHandler.Get)
		api.PATCH("/inspections/:id", inspectionHandler.Update)
		api.DELETE("/inspections/:id", inspectionHandler.Delete)

		api.POST("/documents", documentHandler.Upload)
		api.GET("/documents/:id/download", documentHandler.Download)
		api.DELETE("/documents/:id", documentHandler.Delete)

		api.GET("/audit", auditHandler.List)
	}

	return router
}
