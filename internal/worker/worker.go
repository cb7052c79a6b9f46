package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ops-management-api/internal/config"
	"github.com/ops-management-api/internal/database"
	"github.com/ops-management-api/internal/repository"
)

// Worker owns the background maintenance sweeps: periodic usage resets,
// expiry of suspended subscriptions whose grace period lapsed, and audit
// retention. It runs on the shared pool with no tenant scope.
type Worker struct {
	logger *zap.Logger
	db     database.Querier
	cfg    *config.Config
	now    func() time.Time
}

func New(logger *zap.Logger, db database.Querier, cfg *config.Config) *Worker {
	return &Worker{logger: logger, db: db, cfg: cfg, now: time.Now}
}

// RunSweeps blocks, running every sweep once immediately and then on each
// tick, until the context is cancelled.
func (w *Worker) RunSweeps(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Worker.SweepInterval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	if err := w.ResetDueCounters(ctx); err != nil {
		w.logger.Error("usage reset sweep failed", zap.Error(err))
	}
	if err := w.ExpireLapsedSubscriptions(ctx); err != nil {
		w.logger.Error("subscription expiry sweep failed", zap.Error(err))
	}
	if err := w.PurgeExpiredAudit(ctx); err != nil {
		w.logger.Error("audit retention sweep failed", zap.Error(err))
	}
}

// ResetDueCounters zeroes every usage counter whose reset period has rolled
// over since its last reset.
func (w *Worker) ResetDueCounters(ctx context.Context) error {
	usage := repository.NewFeatureUsageRepository(w.db)
	counters, err := usage.ListResettable(ctx)
	if err != nil {
		return err
	}

	now := w.now()
	reset := 0
	for i := range counters {
		counter := &counters[i]
		if !counter.ShouldReset(now) {
			continue
		}
		if err := usage.Reset(ctx, counter.TenantID, counter.FeatureCode, now); err != nil {
			w.logger.Warn("failed to reset usage counter",
				zap.String("tenant_id", counter.TenantID.String()),
				zap.String("feature_code", counter.FeatureCode),
				zap.Error(err),
			)
			continue
		}
		reset++
	}

	if reset > 0 {
		w.logger.Info("usage counters reset", zap.Int("count", reset))
	}
	return nil
}

// ExpireLapsedSubscriptions expires every suspended subscription whose grace
// period has ended.
func (w *Worker) ExpireLapsedSubscriptions(ctx context.Context) error {
	subs := repository.NewSubscriptionRepository(w.db)
	now := w.now()

	lapsed, err := subs.ListSuspendedPastGrace(ctx, now)
	if err != nil {
		return err
	}

	expired := 0
	for i := range lapsed {
		sub := &lapsed[i]
		if err := sub.Expire(now); err != nil {
			w.logger.Warn("subscription not expirable",
				zap.String("subscription_id", sub.ID.String()), zap.Error(err))
			continue
		}
		if err := subs.Update(ctx, sub); err != nil {
			w.logger.Warn("failed to persist expired subscription",
				zap.String("subscription_id", sub.ID.String()), zap.Error(err))
			continue
		}
		expired++
	}

	if expired > 0 {
		w.logger.Info("subscriptions expired", zap.Int("count", expired))
	}
	return nil
}

// PurgeExpiredAudit deletes audit records older than the retention window.
func (w *Worker) PurgeExpiredAudit(ctx context.Context) error {
	audits := repository.NewAuditRepository(w.db)
	cutoff := w.now().AddDate(0, 0, -w.cfg.Audit.RetentionDays)

	deleted, err := audits.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		w.logger.Info("audit records purged",
			zap.Int64("count", deleted), zap.Time("cutoff", cutoff))
	}
	return nil
}
