package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/database"
)

// TenantScopeBehavior binds the row-visibility scope for the remainder of the
// request: a tenant-scoped session for ordinary principals, an explicitly
// unscoped one for super admins. A nested dispatch borrows the outer scope's
// session untouched.
type TenantScopeBehavior struct {
	binder database.SessionBinder
	logger *zap.Logger
}

func NewTenantScopeBehavior(binder database.SessionBinder, logger *zap.Logger) *TenantScopeBehavior {
	return &TenantScopeBehavior{binder: binder, logger: logger}
}

func (b *TenantScopeBehavior) Handle(ctx context.Context, sc *Scope, req Request, next Handler) (any, error) {
	if sc.Session != nil {
		return next(ctx, sc, req)
	}

	if sc.Principal.IsSuperAdmin {
		session, err := b.binder.AcquireUnscoped(ctx)
		if err != nil {
			return nil, apperr.Transient(err)
		}
		sc.Session = session
		b.logger.Debug("session bound without tenant scope (super admin)",
			zap.String("request", req.Name()))
		return next(ctx, sc, req)
	}

	if sc.Principal.TenantID == nil {
		return nil, apperr.Forbidden("no tenant bound to principal")
	}

	session, err := b.binder.AcquireScoped(ctx, *sc.Principal.TenantID)
	if err != nil {
		return nil, apperr.Transient(err)
	}
	sc.Session = session

	return next(ctx, sc, req)
}
