package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/metrics"
)

// AuthorizeBehavior enforces the declared role/permission requirement for a
// request. Requests without a declared requirement pass through. Denials are
// terminal; there are no retries at this layer.
type AuthorizeBehavior struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewAuthorizeBehavior(logger *zap.Logger, m *metrics.Metrics) *AuthorizeBehavior {
	return &AuthorizeBehavior{logger: logger, metrics: m}
}

func (b *AuthorizeBehavior) Handle(ctx context.Context, sc *Scope, req Request, next Handler) (any, error) {
	authorized, ok := req.(Authorized)
	if !ok {
		return next(ctx, sc, req)
	}
	spec := authorized.AuthSpec()
	if !spec.RequireAuth {
		return next(ctx, sc, req)
	}

	if !sc.Principal.IsAuthenticated {
		b.deny("unauthenticated", req)
		return nil, apperr.Unauthorized("authentication required")
	}

	// Super admins bypass every role and permission check.
	if sc.Principal.IsSuperAdmin {
		return next(ctx, sc, req)
	}

	if len(spec.Roles) > 0 {
		passed := sc.Principal.HasAnyRole(spec.Roles)
		if spec.RequireAllRoles {
			passed = sc.Principal.HasAllRoles(spec.Roles)
		}
		if !passed {
			b.deny("missing_role", req)
			return nil, apperr.Forbidden("insufficient role").
				WithDetail("required_roles", spec.Roles).
				WithDetail("require_all", spec.RequireAllRoles)
		}
	}

	if len(spec.Permissions) > 0 {
		passed := sc.Principal.HasAnyPermission(spec.Permissions)
		if spec.RequireAllPermissions {
			passed = sc.Principal.HasAllPermissions(spec.Permissions)
		}
		if !passed {
			b.deny("missing_permission", req)
			return nil, apperr.Forbidden("insufficient permission").
				WithDetail("required_permissions", spec.Permissions).
				WithDetail("require_all", spec.RequireAllPermissions)
		}
	}

	return next(ctx, sc, req)
}

func (b *AuthorizeBehavior) deny(reason string, req Request) {
	b.logger.Info("request denied",
		zap.String("request", req.Name()),
		zap.String("reason", reason),
	)
	if b.metrics != nil {
		b.metrics.AuthDenials.WithLabelValues(reason).Inc()
	}
}
