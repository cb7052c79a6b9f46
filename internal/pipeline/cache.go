package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ops-management-api/internal/auth"
	"github.com/ops-management-api/internal/cache"
	"github.com/ops-management-api/internal/metrics"
)

// CacheBehavior memoizes query responses keyed by request shape and the
// tenant/user dimensions the policy declares. A hit returns the stored bytes
// and runs nothing downstream; every cache failure degrades to a miss.
type CacheBehavior struct {
	cache   cache.Cache
	logger  *zap.Logger
	metrics *metrics.Metrics
	// timeout bounds each cache operation so a slow cache cannot stall the
	// request; an expired read is a miss.
	timeout time.Duration
}

func NewCacheBehavior(c cache.Cache, logger *zap.Logger, m *metrics.Metrics, timeout time.Duration) *CacheBehavior {
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	return &CacheBehavior{cache: c, logger: logger, metrics: m, timeout: timeout}
}

func (b *CacheBehavior) Handle(ctx context.Context, sc *Scope, req Request, next Handler) (any, error) {
	if req.Kind() != KindQuery {
		return next(ctx, sc, req)
	}
	cacheable, ok := req.(Cacheable)
	if !ok {
		return next(ctx, sc, req)
	}
	policy := cacheable.CachePolicy()
	if policy.TTL <= 0 {
		return next(ctx, sc, req)
	}

	key := BuildCacheKey(policy, sc.Principal, req)

	readCtx, cancel := context.WithTimeout(ctx, b.timeout)
	cached, err := b.cache.Get(readCtx, key)
	cancel()
	if err == nil {
		if b.metrics != nil {
			b.metrics.CacheHits.Inc()
		}
		return json.RawMessage(cached), nil
	}
	if err != cache.ErrMiss {
		b.logger.Warn("cache read failed, treating as miss",
			zap.String("key", key), zap.Error(err))
	}
	if b.metrics != nil {
		b.metrics.CacheMisses.Inc()
	}

	result, err := next(ctx, sc, req)
	if err != nil {
		return nil, err
	}

	payload, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		b.logger.Warn("cache store skipped, result not serializable",
			zap.String("key", key), zap.Error(marshalErr))
		return result, nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if setErr := b.cache.Set(writeCtx, key, payload, policy.TTL); setErr != nil {
		b.logger.Warn("cache write failed", zap.String("key", key), zap.Error(setErr))
	}

	return result, nil
}

// BuildCacheKey derives the deterministic key for a query: declared prefix
// (or the request name), the vary-by dimensions, and a content hash of the
// canonically serialized payload. Identical payloads on the same dimension
// collide; any payload difference changes the key.
func BuildCacheKey(policy CachePolicy, principal auth.Principal, req Request) string {
	prefix := policy.KeyPrefix
	if prefix == "" {
		prefix = req.Name()
	}
	parts := []string{prefix}

	if policy.VaryByTenant {
		tenant := "-"
		if principal.TenantID != nil {
			tenant = principal.TenantID.String()
		}
		parts = append(parts, "T"+tenant)
	}
	if policy.VaryByUser {
		user := "-"
		if principal.UserID != nil {
			user = principal.UserID.String()
		}
		parts = append(parts, "U"+user)
	}

	payload, _ := json.Marshal(req)
	sum := sha256.Sum256(payload)
	parts = append(parts, hex.EncodeToString(sum[:]))

	return strings.Join(parts, ":")
}
