package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ops-management-api/internal/auth"
	"github.com/ops-management-api/internal/cache"
)

type cachedQuery struct {
	Term   string `json:"term"`
	policy CachePolicy
}

func (cachedQuery) Name() string               { return "SearchWidgetsQuery" }
func (cachedQuery) Kind() Kind                 { return KindQuery }
func (q cachedQuery) CachePolicy() CachePolicy { return q.policy }

type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (failingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("connection refused")
}
func (failingCache) Remove(ctx context.Context, keys ...string) error         { return nil }
func (failingCache) RemoveByPattern(ctx context.Context, prefix string) error { return nil }

func cacheScope() *Scope {
	tenantID := uuid.New()
	userID := uuid.New()
	return &Scope{Principal: auth.Principal{TenantID: &tenantID, UserID: &userID, IsAuthenticated: true}}
}

func TestCacheMissRunsHandlerThenHits(t *testing.T) {
	behavior := NewCacheBehavior(cache.NewMemoryCache(), zap.NewNop(), nil, 0)
	sc := cacheScope()
	query := cachedQuery{Term: "pumps", policy: CachePolicy{TTL: time.Minute, VaryByTenant: true}}

	calls := 0
	handler := func(ctx context.Context, sc *Scope, req Request) (any, error) {
		calls++
		return map[string]string{"result": "pumps"}, nil
	}

	first, err := behavior.Handle(context.Background(), sc, query, handler)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, map[string]string{"result": "pumps"}, first)

	second, err := behavior.Handle(context.Background(), sc, query, handler)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second call must be served from cache")

	raw, ok := second.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"result":"pumps"}`, string(raw))
}

func TestCacheSkipsCommandsAndZeroTTL(t *testing.T) {
	behavior := NewCacheBehavior(cache.NewMemoryCache(), zap.NewNop(), nil, 0)
	sc := cacheScope()

	calls := 0
	handler := func(ctx context.Context, sc *Scope, req Request) (any, error) {
		calls++
		return "ran", nil
	}

	_, err := behavior.Handle(context.Background(), sc, testCommand{Value: "x"}, handler)
	require.NoError(t, err)
	_, err = behavior.Handle(context.Background(), sc, testCommand{Value: "x"}, handler)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	zeroTTL := cachedQuery{Term: "x"}
	_, err = behavior.Handle(context.Background(), sc, zeroTTL, handler)
	require.NoError(t, err)
	_, err = behavior.Handle(context.Background(), sc, zeroTTL, handler)
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestCacheFailureDegradesToMiss(t *testing.T) {
	behavior := NewCacheBehavior(failingCache{}, zap.NewNop(), nil, 0)
	sc := cacheScope()
	query := cachedQuery{Term: "pumps", policy: CachePolicy{TTL: time.Minute}}

	result, err := behavior.Handle(context.Background(), sc, query, func(ctx context.Context, sc *Scope, req Request) (any, error) {
		return "live", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "live", result)
}

func TestCacheHandlerErrorNotStored(t *testing.T) {
	mem := cache.NewMemoryCache()
	behavior := NewCacheBehavior(mem, zap.NewNop(), nil, 0)
	sc := cacheScope()
	query := cachedQuery{Term: "pumps", policy: CachePolicy{TTL: time.Minute}}

	boom := errors.New("boom")
	_, err := behavior.Handle(context.Background(), sc, query, func(ctx context.Context, sc *Scope, req Request) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	key := BuildCacheKey(query.policy, sc.Principal, query)
	_, err = mem.Get(context.Background(), key)
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestBuildCacheKey(t *testing.T) {
	tenantA := uuid.New()
	tenantB := uuid.New()
	userID := uuid.New()

	principalA := auth.Principal{TenantID: &tenantA, UserID: &userID}
	principalB := auth.Principal{TenantID: &tenantB, UserID: &userID}

	policy := CachePolicy{KeyPrefix: "widgets", TTL: time.Minute, VaryByTenant: true}

	keyA := BuildCacheKey(policy, principalA, cachedQuery{Term: "pumps"})
	keyA2 := BuildCacheKey(policy, principalA, cachedQuery{Term: "pumps"})
	keyB := BuildCacheKey(policy, principalB, cachedQuery{Term: "pumps"})
	keyOther := BuildCacheKey(policy, principalA, cachedQuery{Term: "valves"})

	assert.Equal(t, keyA, keyA2, "same principal and payload must collide")
	assert.NotEqual(t, keyA, keyB, "tenant dimension must separate keys")
	assert.NotEqual(t, keyA, keyOther, "payload must be part of the key")
	assert.Contains(t, keyA, "widgets:T"+tenantA.String()+":")

	// Without vary-by dimensions the key is shared across principals.
	shared := CachePolicy{KeyPrefix: "catalog", TTL: time.Minute}
	assert.Equal(t,
		BuildCacheKey(shared, principalA, cachedQuery{Term: "x"}),
		BuildCacheKey(shared, principalB, cachedQuery{Term: "x"}),
	)

	// Missing prefix falls back to the request name.
	named := BuildCacheKey(CachePolicy{TTL: time.Minute}, principalA, cachedQuery{Term: "x"})
	assert.Contains(t, named, "SearchWidgetsQuery:")
}
