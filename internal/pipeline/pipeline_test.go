package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/auth"
	"github.com/ops-management-api/internal/database"
	"github.com/ops-management-api/internal/models"
)

// fakeSession records transaction lifecycle calls; the statement surface is
// never reached in these tests.
type fakeSession struct {
	tenantID  uuid.UUID
	scoped    bool
	inTx      bool
	begun     int
	commits   int
	rollback  int
	released  bool
	beginErr  error
	commitErr error
}

func (s *fakeSession) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (s *fakeSession) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (s *fakeSession) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }

func (s *fakeSession) Begin(ctx context.Context) error {
	if s.beginErr != nil {
		return s.beginErr
	}
	s.begun++
	s.inTx = true
	return nil
}

func (s *fakeSession) Commit(ctx context.Context) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.commits++
	s.inTx = false
	return nil
}

func (s *fakeSession) Rollback(ctx context.Context) error {
	s.rollback++
	s.inTx = false
	return nil
}

func (s *fakeSession) InTx() bool                  { return s.inTx }
func (s *fakeSession) Release()                    { s.released = true }
func (s *fakeSession) TenantID() (uuid.UUID, bool) { return s.tenantID, s.scoped }

type fakeBinder struct {
	scopedCalls   int
	unscopedCalls int
	lastTenant    uuid.UUID
	session       *fakeSession
	err           error
}

func (b *fakeBinder) AcquireScoped(ctx context.Context, tenantID uuid.UUID) (database.TxSession, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.scopedCalls++
	b.lastTenant = tenantID
	b.session = &fakeSession{tenantID: tenantID, scoped: true}
	return b.session, nil
}

func (b *fakeBinder) AcquireUnscoped(ctx context.Context) (database.TxSession, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.unscopedCalls++
	b.session = &fakeSession{}
	return b.session, nil
}

type fakeSink struct {
	records []models.AuditRecord
	err     error
}

func (s *fakeSink) Append(ctx context.Context, record models.AuditRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record)
	return nil
}

type testCommand struct {
	Value string `json:"value"`
	id    uuid.UUID
}

func (testCommand) Name() string          { return "CreateWidgetCommand" }
func (testCommand) Kind() Kind            { return KindCommand }
func (c testCommand) EntityID() uuid.UUID { return c.id }
func (testCommand) AuthSpec() AuthSpec    { return AuthSpec{RequireAuth: true} }

type testQuery struct {
	Value string `json:"value"`
}

func (testQuery) Name() string       { return "GetWidgetQuery" }
func (testQuery) Kind() Kind         { return KindQuery }
func (testQuery) AuthSpec() AuthSpec { return AuthSpec{RequireAuth: true} }

func memberPrincipal(tenantID uuid.UUID) auth.Principal {
	userID := uuid.New()
	return auth.Principal{
		TenantID:        &tenantID,
		UserID:          &userID,
		Roles:           []string{"member"},
		IsAuthenticated: true,
	}
}

func fullChain(binder *fakeBinder, sink *fakeSink) *Executor {
	log := zap.NewNop()
	return NewExecutor(log,
		NewAuthorizeBehavior(log, nil),
		NewTenantScopeBehavior(binder, log),
		NewAuditBehavior(sink, log, nil),
		NewTransactionBehavior(log),
	)
}

func TestDispatchUnknownRequest(t *testing.T) {
	exec := NewExecutor(zap.NewNop())
	_, err := exec.Dispatch(context.Background(), auth.Anonymous(), testQuery{})
	require.Error(t, err)
}

func TestDispatchDuplicateRegistrationPanics(t *testing.T) {
	exec := NewExecutor(zap.NewNop())
	handler := func(ctx context.Context, sc *Scope, req Request) (any, error) { return nil, nil }
	exec.Register("GetWidgetQuery", handler)
	assert.Panics(t, func() { exec.Register("GetWidgetQuery", handler) })
}

func TestUnauthenticatedCommandShortCircuits(t *testing.T) {
	binder := &fakeBinder{}
	sink := &fakeSink{}
	exec := fullChain(binder, sink)

	called := false
	exec.Register("CreateWidgetCommand", func(ctx context.Context, sc *Scope, req Request) (any, error) {
		called = true
		return nil, nil
	})

	_, err := exec.Dispatch(context.Background(), auth.Anonymous(), testCommand{Value: "x"})
	require.Error(t, err)
	assert.True(t, apperr.IsUnauthorized(err))

	// Denial happened before any session, transaction or audit work.
	assert.False(t, called)
	assert.Zero(t, binder.scopedCalls)
	assert.Zero(t, binder.unscopedCalls)
	assert.Empty(t, sink.records)
}

func TestCommandCommitsAndReleases(t *testing.T) {
	binder := &fakeBinder{}
	sink := &fakeSink{}
	exec := fullChain(binder, sink)

	tenantID := uuid.New()
	exec.Register("CreateWidgetCommand", func(ctx context.Context, sc *Scope, req Request) (any, error) {
		require.NotNil(t, sc.Session)
		assert.True(t, sc.Session.InTx())
		return "ok", nil
	})

	result, err := exec.Dispatch(context.Background(), memberPrincipal(tenantID), testCommand{Value: "x", id: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	require.NotNil(t, binder.session)
	assert.Equal(t, tenantID, binder.lastTenant)
	assert.Equal(t, 1, binder.session.begun)
	assert.Equal(t, 1, binder.session.commits)
	assert.Zero(t, binder.session.rollback)
	assert.True(t, binder.session.released)

	require.Len(t, sink.records, 1)
	assert.True(t, sink.records[0].Success)
}

func TestCommandRollsBackOnHandlerError(t *testing.T) {
	binder := &fakeBinder{}
	sink := &fakeSink{}
	exec := fullChain(binder, sink)

	boom := apperr.BusinessRule("widget_broken", "widget is broken")
	exec.Register("CreateWidgetCommand", func(ctx context.Context, sc *Scope, req Request) (any, error) {
		return nil, boom
	})

	_, err := exec.Dispatch(context.Background(), memberPrincipal(uuid.New()), testCommand{Value: "x"})
	require.Error(t, err)
	assert.True(t, apperr.IsBusinessRule(err))

	assert.Equal(t, 1, binder.session.rollback)
	assert.Zero(t, binder.session.commits)
	assert.True(t, binder.session.released)

	// The failed command is still audited.
	require.Len(t, sink.records, 1)
	assert.False(t, sink.records[0].Success)
	assert.Equal(t, "widget is broken", sink.records[0].ErrorMessage)
}

func TestCommitFailureIsTransient(t *testing.T) {
	binder := &fakeBinder{}
	sink := &fakeSink{}
	exec := fullChain(binder, sink)

	exec.Register("CreateWidgetCommand", func(ctx context.Context, sc *Scope, req Request) (any, error) {
		binder.session.commitErr = errors.New("connection reset")
		return "ok", nil
	})

	_, err := exec.Dispatch(context.Background(), memberPrincipal(uuid.New()), testCommand{Value: "x"})
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))

	// The audit recorder sits outside the transaction and sees the failure.
	require.Len(t, sink.records, 1)
	assert.False(t, sink.records[0].Success)
}

func TestQueryOpensNoTransaction(t *testing.T) {
	binder := &fakeBinder{}
	sink := &fakeSink{}
	exec := fullChain(binder, sink)

	exec.Register("GetWidgetQuery", func(ctx context.Context, sc *Scope, req Request) (any, error) {
		assert.False(t, sc.Session.InTx())
		return "widget", nil
	})

	result, err := exec.Dispatch(context.Background(), memberPrincipal(uuid.New()), testQuery{Value: "x"})
	require.NoError(t, err)
	assert.Equal(t, "widget", result)

	assert.Zero(t, binder.session.begun)
	assert.Empty(t, sink.records)
	assert.True(t, binder.session.released)
}

func TestSuperAdminGetsUnscopedSession(t *testing.T) {
	binder := &fakeBinder{}
	sink := &fakeSink{}
	exec := fullChain(binder, sink)

	exec.Register("GetWidgetQuery", func(ctx context.Context, sc *Scope, req Request) (any, error) {
		_, scoped := sc.Session.TenantID()
		assert.False(t, scoped)
		return nil, nil
	})

	userID := uuid.New()
	principal := auth.Principal{UserID: &userID, IsSuperAdmin: true, IsAuthenticated: true}

	_, err := exec.Dispatch(context.Background(), principal, testQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, binder.unscopedCalls)
	assert.Zero(t, binder.scopedCalls)
}

func TestPrincipalWithoutTenantIsForbidden(t *testing.T) {
	binder := &fakeBinder{}
	exec := fullChain(binder, &fakeSink{})

	exec.Register("GetWidgetQuery", func(ctx context.Context, sc *Scope, req Request) (any, error) {
		return nil, nil
	})

	userID := uuid.New()
	principal := auth.Principal{UserID: &userID, IsAuthenticated: true}

	_, err := exec.Dispatch(context.Background(), principal, testQuery{})
	require.Error(t, err)
	assert.True(t, apperr.IsForbidden(err))
}

func TestNestedDispatchReusesSessionAndTransaction(t *testing.T) {
	binder := &fakeBinder{}
	sink := &fakeSink{}
	exec := fullChain(binder, sink)

	exec.Register("GetWidgetQuery", func(ctx context.Context, sc *Scope, req Request) (any, error) {
		// Borrowed session, still inside the outer transaction.
		assert.Same(t, binder.session, sc.Session)
		assert.True(t, sc.Session.InTx())
		return "inner", nil
	})
	exec.Register("CreateWidgetCommand", func(ctx context.Context, sc *Scope, req Request) (any, error) {
		return exec.DispatchIn(ctx, sc, testQuery{Value: "nested"})
	})

	result, err := exec.Dispatch(context.Background(), memberPrincipal(uuid.New()), testCommand{Value: "x"})
	require.NoError(t, err)
	assert.Equal(t, "inner", result)

	// One session, one transaction for the whole tree.
	assert.Equal(t, 1, binder.scopedCalls)
	assert.Equal(t, 1, binder.session.begun)
	assert.Equal(t, 1, binder.session.commits)
}
