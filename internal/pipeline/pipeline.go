package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/auth"
	"github.com/ops-management-api/internal/database"
)

// Scope carries the per-request execution state through the behavior chain:
// the caller's principal and, once the tenant isolation gate has run, the
// bound database session. The principal is threaded explicitly; nothing in
// the pipeline resolves identity from ambient state.
type Scope struct {
	Principal auth.Principal
	Session   database.TxSession
}

// DB returns the statement surface for the current scope. Valid only after
// the tenant isolation gate has bound a session.
func (s *Scope) DB() database.Querier {
	return s.Session
}

// Handler is the terminal function a request dispatches to.
type Handler func(ctx context.Context, sc *Scope, req Request) (any, error)

// Behavior wraps the rest of the chain. A behavior may short-circuit by not
// calling next, or decorate next's result.
type Behavior interface {
	Handle(ctx context.Context, sc *Scope, req Request, next Handler) (any, error)
}

// Executor composes a fixed, startup-ordered behavior chain over a handler
// registry. The order is set once at construction and is identical for every
// request of a matching kind.
type Executor struct {
	behaviors []Behavior
	handlers  map[string]Handler
	logger    *zap.Logger
}

func NewExecutor(logger *zap.Logger, behaviors ...Behavior) *Executor {
	return &Executor{
		behaviors: behaviors,
		handlers:  make(map[string]Handler),
		logger:    logger,
	}
}

// Register binds a request name to its terminal handler. Duplicate
// registration is a wiring bug and panics at startup.
func (e *Executor) Register(name string, h Handler) {
	if _, exists := e.handlers[name]; exists {
		panic(fmt.Sprintf("pipeline: handler already registered for %s", name))
	}
	e.handlers[name] = h
}

// Dispatch runs req through the full behavior chain on a fresh scope. The
// session bound by the tenant isolation gate is released on every exit path.
func (e *Executor) Dispatch(ctx context.Context, principal auth.Principal, req Request) (any, error) {
	sc := &Scope{Principal: principal}
	defer func() {
		if sc.Session != nil {
			sc.Session.Release()
		}
	}()
	return e.run(ctx, sc, req)
}

// DispatchIn runs a nested request on an existing scope. The borrowed session
// and any open transaction stay owned by the outer request.
func (e *Executor) DispatchIn(ctx context.Context, sc *Scope, req Request) (any, error) {
	return e.run(ctx, sc, req)
}

func (e *Executor) run(ctx context.Context, sc *Scope, req Request) (any, error) {
	handler, ok := e.handlers[req.Name()]
	if !ok {
		return nil, apperr.Unexpected(fmt.Errorf("no handler registered for %s", req.Name()))
	}

	next := handler
	for i := len(e.behaviors) - 1; i >= 0; i-- {
		behavior := e.behaviors[i]
		inner := next
		next = func(ctx context.Context, sc *Scope, req Request) (any, error) {
			return behavior.Handle(ctx, sc, req, inner)
		}
	}

	return next(ctx, sc, req)
}
