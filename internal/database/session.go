package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the statement surface shared by the pool, a scoped session and
// an open transaction. Repositories are written against it so the same code
// runs inside and outside a request scope.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxSession is the unit-of-work contract consumed by the pipeline: a pooled
// connection carrying the tenant visibility binding, with optional
// transactional execution on top.
type TxSession interface {
	Querier
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	InTx() bool
	Release()
	TenantID() (uuid.UUID, bool)
}

// SessionBinder hands out sessions bound to a tenant scope, or explicitly
// unscoped for super-admin requests.
type SessionBinder interface {
	AcquireScoped(ctx context.Context, tenantID uuid.UUID) (TxSession, error)
	AcquireUnscoped(ctx context.Context) (TxSession, error)
}

// Session is a request-exclusive pooled connection. For scoped sessions the
// tenant id is installed as the app.tenant_id session variable consumed by
// row-level security policies; Release resets it on every path so the
// binding can never leak into the next pooled use of the connection.
type Session struct {
	conn     *pgxpool.Conn
	tx       pgx.Tx
	tenantID uuid.UUID
	scoped   bool
}

// AcquireScoped takes a connection from the pool and binds the tenant id.
func (m *Manager) AcquireScoped(ctx context.Context, tenantID uuid.UUID) (TxSession, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT set_config('app.tenant_id', $1, false)`, tenantID.String()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to bind tenant scope: %w", err)
	}
	return &Session{conn: conn, tenantID: tenantID, scoped: true}, nil
}

// AcquireUnscoped takes a connection with no tenant binding. Only the
// pipeline's tenant isolation gate calls this, and only for super-admin
// principals.
func (m *Manager) AcquireUnscoped(ctx context.Context) (TxSession, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT set_config('app.tenant_id', '', false)`); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to clear tenant scope: %w", err)
	}
	return &Session{conn: conn}, nil
}

func (s *Session) TenantID() (uuid.UUID, bool) {
	return s.tenantID, s.scoped
}

func (s *Session) InTx() bool {
	return s.tx != nil
}

func (s *Session) Begin(ctx context.Context) error {
	if s.tx != nil {
		return fmt.Errorf("transaction already open")
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return nil
}

func (s *Session) Commit(ctx context.Context) error {
	if s.tx == nil {
		return fmt.Errorf("no open transaction")
	}
	err := s.tx.Commit(ctx)
	s.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Session) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback(ctx)
	s.tx = nil
	if err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// Release resets the tenant binding and returns the connection to the pool.
// The reset runs on its own deadline because the request context may already
// be cancelled; a connection whose binding cannot be reset is closed rather
// than returned for reuse.
func (s *Session) Release() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if s.tx != nil {
		_ = s.tx.Rollback(ctx)
		s.tx = nil
	}
	if _, err := s.conn.Exec(ctx, `SELECT set_config('app.tenant_id', '', false)`); err != nil {
		_ = s.conn.Conn().Close(ctx)
	}
	s.conn.Release()
}

func (s *Session) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if s.tx != nil {
		return s.tx.Exec(ctx, sql, arguments...)
	}
	return s.conn.Exec(ctx, sql, arguments...)
}

func (s *Session) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if s.tx != nil {
		return s.tx.Query(ctx, sql, args...)
	}
	return s.conn.Query(ctx, sql, args...)
}

func (s *Session) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if s.tx != nil {
		return s.tx.QueryRow(ctx, sql, args...)
	}
	return s.conn.QueryRow(ctx, sql, args...)
}
