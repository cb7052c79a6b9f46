package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ops-management-api/internal/config"
)

// Manager owns the application connection pool and hands out request-scoped
// sessions with the tenant binding applied.
type Manager struct {
	pool *pgxpool.Pool
}

func NewManager(ctx context.Context, cfg *config.DatabaseConfig) (*Manager, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse db config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &Manager{pool: pool}, nil
}

// Pool returns the raw pool for callers that run outside a request scope
// (the audit sink, the worker sweeps).
func (m *Manager) Pool() *pgxpool.Pool {
	return m.pool
}

func (m *Manager) Close() {
	m.pool.Close()
}
