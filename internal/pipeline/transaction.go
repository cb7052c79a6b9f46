package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ops-management-api/internal/apperr"
)

// TransactionBehavior wraps command execution in an atomic unit of work.
// Queries never open a transaction here; a nested command reuses the
// transaction its parent opened. Handler errors roll back and propagate
// unchanged.
type TransactionBehavior struct {
	logger *zap.Logger
}

func NewTransactionBehavior(logger *zap.Logger) *TransactionBehavior {
	return &TransactionBehavior{logger: logger}
}

func (b *TransactionBehavior) Handle(ctx context.Context, sc *Scope, req Request, next Handler) (any, error) {
	if req.Kind() != KindCommand {
		return next(ctx, sc, req)
	}
	if sc.Session == nil {
		return nil, apperr.Unexpected(errors.New("transaction behavior reached without a bound session"))
	}
	if sc.Session.InTx() {
		return next(ctx, sc, req)
	}

	if err := sc.Session.Begin(ctx); err != nil {
		return nil, apperr.Transient(err)
	}

	result, err := next(ctx, sc, req)
	if err != nil {
		if rbErr := sc.Session.Rollback(ctx); rbErr != nil {
			b.logger.Error("rollback failed",
				zap.String("request", req.Name()), zap.Error(rbErr))
		}
		return nil, err
	}

	if err := sc.Session.Commit(ctx); err != nil {
		return nil, apperr.Transient(err)
	}

	return result, nil
}
