package database

import (
	"context"
	"fmt"
)

// TxRunner runs a unit of work atomically.
type TxRunner interface {
	// RunInTx begins a transaction on the scope found in ctx and calls fn with a
	// context whose scope is that transaction. The transaction commits if fn
	// returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type scopeTxRunner struct{}

// NewTxRunner returns a TxRunner backed by the request scope.
func NewTxRunner() TxRunner {
	return &scopeTxRunner{}
}

func (r *scopeTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	scope, ok := GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(SetScope(ctx, &Scope{Conn: tx})); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var _ TxRunner = (*scopeTxRunner)(nil)
