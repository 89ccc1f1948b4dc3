// Package dbtx scopes a *sql.Tx to a context.Context so that a repository
// method can transparently run inside a caller-managed transaction or
// fall back to the plain *sql.DB, without every repository method taking
// an explicit executor parameter.
package dbtx

import (
	"context"
	"database/sql"
)

// Executor is the subset of *sql.DB / *sql.Tx every repository needs.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txContextKey struct{}

// ContextWithTx returns a context carrying tx. Passing a nil tx is valid
// and simply means TxFromContext on the resulting context returns nil.
func ContextWithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext returns the *sql.Tx stored in ctx, or nil if none is set.
func TxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txContextKey{}).(*sql.Tx)
	return tx
}

// GetExecutor returns the transaction in ctx if one was set by
// RunInTransaction, otherwise db itself.
func GetExecutor(ctx context.Context, db *sql.DB) Executor {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}

	return db
}

// RunInTransaction begins a transaction on db, stores it in ctx, and calls
// fn. It commits on success. On error from fn, or from the commit itself,
// it rolls back and returns that error. A panic inside fn rolls back and
// re-panics after the rollback.
func RunInTransaction(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	txCtx := ContextWithTx(ctx, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err = tx.Commit(); err != nil {
		_ = tx.Rollback()
		return err
	}

	return nil
}
