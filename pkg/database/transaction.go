package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type txContextKey string

const txStatusKey = txContextKey("txStatus")
const txKey = txContextKey("tx-context-key")

// Tx is the transactional slice of DB. Repository methods accept a context;
// when the context carries an open Tx they participate in it, otherwise they
// run against the pool. Commit and Rollback are no-ops for a Tx owned by an
// outer caller, so nested uses are safe.
type Tx interface {
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
}

// Transaction wraps sqlx.Tx with close-once semantics.
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
}

// NewTx wraps an open sqlx transaction.
func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &Transaction{Tx: tx, logger: logger}
}

// GetTx reuses the transaction already open on ctx, or begins a new one and
// stores it on the returned context. The caller that opened the transaction
// is the one responsible for closing it.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	ctxTx, ok := ctx.Value(txKey).(Tx)
	if ok && ctxTx != nil && ctxTx.IsOpen() {
		status, ok := ctx.Value(txStatusKey).(string)
		if ok && status == "open" {
			return ctx, ctxTx, nil
		}
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction")
	}

	newTx := NewTx(tx, logger)

	ctx = context.WithValue(ctx, txStatusKey, "open")
	ctx = context.WithValue(ctx, txKey, newTx)
	return ctx, newTx, nil
}

// HasOpenTx reports whether ctx already carries an open transaction.
func HasOpenTx(ctx context.Context) bool {
	_, ok := openTxFromContext(ctx)
	return ok
}

func openTxFromContext(ctx context.Context) (Tx, bool) {
	ctxTx, ok := ctx.Value(txKey).(Tx)
	if !ok || ctxTx == nil || !ctxTx.IsOpen() {
		return nil, false
	}
	return ctxTx, true
}

// IsOpen reports whether the transaction has not been committed or rolled back.
func (t *Transaction) IsOpen() bool {
	return !t.isClosed
}

// Rollback aborts the transaction unless the context indicates an outer owner.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	status, ok := ctx.Value(txStatusKey).(string)
	if ok && status == "open" {
		return nil // ctx tx is owned by the caller that opened it
	}

	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction")
	}

	t.isClosed = true
	return nil
}

// Commit commits the transaction. Safe to call more than once.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction")
	}

	t.isClosed = true
	return nil
}
