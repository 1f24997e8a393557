package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

// DB is the storage handle shared by all repositories. It is satisfied by a
// wrapped sqlx.DB and, through GetTx, hands out context-scoped transactions so
// that a batch of repository calls can share one atomic unit of work.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	PingContext(ctx context.Context) error
	SetConnMaxLifetime(d time.Duration)
	SetMaxIdleConns(n int)
	SetMaxOpenConns(n int)
	Close() error
	Unsafe() *sqlx.DB
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error)
}

// Instance wraps sqlx with transaction plumbing and logging. Context-aware
// query methods route through the transaction carried on ctx when one is
// open, so repository code participates in an outer unit of work without
// threading a Tx parameter through every call.
type Instance struct {
	*sqlx.DB
	logger ectologger.Logger
}

// New wraps an open sqlx.DB.
func New(db *sqlx.DB, logger ectologger.Logger) DB {
	return &Instance{DB: db, logger: logger}
}

// GetTx returns the transaction already open on ctx, or begins a new one.
func (db *Instance) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error) {
	return GetTx(ctx, db.logger, db, opts)
}

func (db *Instance) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if tx, ok := openTxFromContext(ctx); ok {
		return tx.ExecContext(ctx, query, args...)
	}
	return db.DB.ExecContext(ctx, query, args...)
}

func (db *Instance) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx, ok := openTxFromContext(ctx); ok {
		return tx.GetContext(ctx, dest, query, args...)
	}
	return db.DB.GetContext(ctx, dest, query, args...)
}

func (db *Instance) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx, ok := openTxFromContext(ctx); ok {
		return tx.SelectContext(ctx, dest, query, args...)
	}
	return db.DB.SelectContext(ctx, dest, query, args...)
}

func (db *Instance) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	if tx, ok := openTxFromContext(ctx); ok {
		return tx.QueryxContext(ctx, query, args...)
	}
	return db.DB.QueryxContext(ctx, query, args...)
}
