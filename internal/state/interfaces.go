package state

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// DBInterface is what the kv, failure and report stores run their
// queries against: the shared *DB, or a transaction started by Manager.
type DBInterface interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	PrepareNamedContext(ctx context.Context, query string) (*sqlx.NamedStmt, error)
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)

	// WithTx runs fn in a transaction. Inside an existing transaction fn
	// joins it instead of nesting.
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

var (
	_ DBInterface = (*DB)(nil)
	_ DBInterface = (*joinedTx)(nil)
)

type joinedTx struct {
	*sqlx.Tx
}

func (t *joinedTx) WithTx(_ context.Context, fn func(*sqlx.Tx) error) error {
	return fn(t.Tx)
}

// WrapTx lets a store run inside tx.
func WrapTx(tx *sqlx.Tx) DBInterface {
	return &joinedTx{Tx: tx}
}
