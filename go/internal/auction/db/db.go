// Code in this package follows the sqlc layout: one Queries type bound to a
// DBTX, rebound to a transaction through WithTx.

package db

import (
	"context"
	"database/sql"
	_ "embed"
)

// Schema is the DDL for every table the queries below touch.
//
//go:embed schema.sql
var Schema string

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

// Migrate applies Schema. Every statement in it is idempotent.
func Migrate(ctx context.Context, conn DBTX) error {
	_, err := conn.ExecContext(ctx, Schema)
	return err
}
