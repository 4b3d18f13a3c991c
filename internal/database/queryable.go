package database

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Queryable is satisfied by both *sqlx.DB and *sqlx.Tx, allowing store
// methods to run either standalone or as part of a wider transaction.
type Queryable interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
