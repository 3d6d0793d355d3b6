// Package store holds the SQL for plans, investments, the ledger event log
// and the tables around it. Every method takes the narrowest handle it needs
// so callers choose between the pool and an open transaction.
package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

type Selecter interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Querier reads rows either from the pool or from inside a transaction.
type Querier interface {
	Getter
	Selecter
}

type DB interface {
	Execer
	Querier
}

// Tx is what the ledger guard needs from an open transaction.
type Tx interface {
	Execer
	Getter
}

var (
	_ DB = (*sqlx.DB)(nil)
	_ DB = (*sqlx.Tx)(nil)
	_ Tx = (*sqlx.Tx)(nil)
)
