package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Statement is one SQL statement with its bind parameters.
type Statement struct {
	SQL  string
	Args []any
}

// InTx runs fn inside a transaction. The transaction commits only when fn
// returns nil; any error rolls every statement back and is returned.
func InTx(ctx context.Context, pool Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "db: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "db: commit tx")
	}
	return nil
}

// ExecMany executes statements in order within one transaction.
func ExecMany(ctx context.Context, pool Pool, stmts []Statement) error {
	return InTx(ctx, pool, func(tx pgx.Tx) error {
		for i, s := range stmts {
			if _, err := tx.Exec(ctx, s.SQL, s.Args...); err != nil {
				return eris.Wrapf(err, "db: exec statement %d", i)
			}
		}
		return nil
	})
}
