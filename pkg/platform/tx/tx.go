// Package tx carries a SQL transaction on the context so ledger store
// methods join the surrounding unit of work instead of opening their own.
package tx

import (
	"context"
	"database/sql"
)

type unitKey struct{}

// WithTx returns a context whose store reads and writes run inside tx.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, unitKey{}, tx)
}

// From reports the transaction the context rides, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(unitKey{}).(*sql.Tx)
	return tx, ok
}
