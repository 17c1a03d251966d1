package service

import (
	"context"

	"github.com/jackc/pgx/v5"
	"janatpmp.app/syncd/core/db"
	"janatpmp.app/syncd/internal/store"
)

// StoreProvider exposes only the stores needed by a transactional operation.
type StoreProvider interface {
	Outbox() store.OutboxStore
	DeadLetters() store.DeadLetterStore
}

// TxRunner runs functions within a transaction and provides stores bound to
// that transaction. Mutation capture goes through here: the outbox append
// commits or rolls back together with whatever else fn writes.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores StoreProvider) error) error
}

type dbTxRunner struct {
	db    *db.DB
	types store.EntityTypes
}

// NewTxRunner builds a TxRunner backed by the core DB.
func NewTxRunner(database *db.DB, types store.EntityTypes) TxRunner {
	return &dbTxRunner{db: database, types: types}
}

func (r *dbTxRunner) WithTx(ctx context.Context, fn func(stores StoreProvider) error) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		stores := store.NewStores(tx, r.types)
		return fn(stores)
	})
}
