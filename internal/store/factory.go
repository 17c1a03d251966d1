package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by pgxpool.Pool and pgx.Tx. Stores
// built over a pool serve reads; stores built over a tx also serve Append.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Stores struct {
	q     Querier
	types EntityTypes
}

func NewStores(q Querier, types EntityTypes) *Stores {
	return &Stores{q: q, types: types}
}

func (s *Stores) Outbox() OutboxStore {
	return newOutboxStore(s.q, s.types)
}

func (s *Stores) DeadLetters() DeadLetterStore {
	return newDeadLetterStore(s.q)
}
