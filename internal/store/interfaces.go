package store

import (
	"context"
	"errors"

	"janatpmp.app/syncd/internal/model"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// ErrNoTransaction is returned when Append is called on a store that is not
// bound to an active transaction. Event capture must commit or roll back
// together with the business write that produced it.
var ErrNoTransaction = errors.New("outbox append requires an active transaction")

// ErrUnregisteredEntityType is returned when an event names an entity type
// the capture registry does not know.
var ErrUnregisteredEntityType = errors.New("unregistered entity type")

// EntityTypes reports whether an entity type has been registered for capture.
// Implemented by capture.Registry.
type EntityTypes interface {
	Registered(entityType string) bool
}

// OutboxStore is the durable append-only event log plus the per-consumer
// processed flags that back the checkpoint tracker.
type OutboxStore interface {
	// Append assigns the next sequence id and inserts the event. Only valid
	// inside a transaction; the sequence row lock is held until commit so
	// committed ids become visible in order.
	Append(ctx context.Context, ev *model.OutboxEvent) (int64, error)
	// Pending returns up to limit committed events not yet applied by the
	// consumer, ascending by id, skipping entity lineages held by an
	// unresolved dead letter.
	Pending(ctx context.Context, consumer string, limit int32) ([]model.OutboxEvent, error)
	// MarkProcessed flips the consumer's flag for the event. Idempotent.
	MarkProcessed(ctx context.Context, consumer string, eventID int64) error
	IsProcessed(ctx context.Context, consumer string, eventID int64) (bool, error)
	PendingCount(ctx context.Context, consumer string) (int64, error)
	GetByID(ctx context.Context, id int64) (*model.OutboxEvent, error)
}

// DeadLetterStore tracks events a consumer permanently failed to apply.
type DeadLetterStore interface {
	Create(ctx context.Context, dl *model.DeadLetter) error
	GetByID(ctx context.Context, id int64) (*model.DeadLetter, error)
	ListUnresolved(ctx context.Context, consumer string, limit int32) ([]model.DeadLetter, error)
	// Resolve marks the dead letter handled, releasing its entity lineage
	// back to the consumer's pending set.
	Resolve(ctx context.Context, id int64) error
}
