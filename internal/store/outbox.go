package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"janatpmp.app/syncd/internal/model"
)

type outboxStore struct {
	q     Querier
	types EntityTypes
}

func newOutboxStore(q Querier, types EntityTypes) OutboxStore {
	return &outboxStore{q: q, types: types}
}

// nextEventID claims the next sequence value. The UPDATE takes a row lock on
// the single sequence row that is held until the enclosing transaction ends,
// which serializes appenders: an event with a higher id can never become
// visible before a committed event with a lower one.
const nextEventID = `UPDATE outbox_sequence SET value = value + 1 RETURNING value`

const insertEvent = `
INSERT INTO outbox_events (id, operation, entity_type, entity_id, payload)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`

func (s *outboxStore) Append(ctx context.Context, ev *model.OutboxEvent) (int64, error) {
	if _, ok := s.q.(pgx.Tx); !ok {
		return 0, ErrNoTransaction
	}

	if !ev.Operation.Valid() {
		return 0, fmt.Errorf("invalid operation %q", ev.Operation)
	}

	if s.types != nil && !s.types.Registered(ev.EntityType) {
		return 0, fmt.Errorf("%w: %s", ErrUnregisteredEntityType, ev.EntityType)
	}

	var id int64
	if err := s.q.QueryRow(ctx, nextEventID).Scan(&id); err != nil {
		return 0, fmt.Errorf("claiming event id: %w", err)
	}

	row := s.q.QueryRow(ctx, insertEvent, id, ev.Operation, ev.EntityType, ev.EntityID, []byte(ev.Payload))
	if err := row.Scan(&ev.CreatedAt); err != nil {
		return 0, fmt.Errorf("inserting event: %w", err)
	}

	ev.ID = id
	return id, nil
}

// pendingEvents re-evaluates the processed predicate on every poll, so no
// cursor state is needed. Lineages with an unresolved dead letter are held:
// applying a later mutation of an entity whose earlier event is dead would
// break per-entity ordering downstream.
const pendingEvents = `
SELECT e.id, e.operation, e.entity_type, e.entity_id, e.payload, e.created_at
FROM outbox_events e
WHERE NOT EXISTS (
        SELECT 1 FROM outbox_progress p
        WHERE p.event_id = e.id AND p.consumer = $1)
  AND NOT EXISTS (
        SELECT 1 FROM outbox_dead_letters d
        WHERE d.consumer = $1
          AND d.entity_type = e.entity_type
          AND d.entity_id = e.entity_id
          AND d.resolved_at IS NULL)
ORDER BY e.id
LIMIT $2`

func (s *outboxStore) Pending(ctx context.Context, consumer string, limit int32) ([]model.OutboxEvent, error) {
	rows, err := s.q.Query(ctx, pendingEvents, consumer, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending events: %w", err)
	}
	defer rows.Close()

	var events []model.OutboxEvent
	for rows.Next() {
		var ev model.OutboxEvent
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.Operation, &ev.EntityType, &ev.EntityID, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Payload = payload
		events = append(events, ev)
	}
	return events, rows.Err()
}

const markProcessed = `
INSERT INTO outbox_progress (event_id, consumer)
VALUES ($1, $2)
ON CONFLICT (event_id, consumer) DO NOTHING`

func (s *outboxStore) MarkProcessed(ctx context.Context, consumer string, eventID int64) error {
	if _, err := s.q.Exec(ctx, markProcessed, eventID, consumer); err != nil {
		return fmt.Errorf("marking event %d processed for %s: %w", eventID, consumer, err)
	}
	return nil
}

func (s *outboxStore) IsProcessed(ctx context.Context, consumer string, eventID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM outbox_progress WHERE event_id = $1 AND consumer = $2)`
	var processed bool
	if err := s.q.QueryRow(ctx, q, eventID, consumer).Scan(&processed); err != nil {
		return false, fmt.Errorf("checking processed flag: %w", err)
	}
	return processed, nil
}

const pendingCount = `
SELECT count(*)
FROM outbox_events e
WHERE NOT EXISTS (
        SELECT 1 FROM outbox_progress p
        WHERE p.event_id = e.id AND p.consumer = $1)`

func (s *outboxStore) PendingCount(ctx context.Context, consumer string) (int64, error) {
	var count int64
	if err := s.q.QueryRow(ctx, pendingCount, consumer).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting pending events: %w", err)
	}
	return count, nil
}

func (s *outboxStore) GetByID(ctx context.Context, id int64) (*model.OutboxEvent, error) {
	const q = `
SELECT id, operation, entity_type, entity_id, payload, created_at
FROM outbox_events WHERE id = $1`

	var ev model.OutboxEvent
	var payload []byte
	err := s.q.QueryRow(ctx, q, id).Scan(&ev.ID, &ev.Operation, &ev.EntityType, &ev.EntityID, &payload, &ev.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ev.Payload = payload
	return &ev, nil
}
