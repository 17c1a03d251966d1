package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"janatpmp.app/syncd/internal/model"
)

type deadLetterStore struct {
	q Querier
}

func newDeadLetterStore(q Querier) DeadLetterStore {
	return &deadLetterStore{q: q}
}

func (s *deadLetterStore) Create(ctx context.Context, dl *model.DeadLetter) error {
	const q = `
INSERT INTO outbox_dead_letters (id, event_id, consumer, entity_type, entity_id, attempts, reason)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at`

	row := s.q.QueryRow(ctx, q, dl.ID, dl.EventID, dl.Consumer, dl.EntityType, dl.EntityID, dl.Attempts, dl.Reason)
	if err := row.Scan(&dl.CreatedAt); err != nil {
		return fmt.Errorf("creating dead letter: %w", err)
	}
	return nil
}

func (s *deadLetterStore) GetByID(ctx context.Context, id int64) (*model.DeadLetter, error) {
	const q = `
SELECT id, event_id, consumer, entity_type, entity_id, attempts, reason, created_at, resolved_at
FROM outbox_dead_letters WHERE id = $1`

	dl, err := scanDeadLetter(s.q.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return dl, nil
}

func (s *deadLetterStore) ListUnresolved(ctx context.Context, consumer string, limit int32) ([]model.DeadLetter, error) {
	const q = `
SELECT id, event_id, consumer, entity_type, entity_id, attempts, reason, created_at, resolved_at
FROM outbox_dead_letters
WHERE consumer = $1 AND resolved_at IS NULL
ORDER BY event_id
LIMIT $2`

	rows, err := s.q.Query(ctx, q, consumer, limit)
	if err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}
	defer rows.Close()

	var letters []model.DeadLetter
	for rows.Next() {
		dl, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}
		letters = append(letters, *dl)
	}
	return letters, rows.Err()
}

func (s *deadLetterStore) Resolve(ctx context.Context, id int64) error {
	const q = `UPDATE outbox_dead_letters SET resolved_at = now() WHERE id = $1 AND resolved_at IS NULL`

	tag, err := s.q.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("resolving dead letter %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeadLetter(row rowScanner) (*model.DeadLetter, error) {
	var dl model.DeadLetter
	var resolvedAt *time.Time
	err := row.Scan(&dl.ID, &dl.EventID, &dl.Consumer, &dl.EntityType, &dl.EntityID,
		&dl.Attempts, &dl.Reason, &dl.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	dl.ResolvedAt = resolvedAt
	return &dl, nil
}
