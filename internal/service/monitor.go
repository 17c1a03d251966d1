package service

import (
	"context"
	"fmt"

	"janatpmp.app/syncd/internal/model"
	"janatpmp.app/syncd/internal/store"
)

// MonitorStores is the read surface the monitor needs; satisfied by
// store.Stores built over the pool.
type MonitorStores interface {
	Outbox() store.OutboxStore
	DeadLetters() store.DeadLetterStore
}

// MonitorService is the operational surface: pending depth per consumer,
// dead-letter visibility, and redrive.
type MonitorService interface {
	PendingCounts(ctx context.Context) (map[string]int64, error)
	DeadLetters(ctx context.Context, consumer string, limit int32) ([]model.DeadLetter, error)
	// Redrive resolves a dead letter, returning the event and its held
	// entity lineage to the consumer's pending set.
	Redrive(ctx context.Context, deadLetterID int64) (*model.DeadLetter, error)
}

type monitorService struct {
	stores    MonitorStores
	consumers []string
	notifier  Notifier
}

func NewMonitorService(stores MonitorStores, consumers []string, notifier Notifier) MonitorService {
	return &monitorService{stores: stores, consumers: consumers, notifier: notifier}
}

func (s *monitorService) PendingCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(s.consumers))
	for _, consumer := range s.consumers {
		count, err := s.stores.Outbox().PendingCount(ctx, consumer)
		if err != nil {
			return nil, fmt.Errorf("pending count for %s: %w", consumer, err)
		}
		counts[consumer] = count
	}
	return counts, nil
}

func (s *monitorService) DeadLetters(ctx context.Context, consumer string, limit int32) ([]model.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.stores.DeadLetters().ListUnresolved(ctx, consumer, limit)
}

func (s *monitorService) Redrive(ctx context.Context, deadLetterID int64) (*model.DeadLetter, error) {
	dl, err := s.stores.DeadLetters().GetByID(ctx, deadLetterID)
	if err != nil {
		return nil, err
	}
	if dl.ResolvedAt != nil {
		return nil, fmt.Errorf("dead letter %d: %w", deadLetterID, store.ErrNotFound)
	}

	if err := s.stores.DeadLetters().Resolve(ctx, deadLetterID); err != nil {
		return nil, err
	}

	// Wake dispatchers so the released lineage is retried promptly.
	if s.notifier != nil {
		s.notifier.Publish(ctx)
	}

	dl, err = s.stores.DeadLetters().GetByID(ctx, deadLetterID)
	if err != nil {
		return nil, err
	}
	return dl, nil
}
