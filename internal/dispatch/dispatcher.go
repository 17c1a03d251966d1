// Package dispatch moves pending outbox events to their consumer, in id
// order, with bounded retries. One Dispatcher runs per consumer; dispatchers
// never share state, so a failing or lagging consumer cannot hold back
// another.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"janatpmp.app/syncd/common/id"
	"janatpmp.app/syncd/common/logger"
	"janatpmp.app/syncd/internal/metrics"
	"janatpmp.app/syncd/internal/model"
	"janatpmp.app/syncd/internal/sink"
	"janatpmp.app/syncd/internal/store"
)

// Stores is the slice of the store layer the dispatcher needs.
// Mirrors store.Stores - defined here to keep the dependency narrow.
type Stores interface {
	Outbox() store.OutboxStore
	DeadLetters() store.DeadLetterStore
}

type Config struct {
	BatchSize      int32
	PollInterval   time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

type Dispatcher struct {
	stores Stores
	sink   sink.Sink
	cfg    Config

	// wake is an optional push notification that an append committed.
	// Correctness never depends on it; the poll interval is the fallback.
	wake <-chan struct{}

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(stores Stores, s sink.Sink, wake <-chan struct{}, cfg Config) *Dispatcher {
	return &Dispatcher{
		stores:    stores,
		sink:      s,
		cfg:       cfg.withDefaults(),
		wake:      wake,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run polls for pending events and delivers them until the context is
// cancelled or Stop is called. Blocks.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.stoppedCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-d.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Consumer:  logger.Ptr(d.sink.Name()),
		Component: "syncd.dispatch",
	})

	slog.InfoContext(ctx, "dispatcher started",
		"batch_size", d.cfg.BatchSize,
		"poll_interval", d.cfg.PollInterval,
		"max_attempts", d.cfg.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "dispatcher stopping")
			return ctx.Err()
		default:
		}

		delivered, err := d.dispatchBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.InfoContext(ctx, "dispatcher stopping")
				return ctx.Err()
			}
			slog.ErrorContext(ctx, "dispatch batch error", "error", err)
			// Brief backoff on store errors before repolling
			time.Sleep(time.Second)
			continue
		}

		if delivered > 0 {
			// More events may already be pending; poll again immediately.
			continue
		}

		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "dispatcher stopping")
			return ctx.Err()
		case <-d.wake:
		case <-time.After(d.cfg.PollInterval):
		}
	}
}

// Stop signals the dispatcher and waits for the in-flight delivery to
// finish or abandon. Abandonment is safe because sinks apply idempotently.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	<-d.stoppedCh
}

// dispatchBatch delivers one batch of pending events strictly in id order.
// An event must reach a terminal state (applied or dead-lettered) before
// the next one is attempted: downstream state can depend on ordering, e.g.
// an UPDATE following its INSERT.
func (d *Dispatcher) dispatchBatch(ctx context.Context) (int, error) {
	consumer := d.sink.Name()

	events, err := d.stores.Outbox().Pending(ctx, consumer, d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing pending events: %w", err)
	}

	if count, err := d.stores.Outbox().PendingCount(ctx, consumer); err == nil {
		metrics.PendingEvents.WithLabelValues(consumer).Set(float64(count))
	}

	delivered := 0
	for _, ev := range events {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		applied, err := d.deliver(ctx, ev)
		if err != nil {
			return delivered, err
		}
		if !applied {
			// Dead-lettered. The rest of this batch was fetched before the
			// lineage hold existed, so repoll instead of risking an
			// out-of-order apply for the same entity.
			return delivered + 1, nil
		}
		delivered++
	}
	return delivered, nil
}

// deliver drives one event to a terminal state and reports whether it was
// applied (false means dead-lettered). Returns an error only for store
// failures or cancellation.
func (d *Dispatcher) deliver(ctx context.Context, ev model.OutboxEvent) (bool, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		EventID:    logger.Ptr(ev.ID),
		EntityType: logger.Ptr(ev.EntityType),
	})

	attempts := 0
	start := time.Now()

	operation := func() (struct{}, error) {
		attempts++
		err := d.sink.Apply(ctx, ev)
		if err == nil {
			return struct{}{}, nil
		}
		if sink.IsPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		metrics.ApplyRetries.WithLabelValues(d.sink.Name()).Inc()
		slog.WarnContext(ctx, "transient apply failure, will retry",
			"error", err,
			"attempt", attempts)
		return struct{}{}, err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = d.cfg.InitialBackoff
	expo.MaxInterval = d.cfg.MaxBackoff

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(d.cfg.MaxAttempts)),
	)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, d.deadLetter(ctx, ev, attempts, err)
	}

	metrics.ApplyDuration.WithLabelValues(d.sink.Name()).Observe(time.Since(start).Seconds())

	// Committing the checkpoint only after a confirmed apply means a crash
	// right here redelivers the event; the sink's idempotence absorbs it.
	if err := d.stores.Outbox().MarkProcessed(ctx, d.sink.Name(), ev.ID); err != nil {
		return false, fmt.Errorf("committing checkpoint for event %d: %w", ev.ID, err)
	}

	metrics.EventsApplied.WithLabelValues(d.sink.Name()).Inc()
	slog.InfoContext(ctx, "event applied",
		"operation", ev.Operation,
		"entity_id", ev.EntityID,
		"attempts", attempts)

	return true, nil
}

// deadLetter parks the event so later events for other entities are not
// starved. The store's pending query keeps this entity's lineage held for
// this consumer until the dead letter is resolved.
func (d *Dispatcher) deadLetter(ctx context.Context, ev model.OutboxEvent, attempts int, cause error) error {
	dl := &model.DeadLetter{
		ID:         id.New(),
		EventID:    ev.ID,
		Consumer:   d.sink.Name(),
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		Attempts:   attempts,
		Reason:     cause.Error(),
	}

	if err := d.stores.DeadLetters().Create(ctx, dl); err != nil {
		return fmt.Errorf("recording dead letter for event %d: %w", ev.ID, err)
	}

	metrics.EventsDeadLettered.WithLabelValues(d.sink.Name()).Inc()
	slog.ErrorContext(ctx, "event dead-lettered",
		"operation", ev.Operation,
		"entity_id", ev.EntityID,
		"attempts", attempts,
		"reason", cause.Error(),
		"dead_letter_id", dl.ID)

	return nil
}
