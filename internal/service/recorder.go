package service

import (
	"context"
	"log/slog"

	"janatpmp.app/syncd/internal/capture"
	"janatpmp.app/syncd/internal/model"
	"janatpmp.app/syncd/internal/notify"
)

// Notifier is the post-commit wake-up signal. Mirrors notify.Publisher.
type Notifier interface {
	Publish(ctx context.Context)
}

// Recorder is the producer-facing surface of mutation capture for callers
// that do not carry their own transaction: it wraps the capture in a
// transaction of its own and signals dispatchers once it commits.
//
// In-process producers that already hold a transaction should instead call
// capture.Capturer directly inside their TxRunner closure.
type Recorder struct {
	tx       TxRunner
	capturer *capture.Capturer
	notifier Notifier
}

func NewRecorder(tx TxRunner, capturer *capture.Capturer, notifier Notifier) *Recorder {
	if notifier == nil {
		notifier = (*notify.Publisher)(nil)
	}
	return &Recorder{tx: tx, capturer: capturer, notifier: notifier}
}

// Record captures one mutation in its own transaction. A capture failure is
// returned to the caller and nothing is committed.
func (r *Recorder) Record(ctx context.Context, op model.Operation, entityType, entityID string, snapshot any) (*model.OutboxEvent, error) {
	var ev *model.OutboxEvent

	err := r.tx.WithTx(ctx, func(stores StoreProvider) error {
		var captureErr error
		ev, captureErr = r.capturer.Capture(ctx, stores.Outbox(), op, entityType, entityID, snapshot)
		return captureErr
	})
	if err != nil {
		return nil, err
	}

	// Only after commit: a signal for an uncommitted event would wake
	// dispatchers into an empty poll.
	r.notifier.Publish(ctx)

	slog.InfoContext(ctx, "mutation captured",
		"event_id", ev.ID,
		"operation", op,
		"entity_type", entityType,
		"entity_id", entityID)

	return ev, nil
}
