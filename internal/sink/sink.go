// Package sink translates outbox events into downstream calls. A sink is
// the consumer side of the pipeline: the dispatcher hands it one event at a
// time and classifies the returned error to decide between retry and
// dead-letter. Every sink must apply events idempotently, because an event
// can be redelivered if the process dies between a successful apply and the
// checkpoint commit.
package sink

import (
	"context"
	"errors"

	"janatpmp.app/syncd/internal/model"
)

// Sink applies one event to a downstream system.
type Sink interface {
	// Name is the consumer name checkpoints are tracked under.
	Name() string
	// Apply returns nil on durable downstream application. Failures are
	// wrapped with Transient or Permanent; unclassified errors are treated
	// as transient and retried.
	Apply(ctx context.Context, ev model.OutboxEvent) error
}

// TransientError marks a failure worth retrying: timeouts, rate limits,
// downstream temporarily unavailable.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string { return e.err.Error() }
func (e *TransientError) Unwrap() error { return e.err }

// PermanentError marks a failure retries cannot fix: a payload the
// downstream will never accept. The dispatcher dead-letters the event.
type PermanentError struct {
	err error
}

func (e *PermanentError) Error() string { return e.err.Error() }
func (e *PermanentError) Unwrap() error { return e.err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{err: err}
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
