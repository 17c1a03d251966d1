// Package capture turns domain writes into outbox events, synchronously and
// atomically with the write that caused them. Every mutating code path calls
// Capturer.Capture inside its own transaction; a capture failure aborts that
// transaction, so a mutation is never committed without its event.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"janatpmp.app/syncd/internal/model"
	"janatpmp.app/syncd/internal/store"
)

// Error is returned for capture failures. It is fatal to the enclosing
// business transaction: callers must propagate it out of their WithTx.
type Error struct {
	EntityType string
	EntityID   string
	cause      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("capturing %s/%s: %v", e.EntityType, e.EntityID, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Capturer builds outbox events from domain mutations.
type Capturer struct {
	registry *Registry
}

func New(registry *Registry) *Capturer {
	return &Capturer{registry: registry}
}

func (c *Capturer) Registry() *Registry {
	return c.registry
}

// Capture appends one event for the given mutation through the tx-bound
// outbox store. The snapshot is the caller's choice of fields to carry; it
// must serialize to JSON. For deletes the row is already gone, so callers
// pass the pre-delete identity and Capture falls back to a minimal payload
// when the snapshot is nil.
func (c *Capturer) Capture(ctx context.Context, outbox store.OutboxStore, op model.Operation, entityType, entityID string, snapshot any) (*model.OutboxEvent, error) {
	if !c.registry.Registered(entityType) {
		return nil, &Error{EntityType: entityType, EntityID: entityID, cause: store.ErrUnregisteredEntityType}
	}

	if snapshot == nil && op == model.OperationDelete {
		snapshot = map[string]string{"id": entityID}
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, &Error{EntityType: entityType, EntityID: entityID, cause: fmt.Errorf("serializing payload: %w", err)}
	}

	ev := &model.OutboxEvent{
		Operation:  op,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
	}

	if _, err := outbox.Append(ctx, ev); err != nil {
		return nil, &Error{EntityType: entityType, EntityID: entityID, cause: err}
	}

	return ev, nil
}

// IsCaptureError reports whether err originated in capture.
func IsCaptureError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}
