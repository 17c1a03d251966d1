package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	ts "github.com/typesense/typesense-go/v4/typesense"
	"janatpmp.app/syncd/common/typesense"
	"janatpmp.app/syncd/internal/model"
)

// VectorSink keeps the search index in step with the event log: upserts for
// INSERT/UPDATE, idempotent deletes for DELETE, all keyed by entity id.
type VectorSink struct {
	client  typesense.Client
	breaker *gobreaker.CircuitBreaker[any]
	timeout time.Duration
}

func NewVectorSink(client typesense.Client, timeout time.Duration) *VectorSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &VectorSink{
		client:  client,
		timeout: timeout,
		breaker: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:    "typesense",
			Timeout: 30 * time.Second,
		}),
	}
}

func (s *VectorSink) Name() string {
	return model.ConsumerVector
}

func (s *VectorSink) Apply(ctx context.Context, ev model.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.apply(ctx, ev)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Transient(err)
	}
	return classifyTypesense(err)
}

func (s *VectorSink) apply(ctx context.Context, ev model.OutboxEvent) error {
	switch ev.Operation {
	case model.OperationInsert, model.OperationUpdate:
		var doc map[string]any
		if err := json.Unmarshal(ev.Payload, &doc); err != nil {
			return Permanent(fmt.Errorf("decoding payload: %w", err))
		}
		if doc == nil {
			doc = map[string]any{}
		}
		doc["entity_type"] = ev.EntityType

		if err := s.client.Upsert(ctx, ev.EntityID, doc); err != nil {
			return err
		}

		slog.DebugContext(ctx, "vector index upserted",
			"entity_type", ev.EntityType,
			"entity_id", ev.EntityID)
		return nil

	case model.OperationDelete:
		// Delete of an absent document succeeds; the client already maps
		// 404 to nil.
		return s.client.Delete(ctx, ev.EntityID)

	default:
		return Permanent(fmt.Errorf("unknown operation %q", ev.Operation))
	}
}

// classifyTypesense sorts downstream HTTP failures into retryable and not.
// Request timeouts and rate limits are transient; remaining 4xx responses
// mean the document is never going to be accepted.
func classifyTypesense(err error) error {
	if IsPermanent(err) {
		return err
	}

	var httpErr *ts.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Status == 408 || httpErr.Status == 429:
			return Transient(err)
		case httpErr.Status >= 400 && httpErr.Status < 500:
			return Permanent(err)
		}
	}
	return Transient(err)
}
