package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"janatpmp.app/syncd/common/arangodb"
	"janatpmp.app/syncd/internal/model"
)

// relationshipType is the entity type projected as a graph edge instead of
// a node. Its payload carries the source/target endpoints.
const relationshipType = "relationship"

// GraphSink projects entities into the graph store: most entity types map
// to nodes, relationships map to edges between their endpoints.
type GraphSink struct {
	client  arangodb.Client
	breaker *gobreaker.CircuitBreaker[any]
	timeout time.Duration
}

func NewGraphSink(client arangodb.Client, timeout time.Duration) *GraphSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GraphSink{
		client:  client,
		timeout: timeout,
		breaker: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:    "arangodb",
			Timeout: 30 * time.Second,
		}),
	}
}

func (s *GraphSink) Name() string {
	return model.ConsumerGraph
}

func (s *GraphSink) Apply(ctx context.Context, ev model.OutboxEvent) error {
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
	if IsPermanent(err) {
		return err
	}
	return Transient(err)
}

func (s *GraphSink) apply(ctx context.Context, ev model.OutboxEvent) error {
	if ev.EntityType == relationshipType {
		return s.applyEdge(ctx, ev)
	}
	return s.applyNode(ctx, ev)
}

func (s *GraphSink) applyNode(ctx context.Context, ev model.OutboxEvent) error {
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

		if err := s.client.UpsertNode(ctx, ev.EntityID, doc); err != nil {
			return err
		}

		slog.DebugContext(ctx, "graph node upserted",
			"entity_type", ev.EntityType,
			"entity_id", ev.EntityID)
		return nil

	case model.OperationDelete:
		return s.client.RemoveNode(ctx, ev.EntityID)

	default:
		return Permanent(fmt.Errorf("unknown operation %q", ev.Operation))
	}
}

func (s *GraphSink) applyEdge(ctx context.Context, ev model.OutboxEvent) error {
	switch ev.Operation {
	case model.OperationInsert, model.OperationUpdate:
		var rel model.RelationshipPayload
		if err := json.Unmarshal(ev.Payload, &rel); err != nil {
			return Permanent(fmt.Errorf("decoding relationship payload: %w", err))
		}
		if rel.SourceID == "" || rel.TargetID == "" {
			return Permanent(fmt.Errorf("relationship %s missing endpoints", ev.EntityID))
		}

		doc := map[string]any{"entity_type": ev.EntityType}
		if rel.Kind != "" {
			doc["relationship_type"] = rel.Kind
		}

		if err := s.client.UpsertEdge(ctx, ev.EntityID, rel.SourceID, rel.TargetID, doc); err != nil {
			return err
		}

		slog.DebugContext(ctx, "graph edge upserted",
			"entity_id", ev.EntityID,
			"source_id", rel.SourceID,
			"target_id", rel.TargetID)
		return nil

	case model.OperationDelete:
		return s.client.RemoveEdge(ctx, ev.EntityID)

	default:
		return Permanent(fmt.Errorf("unknown operation %q", ev.Operation))
	}
}
