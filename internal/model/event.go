package model

import (
	"time"

	"github.com/goccy/go-json"
)

// Operation is the kind of domain mutation an outbox event carries.
type Operation string

const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

func (o Operation) Valid() bool {
	switch o {
	case OperationInsert, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// Consumer names for the built-in downstream systems.
const (
	ConsumerVector = "vector"
	ConsumerGraph  = "graph"
)

// OutboxEvent is one captured mutation. Immutable after append; the
// store-assigned ID is the sole ordering authority.
type OutboxEvent struct {
	ID         int64           `json:"id"`
	Operation  Operation       `json:"operation"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RelationshipPayload is the snapshot shape carried by relationship-typed
// events. The graph sink needs the endpoints to build an edge.
type RelationshipPayload struct {
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	Kind       string `json:"relationship_type,omitempty"`
}
