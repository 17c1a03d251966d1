package dto

import "github.com/goccy/go-json"

// RecordMutationRequest is the wire contract for out-of-process producers.
// The payload is the caller-chosen snapshot of fields downstream consumers
// need; it is carried opaquely.
type RecordMutationRequest struct {
	Operation  string          `json:"operation" binding:"required"`
	EntityType string          `json:"entity_type" binding:"required"`
	EntityID   string          `json:"entity_id" binding:"required"`
	Payload    json.RawMessage `json:"payload"`
}
