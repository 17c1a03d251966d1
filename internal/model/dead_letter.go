package model

import "time"

// DeadLetter records an event a consumer could not apply within its retry
// budget. While unresolved it holds the event's entity lineage for that
// consumer so later mutations of the same entity are not applied out of
// order. Redriving sets ResolvedAt and returns the lineage to pending.
type DeadLetter struct {
	ID         int64      `json:"id"`
	EventID    int64      `json:"event_id"`
	Consumer   string     `json:"consumer"`
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Attempts   int        `json:"attempts"`
	Reason     string     `json:"reason"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
