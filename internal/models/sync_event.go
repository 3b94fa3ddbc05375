package models

import "time"

// SyncEvent logs a cross-platform state change.
type SyncEvent struct {
	ID         int64     `json:"id"`
	Type       string    `json:"type"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	Source     string    `json:"source"`
	Payload    string    `json:"payload,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type SyncEventFilter struct {
	EntityType string
	EntityID   int64
	Type       string
	Limit      int
}
