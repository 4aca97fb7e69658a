package streaming

import "context"

// TurnEvent is a real-time event emitted while a turn executes.
type TurnEvent struct {
	ThreadID     string `json:"thread_id"`
	TurnID       string `json:"turn_id,omitempty"`
	SpecialistID string `json:"specialist_id,omitempty"`
	EventType    string `json:"event_type"`
	Payload      any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	ThreadID   string   `json:"thread_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time turn events.
type EventHub interface {
	Publish(ctx context.Context, event TurnEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan TurnEvent, func(), error)
}
