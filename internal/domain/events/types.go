// Package events defines the event types stoker publishes over its hub.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Refresh cycle events
	EventTypeRefreshStarted   EventType = "refresh_started"
	EventTypeRefreshCompleted EventType = "refresh_completed"
	EventTypeRefreshFailed    EventType = "refresh_failed"

	// Connection events
	EventTypeHeartbeat EventType = "heartbeat"

	// Direct replies to client commands; never broadcast
	EventTypeRefreshAccepted    EventType = "refresh_accepted"
	EventTypeSubscriptionUpdate EventType = "subscription_updated"
	EventTypeStatus             EventType = "status"
	EventTypeError              EventType = "error"
)

// Event is the base interface for all events.
type Event interface {
	// Type returns the event type.
	Type() EventType

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// ToJSON serializes the event to JSON.
	ToJSON() ([]byte, error)
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType EventType   `json:"event"`
	EventTime time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Type returns the event type.
func (e *BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e *BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// ToJSON serializes the event to JSON.
func (e *BaseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NewEvent creates a new base event with the given type and payload.
func NewEvent(eventType EventType, payload interface{}) *BaseEvent {
	return &BaseEvent{
		EventType: eventType,
		EventTime: time.Now().UTC(),
		Payload:   payload,
	}
}
