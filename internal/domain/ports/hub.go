package ports

import (
	"github.com/stokerbuild/stoker/internal/domain/events"
)

// Subscriber receives events from the hub. Implementations decide what a
// delivery means: a websocket push, a channel send, a log line.
type Subscriber interface {
	// ID returns a unique identifier for this subscriber.
	ID() string

	// Send delivers an event to this subscriber. It returns an error when
	// the subscriber is closed or the delivery fails.
	Send(event events.Event) error

	// Close releases the subscriber.
	Close() error

	// Done returns a channel that is closed once the subscriber is finished.
	Done() <-chan struct{}
}

// EventHub fans refresh-cycle events out to every subscriber.
type EventHub interface {
	// Start begins the hub's dispatch loop.
	Start() error

	// Stop shuts the hub down and closes all subscribers.
	Stop() error

	// Publish sends an event to all subscribers. It never blocks; events are
	// dropped when the hub is saturated.
	Publish(event events.Event)

	// Subscribe adds a subscriber.
	Subscribe(sub Subscriber)

	// Unsubscribe removes a subscriber by ID.
	Unsubscribe(id string)

	// SubscriberCount returns the number of active subscribers.
	SubscriberCount() int
}
