// Package hub implements the event hub that fans refresh lifecycle events
// out to every attached subscriber.
package hub

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/stokerbuild/stoker/internal/domain/events"
	"github.com/stokerbuild/stoker/internal/domain/ports"
)

// publishBuffer is the capacity of the broadcast channel. Publish never
// blocks the refresh loop; when the buffer is full the event is dropped
// and logged instead.
const publishBuffer = 256

// Hub dispatches events to all registered subscribers.
type Hub struct {
	// subscribers holds all active subscribers, keyed by ID
	subscribers map[string]ports.Subscriber

	// broadcast receives events to fan out
	broadcast chan events.Event

	// register receives new subscribers
	register chan ports.Subscriber

	// unregister receives subscriber IDs to remove
	unregister chan string

	// mu protects subscribers and running
	mu sync.RWMutex

	// done signals the run loop to stop
	done chan struct{}

	running bool
}

// New creates a new Hub.
func New() *Hub {
	return &Hub{
		subscribers: make(map[string]ports.Subscriber),
		broadcast:   make(chan events.Event, publishBuffer),
		register:    make(chan ports.Subscriber),
		unregister:  make(chan string),
		done:        make(chan struct{}),
	}
}

// Start begins the hub's dispatch loop.
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	log.Debug().Msg("Event hub started")

	go h.run()
	return nil
}

// Stop stops the dispatch loop and closes every subscriber.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	h.mu.Unlock()

	close(h.done)

	h.mu.Lock()
	for _, sub := range h.subscribers {
		_ = sub.Close()
	}
	h.subscribers = make(map[string]ports.Subscriber)
	h.mu.Unlock()

	log.Debug().Msg("Event hub stopped")
	return nil
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return

		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub.ID()] = sub
			h.mu.Unlock()
			log.Debug().Str("subscriber_id", sub.ID()).Msg("Subscriber registered")

		case id := <-h.unregister:
			h.mu.Lock()
			if sub, ok := h.subscribers[id]; ok {
				_ = sub.Close()
				delete(h.subscribers, id)
			}
			h.mu.Unlock()
			log.Debug().Str("subscriber_id", id).Msg("Subscriber unregistered")

		case event := <-h.broadcast:
			h.mu.RLock()
			for id, sub := range h.subscribers {
				if err := sub.Send(event); err != nil {
					log.Warn().
						Str("subscriber_id", id).
						Err(err).
						Msg("Failed to send event to subscriber")
					// Queue the removal without blocking the fan-out.
					go func(subID string) {
						select {
						case h.unregister <- subID:
						default:
						}
					}(id)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish queues an event for broadcast. It never blocks; an event that
// does not fit the buffer is dropped.
func (h *Hub) Publish(event events.Event) {
	select {
	case h.broadcast <- event:
	default:
		log.Warn().
			Str("event_type", string(event.Type())).
			Msg("Event dropped: broadcast channel full")
	}
}

// Subscribe adds a subscriber.
func (h *Hub) Subscribe(sub ports.Subscriber) {
	select {
	case h.register <- sub:
	case <-h.done:
	}
}

// Unsubscribe removes the subscriber with the given ID and closes it.
func (h *Hub) Unsubscribe(id string) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// IsRunning reports whether the dispatch loop is active.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Ensure Hub implements ports.EventHub.
var _ ports.EventHub = (*Hub)(nil)
