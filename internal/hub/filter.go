package hub

import (
	"sync"

	"github.com/stokerbuild/stoker/internal/domain/events"
	"github.com/stokerbuild/stoker/internal/domain/ports"
)

// FilteredSubscriber wraps a subscriber and forwards only events whose type
// is in its allow set. An empty set forwards everything, so a freshly
// wrapped subscriber behaves exactly like its inner one until a client
// narrows the subscription.
type FilteredSubscriber struct {
	inner   ports.Subscriber
	allowed map[events.EventType]bool
	mu      sync.RWMutex
}

// NewFilteredSubscriber wraps inner with an initially empty filter.
func NewFilteredSubscriber(inner ports.Subscriber) *FilteredSubscriber {
	return &FilteredSubscriber{
		inner:   inner,
		allowed: make(map[events.EventType]bool),
	}
}

// ID returns the inner subscriber's identifier.
func (f *FilteredSubscriber) ID() string {
	return f.inner.ID()
}

// Send forwards the event to the inner subscriber if it passes the filter.
// Filtered-out events are dropped without error.
func (f *FilteredSubscriber) Send(event events.Event) error {
	if !f.shouldForward(event) {
		return nil
	}
	return f.inner.Send(event)
}

// Close closes the inner subscriber.
func (f *FilteredSubscriber) Close() error {
	return f.inner.Close()
}

// Done returns the inner subscriber's done channel.
func (f *FilteredSubscriber) Done() <-chan struct{} {
	return f.inner.Done()
}

// Allow adds event types to the filter. Once any type is allowed, all
// other types stop being forwarded.
func (f *FilteredSubscriber) Allow(types ...events.EventType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range types {
		f.allowed[t] = true
	}
}

// SetAllowed replaces the filter with exactly the given types.
func (f *FilteredSubscriber) SetAllowed(types ...events.EventType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowed = make(map[events.EventType]bool, len(types))
	for _, t := range types {
		f.allowed[t] = true
	}
}

// AllowAll clears the filter, restoring forward-everything behavior.
func (f *FilteredSubscriber) AllowAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowed = make(map[events.EventType]bool)
}

// AllowedTypes returns the event types currently in the filter.
func (f *FilteredSubscriber) AllowedTypes() []events.EventType {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make([]events.EventType, 0, len(f.allowed))
	for t := range f.allowed {
		result = append(result, t)
	}
	return result
}

// IsFiltering reports whether the filter narrows the subscription.
func (f *FilteredSubscriber) IsFiltering() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.allowed) > 0
}

func (f *FilteredSubscriber) shouldForward(event events.Event) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.allowed) == 0 {
		return true
	}
	return f.allowed[event.Type()]
}

var _ ports.Subscriber = (*FilteredSubscriber)(nil)
