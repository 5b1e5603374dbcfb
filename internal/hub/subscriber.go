package hub

import (
	"sync"

	"github.com/stokerbuild/stoker/internal/domain"
	"github.com/stokerbuild/stoker/internal/domain/events"
	"github.com/stokerbuild/stoker/internal/domain/ports"
)

// ChannelSubscriber delivers events on a buffered channel. A subscriber
// whose buffer is full is treated as dead: Send fails and the hub drops it.
type ChannelSubscriber struct {
	id     string
	send   chan events.Event
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewChannelSubscriber creates a channel-based subscriber.
func NewChannelSubscriber(id string, bufferSize int) *ChannelSubscriber {
	return &ChannelSubscriber{
		id:   id,
		send: make(chan events.Event, bufferSize),
		done: make(chan struct{}),
	}
}

// ID returns the subscriber's unique identifier.
func (s *ChannelSubscriber) ID() string {
	return s.id
}

// Send queues an event for the consumer. It fails once the subscriber is
// closed or its buffer is full.
func (s *ChannelSubscriber) Send(event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSubscriberClosed
	}

	select {
	case s.send <- event:
		return nil
	default:
		return domain.ErrSubscriberClosed
	}
}

// Close closes the subscriber. Safe to call more than once.
func (s *ChannelSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	close(s.send)
	return nil
}

// Done returns a channel closed when the subscriber shuts down.
func (s *ChannelSubscriber) Done() <-chan struct{} {
	return s.done
}

// Events returns the channel the consumer reads events from.
func (s *ChannelSubscriber) Events() <-chan events.Event {
	return s.send
}

// LogSubscriber passes every event to a callback. Used to mirror refresh
// events into the log without a delivery channel.
type LogSubscriber struct {
	id     string
	done   chan struct{}
	mu     sync.Mutex
	closed bool
	logFn  func(event events.Event)
}

// NewLogSubscriber creates a callback subscriber.
func NewLogSubscriber(id string, logFn func(event events.Event)) *LogSubscriber {
	return &LogSubscriber{
		id:    id,
		done:  make(chan struct{}),
		logFn: logFn,
	}
}

// ID returns the subscriber's unique identifier.
func (s *LogSubscriber) ID() string {
	return s.id
}

// Send invokes the callback with the event.
func (s *LogSubscriber) Send(event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSubscriberClosed
	}
	if s.logFn != nil {
		s.logFn(event)
	}
	return nil
}

// Close closes the subscriber. Safe to call more than once.
func (s *LogSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

// Done returns a channel closed when the subscriber shuts down.
func (s *LogSubscriber) Done() <-chan struct{} {
	return s.done
}

var (
	_ ports.Subscriber = (*ChannelSubscriber)(nil)
	_ ports.Subscriber = (*LogSubscriber)(nil)
)
