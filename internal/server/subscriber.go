package server

import (
	"github.com/stokerbuild/stoker/internal/domain"
	"github.com/stokerbuild/stoker/internal/domain/events"
	"github.com/stokerbuild/stoker/internal/domain/ports"
)

// ClientSubscriber bridges a WebSocket client into the event hub: events
// published to the hub are serialized and queued on the client's send
// channel.
type ClientSubscriber struct {
	client *Client
}

// NewClientSubscriber creates a subscriber from a WebSocket client.
func NewClientSubscriber(client *Client) *ClientSubscriber {
	return &ClientSubscriber{client: client}
}

// ID returns the subscriber's unique identifier.
func (s *ClientSubscriber) ID() string {
	return s.client.ID()
}

// Send serializes the event and queues it for the client.
func (s *ClientSubscriber) Send(event events.Event) error {
	s.client.mu.Lock()
	closed := s.client.closed
	s.client.mu.Unlock()

	if closed {
		return domain.ErrSubscriberClosed
	}

	data, err := event.ToJSON()
	if err != nil {
		return err
	}

	s.client.Send(data)
	return nil
}

// Close closes the underlying client.
func (s *ClientSubscriber) Close() error {
	s.client.Close()
	return nil
}

// Done returns a channel that's closed when the client shuts down.
func (s *ClientSubscriber) Done() <-chan struct{} {
	return s.client.done
}

var _ ports.Subscriber = (*ClientSubscriber)(nil)
