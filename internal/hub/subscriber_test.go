package hub

import (
	"errors"
	"testing"

	"github.com/stokerbuild/stoker/internal/domain"
	"github.com/stokerbuild/stoker/internal/domain/events"
)

func TestChannelSubscriber_SendAndReceive(t *testing.T) {
	sub := NewChannelSubscriber("chan-1", 4)

	if sub.ID() != "chan-1" {
		t.Errorf("ID() = %s, want chan-1", sub.ID())
	}

	event := events.NewHeartbeatEvent(1, "ok", 60)
	if err := sub.Send(event); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case got := <-sub.Events():
		if got.Type() != events.EventTypeHeartbeat {
			t.Errorf("received type = %s, want %s", got.Type(), events.EventTypeHeartbeat)
		}
	default:
		t.Fatal("no event on channel after Send")
	}
}

func TestChannelSubscriber_FullBufferFailsSend(t *testing.T) {
	sub := NewChannelSubscriber("chan-1", 1)

	if err := sub.Send(events.NewHeartbeatEvent(1, "ok", 60)); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	err := sub.Send(events.NewHeartbeatEvent(2, "ok", 61))
	if !errors.Is(err, domain.ErrSubscriberClosed) {
		t.Errorf("Send() on full buffer error = %v, want %v", err, domain.ErrSubscriberClosed)
	}
}

func TestChannelSubscriber_Close(t *testing.T) {
	sub := NewChannelSubscriber("chan-1", 1)

	if err := sub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case <-sub.Done():
	default:
		t.Error("Done() channel not closed after Close()")
	}

	if err := sub.Send(events.NewHeartbeatEvent(1, "ok", 60)); !errors.Is(err, domain.ErrSubscriberClosed) {
		t.Errorf("Send() after Close() error = %v, want %v", err, domain.ErrSubscriberClosed)
	}

	// Closing twice must not panic.
	if err := sub.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestLogSubscriber_InvokesCallback(t *testing.T) {
	var seen []events.Event
	sub := NewLogSubscriber("log-1", func(e events.Event) {
		seen = append(seen, e)
	})

	if err := sub.Send(events.NewRefreshStartedEvent("/src")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("callback invoked %d times, want 1", len(seen))
	}
	if seen[0].Type() != events.EventTypeRefreshStarted {
		t.Errorf("callback event type = %s, want %s", seen[0].Type(), events.EventTypeRefreshStarted)
	}
}

func TestLogSubscriber_ClosedRejectsSend(t *testing.T) {
	sub := NewLogSubscriber("log-1", nil)

	if err := sub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sub.Send(events.NewHeartbeatEvent(1, "ok", 60)); !errors.Is(err, domain.ErrSubscriberClosed) {
		t.Errorf("Send() after Close() error = %v, want %v", err, domain.ErrSubscriberClosed)
	}
}
