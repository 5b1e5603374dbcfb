package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/stokerbuild/stoker/internal/domain/events"
)

// commandEnvelope is the wire format for client commands.
type commandEnvelope struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// subscribePayload selects the event types a client wants to receive.
// An empty list restores delivery of all events.
type subscribePayload struct {
	Events []string `json:"events"`
}

// handleCommand dispatches a client command received over the WebSocket.
func (s *Server) handleCommand(clientID string, message []byte) {
	var cmd commandEnvelope
	if err := json.Unmarshal(message, &cmd); err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("Invalid command message")
		s.sendError(clientID, "invalid command message")
		return
	}

	log.Debug().
		Str("client_id", clientID).
		Str("command", cmd.Command).
		Msg("Command received")

	switch cmd.Command {
	case "refresh":
		s.commandRefresh(clientID)
	case "subscribe":
		s.commandSubscribe(clientID, cmd.Payload)
	case "status":
		s.sendToClient(clientID, events.NewEvent(events.EventTypeStatus, s.statusResponse()))
	default:
		s.sendError(clientID, fmt.Sprintf("unknown command: %s", cmd.Command))
	}
}

// commandRefresh acknowledges the request and runs the refresh cycle in
// the background. The outcome reaches the client through the broadcast
// refresh_completed or refresh_failed event.
func (s *Server) commandRefresh(clientID string) {
	s.sendToClient(clientID, events.NewEvent(events.EventTypeRefreshAccepted, nil))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		if _, err := s.pipeline.RefreshNow(ctx); err != nil {
			log.Warn().Err(err).Str("client_id", clientID).Msg("Client-triggered refresh failed")
		}
	}()
}

// commandSubscribe narrows or restores the event types delivered to the
// client.
func (s *Server) commandSubscribe(clientID string, payload json.RawMessage) {
	var sub subscribePayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &sub); err != nil {
			s.sendError(clientID, "invalid subscribe payload")
			return
		}
	}

	s.mu.RLock()
	filter, ok := s.filters[clientID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	if len(sub.Events) == 0 {
		filter.AllowAll()
	} else {
		types := make([]events.EventType, 0, len(sub.Events))
		for _, name := range sub.Events {
			types = append(types, events.EventType(name))
		}
		filter.SetAllowed(types...)
	}

	current := make([]string, 0, len(filter.AllowedTypes()))
	for _, t := range filter.AllowedTypes() {
		current = append(current, string(t))
	}

	s.sendToClient(clientID, events.NewEvent(events.EventTypeSubscriptionUpdate, map[string]interface{}{
		"events": current,
		"all":    !filter.IsFiltering(),
	}))
}

// sendToClient serializes an event and queues it on a single client,
// bypassing the hub and any subscription filter.
func (s *Server) sendToClient(clientID string, event events.Event) {
	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	data, err := event.ToJSON()
	if err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("Failed to serialize event")
		return
	}

	client.Send(data)
}

func (s *Server) sendError(clientID, message string) {
	s.sendToClient(clientID, events.NewEvent(events.EventTypeError, map[string]string{
		"message": message,
	}))
}
