// Package server exposes the refresh pipeline over HTTP and WebSocket: a
// small JSON API for on-demand cycles and registry reads, and a live event
// stream connected clients consume through the event hub.
//
// Each WebSocket Client runs two goroutines:
//   - readPump parses incoming command messages and keeps the read deadline
//     fresh via pong handling
//   - writePump drains the send channel onto the wire and emits protocol
//     pings
//
// Send() is safe from any goroutine; Close() is safe to call repeatedly.
package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 15 * time.Second

	// Time allowed to read the next pong from the peer. Generous so
	// dashboards connected through tunnels are not dropped on jitter.
	pongWait = 90 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum incoming message size. Commands are small JSON objects.
	maxMessageSize = 32 * 1024

	// Send buffer size per client. Refresh events are low-rate, so a
	// modest buffer absorbs any burst from a large cycle.
	sendBufferSize = 256

	// Application-level heartbeat interval. Sent as a JSON event, not a
	// WebSocket ping, so clients can monitor liveness above the protocol.
	heartbeatInterval = 30 * time.Second
)

// commandHandler processes one incoming client message.
type commandHandler func(clientID string, message []byte)

// Client represents one WebSocket connection.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	handler commandHandler
	onClose func(id string)

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client for an upgraded connection.
func NewClient(conn *websocket.Conn, handler commandHandler, onClose func(id string)) *Client {
	return &Client{
		id:      uuid.New().String(),
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		handler: handler,
		onClose: onClose,
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() string {
	return c.id
}

// Start starts the client's read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// Send queues a message for the client. Messages to a slow client are
// dropped rather than blocking the caller.
func (c *Client) Send(message []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	select {
	case c.send <- message:
	default:
		log.Warn().Str("client_id", c.id).Msg("Client send channel full, dropping message")
	}
}

// Close closes the client connection.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
}

// readPump pumps messages from the connection to the command handler.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		_ = c.conn.Close()
		if c.onClose != nil {
			c.onClose(c.id)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client_id", c.id).Msg("WebSocket read error")
			}
			return
		}

		if c.handler != nil {
			c.handler(c.id, message)
		}
	}
}

// writePump pumps messages from the send channel to the connection. Each
// message goes out as its own text frame so concatenated JSON never
// reaches a client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// Close frame with a deadline so a stalled peer cannot block shutdown.
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case message, ok := <-c.send:
			if !ok {
				return
			}

			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("client_id", c.id).Msg("Write error")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("client_id", c.id).Msg("Ping error")
				return
			}
		}
	}
}
