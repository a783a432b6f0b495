// Package realtime holds the live client connection registry and the
// best-effort notification dispatcher built on top of it.
package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is an opaque handle to a live client connection. Handles are
// registered and unregistered by the transport layer.
type Conn interface {
	// Emit pushes one event to the client
	Emit(event string, payload any) error

	// Close tears the connection down
	Close() error
}

// envelope is the wire shape of a pushed event
type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// WSConn wraps a websocket connection with a write lock. Gorilla websocket
// connections support one concurrent writer only.
type WSConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSConn wraps an accepted websocket connection
func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

// Emit pushes one JSON event frame to the client
func (c *WSConn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(envelope{Event: event, Payload: payload})
}

// Close closes the underlying websocket connection
func (c *WSConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	return c.conn.Close()
}
