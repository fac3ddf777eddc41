// Package ws streams scene nodes to renderer clients over websockets.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SafeWriter serialises writes to a websocket connection. gorilla/websocket
// allows one concurrent writer per connection.
type SafeWriter struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	timeout time.Duration
}

// NewSafeWriter wraps conn. A zero timeout disables write deadlines.
func NewSafeWriter(conn *websocket.Conn, timeout time.Duration) *SafeWriter {
	return &SafeWriter{conn: conn, timeout: timeout}
}

func (w *SafeWriter) deadline() {
	if w.timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
}

// WriteJSON writes v as one text frame.
func (w *SafeWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deadline()
	return w.conn.WriteJSON(v)
}

// Ping sends a ping control frame.
func (w *SafeWriter) Ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deadline()
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

// CloseWith sends a close frame with code and reason, then closes the
// connection.
func (w *SafeWriter) CloseWith(code int, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return w.conn.Close()
}
