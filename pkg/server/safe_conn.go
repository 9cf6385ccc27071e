package server

import (
	"net"
	"sync"

	"github.com/gorilla/websocket"
)

// SafeConn wraps a websocket connection with automatic write
// synchronization.
//
// Request handlers and fan-out senders for other users' actions may
// try to write to the same connection simultaneously; gorilla/websocket
// does not allow concurrent writers. SafeConn encapsulates the
// connection and its write mutex, making it impossible to write
// without proper synchronization.
type SafeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex // Protects writes to conn
}

// NewSafeConn wraps a websocket connection with write synchronization
func NewSafeConn(conn *websocket.Conn) *SafeConn {
	return &SafeConn{conn: conn}
}

// WriteJSON marshals v and sends it as a single text frame. This is
// the ONLY way to write to the connection - the raw conn is private.
func (sc *SafeConn) WriteJSON(v any) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.conn.WriteJSON(v)
}

// ReadMessage reads the next frame payload from the connection.
// Reads don't need write synchronization; there is exactly one reader
// per connection.
func (sc *SafeConn) ReadMessage() ([]byte, error) {
	_, data, err := sc.conn.ReadMessage()
	return data, err
}

// Close closes the underlying connection
func (sc *SafeConn) Close() error {
	return sc.conn.Close()
}

// RemoteAddr returns the remote network address
func (sc *SafeConn) RemoteAddr() net.Addr {
	return sc.conn.RemoteAddr()
}
