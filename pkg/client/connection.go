// Package client implements a Go client for the mensageiro server.
// It drives one WebSocket connection, multiplexing request/response
// exchanges and server pushes, with optional auto-reconnect.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mensageiro/mensageiro/pkg/protocol"
)

// ConnectionStateType represents the connection status
type ConnectionStateType int

const (
	StateTypeConnected ConnectionStateType = iota
	StateTypeDisconnected
	StateTypeReconnecting
)

// ConnectionStateUpdate represents a connection state change
type ConnectionStateUpdate struct {
	State   ConnectionStateType
	Attempt int
	Err     error
}

// Event is a server-initiated frame: a push, or a refresh the server
// sent without a matching request in flight.
type Event struct {
	Type string
	Raw  json.RawMessage
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Raw, v)
}

// ErrRequestTimeout is returned when the server did not answer a
// request within the configured window.
var ErrRequestTimeout = errors.New("request timed out")

// ServerError is a status:error reply to a request.
type ServerError struct {
	Op      string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Connection is a client connection to the mensageiro server.
//
// The wire protocol carries no correlation ids: a request's answer is
// the next frame of the request's response type. The connection keeps
// one waiter slot per response type; anything arriving without a
// waiter is delivered as an Event.
type Connection struct {
	addr string

	mu        sync.Mutex // Protects conn, connected, waiters, closed
	conn      *websocket.Conn
	connected bool
	closed    bool
	waiters   map[string]chan json.RawMessage

	events      chan Event
	stateChange chan ConnectionStateUpdate

	// Auto-reconnect settings
	autoReconnect     bool
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	requestTimeout    time.Duration

	// Session token from the last successful login; reused to
	// re-authenticate after a reconnect.
	sessionToken atomic.Value // string

	framesSent     atomic.Uint64
	framesReceived atomic.Uint64

	logger *log.Logger

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewConnection creates a client for the given host:port or ws:// URL.
// Call Connect to establish the connection.
func NewConnection(addr string) *Connection {
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	if !strings.HasSuffix(addr, "/ws") {
		addr = strings.TrimSuffix(addr, "/") + "/ws"
	}
	return &Connection{
		addr:              addr,
		waiters:           make(map[string]chan json.RawMessage),
		events:            make(chan Event, 100),
		stateChange:       make(chan ConnectionStateUpdate, 10),
		autoReconnect:     true,
		reconnectDelay:    1 * time.Second,
		maxReconnectDelay: 30 * time.Second,
		requestTimeout:    10 * time.Second,
		shutdown:          make(chan struct{}),
	}
}

// SetLogger sets a logger for debugging connection events
func (c *Connection) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// SetAutoReconnect toggles reconnection with backoff after a dropped
// connection.
func (c *Connection) SetAutoReconnect(enabled bool) {
	c.autoReconnect = enabled
}

// Events returns the channel of server pushes.
func (c *Connection) Events() <-chan Event {
	return c.events
}

// StateChanges returns the channel of connection state updates.
func (c *Connection) StateChanges() <-chan ConnectionStateUpdate {
	return c.stateChange
}

// FramesSent returns the number of frames written since Connect.
func (c *Connection) FramesSent() uint64 {
	return c.framesSent.Load()
}

// FramesReceived returns the number of frames read since Connect.
func (c *Connection) FramesReceived() uint64 {
	return c.framesReceived.Load()
}

// Connect dials the server and starts the read loop.
func (c *Connection) Connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(c.addr, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.notifyState(ConnectionStateUpdate{State: StateTypeConnected})
	c.logf("Connected to %s", c.addr)

	c.wg.Add(1)
	go c.readLoop(conn)
	return nil
}

// Close tears the connection down and stops reconnecting.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.shutdown)
	conn := c.conn
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	close(c.events)
	return nil
}

// IsConnected reports whether the connection is currently up.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Connection) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

func (c *Connection) notifyState(update ConnectionStateUpdate) {
	select {
	case c.stateChange <- update:
	default:
	}
}

// readLoop reads frames until the connection drops, routing each to
// its waiter or the event channel.
func (c *Connection) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(err)
			return
		}
		c.framesReceived.Add(1)

		env, err := protocol.Decode(data)
		if err != nil || env.Type == "" {
			c.logf("Dropping unroutable frame: %q", data)
			continue
		}

		c.mu.Lock()
		waiter := c.waiters[env.Type]
		if waiter != nil {
			delete(c.waiters, env.Type)
		}
		c.mu.Unlock()

		if waiter != nil {
			waiter <- json.RawMessage(data)
			continue
		}

		select {
		case c.events <- Event{Type: env.Type, Raw: json.RawMessage(data)}:
		case <-c.shutdown:
			return
		}
	}
}

// handleDisconnect fails pending waiters and, if enabled, starts the
// reconnect loop.
func (c *Connection) handleDisconnect(err error) {
	c.mu.Lock()
	c.connected = false
	for respType, waiter := range c.waiters {
		close(waiter)
		delete(c.waiters, respType)
	}
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	c.logf("Connection lost: %v", err)
	c.notifyState(ConnectionStateUpdate{State: StateTypeDisconnected, Err: err})

	if c.autoReconnect {
		c.wg.Add(1)
		go c.reconnectLoop()
	}
}

// reconnectLoop redials with exponential backoff and re-authenticates
// with the stored session token.
func (c *Connection) reconnectLoop() {
	defer c.wg.Done()

	delay := c.reconnectDelay
	for attempt := 1; ; attempt++ {
		select {
		case <-c.shutdown:
			return
		case <-time.After(delay):
		}

		c.notifyState(ConnectionStateUpdate{State: StateTypeReconnecting, Attempt: attempt})
		c.logf("Reconnect attempt %d", attempt)

		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.Dial(c.addr, nil)
		if err != nil {
			delay *= 2
			if delay > c.maxReconnectDelay {
				delay = c.maxReconnectDelay
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.connected = true
		c.mu.Unlock()

		c.notifyState(ConnectionStateUpdate{State: StateTypeConnected, Attempt: attempt})
		c.logf("Reconnected after %d attempts", attempt)

		c.wg.Add(1)
		go c.readLoop(conn)

		if token, ok := c.sessionToken.Load().(string); ok && token != "" {
			if _, err := c.Auth(token); err != nil {
				c.logf("Re-authentication failed: %v", err)
			}
		}
		return
	}
}

// send writes one envelope to the connection.
func (c *Connection) send(payload any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return errors.New("not connected")
	}
	if err := conn.WriteJSON(payload); err != nil {
		return err
	}
	c.framesSent.Add(1)
	return nil
}

// request sends an envelope and waits for the frame answering it. The
// reply's error status is surfaced as a *ServerError.
func (c *Connection) request(reqType string, payload any, out any) error {
	respType := protocol.ResponseTypeFor(reqType)
	waiter := make(chan json.RawMessage, 1)

	c.mu.Lock()
	if _, busy := c.waiters[respType]; busy {
		c.mu.Unlock()
		return fmt.Errorf("%s: request already in flight", reqType)
	}
	c.waiters[respType] = waiter
	c.mu.Unlock()

	if err := c.send(payload); err != nil {
		c.mu.Lock()
		delete(c.waiters, respType)
		c.mu.Unlock()
		return err
	}

	select {
	case raw, ok := <-waiter:
		if !ok {
			return errors.New("connection lost")
		}
		var status protocol.ErrorReply
		if err := json.Unmarshal(raw, &status); err != nil {
			return fmt.Errorf("%s: malformed reply: %w", reqType, err)
		}
		if status.Status == protocol.StatusError {
			return &ServerError{Op: reqType, Message: status.Message}
		}
		if out != nil {
			return json.Unmarshal(raw, out)
		}
		return nil
	case <-time.After(c.requestTimeout):
		c.mu.Lock()
		delete(c.waiters, respType)
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", reqType, ErrRequestTimeout)
	case <-c.shutdown:
		return errors.New("connection closed")
	}
}

// requestChat is the chat-specific exchange. A posted message is
// answered under two types: the sender's own copy of the fan-out push
// (type chat, no status) followed by the chat_sent acknowledgement —
// while a rejection arrives as a single chat frame with an error
// status. The push is forwarded to the event channel; the caller gets
// the acknowledgement or the error.
func (c *Connection) requestChat(payload any) (*protocol.ChatSentResponse, error) {
	ackWaiter := make(chan json.RawMessage, 1)
	echoWaiter := make(chan json.RawMessage, 1)

	c.mu.Lock()
	if _, busy := c.waiters[protocol.TypeChatSent]; busy {
		c.mu.Unlock()
		return nil, errors.New("chat: request already in flight")
	}
	if _, busy := c.waiters[protocol.TypeChat]; busy {
		c.mu.Unlock()
		return nil, errors.New("chat: request already in flight")
	}
	c.waiters[protocol.TypeChatSent] = ackWaiter
	c.waiters[protocol.TypeChat] = echoWaiter
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		delete(c.waiters, protocol.TypeChatSent)
		delete(c.waiters, protocol.TypeChat)
		c.mu.Unlock()
	}

	if err := c.send(payload); err != nil {
		cancel()
		return nil, err
	}

	deadline := time.After(c.requestTimeout)
	for {
		select {
		case raw, ok := <-echoWaiter:
			if !ok {
				cancel()
				return nil, errors.New("connection lost")
			}
			var status protocol.ErrorReply
			if err := json.Unmarshal(raw, &status); err != nil {
				cancel()
				return nil, fmt.Errorf("chat: malformed reply: %w", err)
			}
			if status.Status == protocol.StatusError {
				cancel()
				return nil, &ServerError{Op: protocol.TypeChat, Message: status.Message}
			}
			// The sender's own fan-out copy. Surface it like any
			// other push and keep waiting for the acknowledgement.
			select {
			case c.events <- Event{Type: protocol.TypeChat, Raw: raw}:
			default:
			}
		case raw, ok := <-ackWaiter:
			if !ok {
				cancel()
				return nil, errors.New("connection lost")
			}
			cancel()
			var resp protocol.ChatSentResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				return nil, fmt.Errorf("chat: malformed acknowledgement: %w", err)
			}
			return &resp, nil
		case <-deadline:
			cancel()
			return nil, fmt.Errorf("chat: %w", ErrRequestTimeout)
		case <-c.shutdown:
			cancel()
			return nil, errors.New("connection closed")
		}
	}
}
