package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mensageiro/mensageiro/pkg/database"
)

// ---------------------------------------------------------------------------
// WebSocket test client
//
// A persistent reader goroutine decodes every incoming frame into a
// generic map and feeds it into a channel. This sidesteps
// gorilla/websocket's limitation where a read deadline timeout corrupts
// the connection state, and lets tests wait for specific frame types
// while asynchronous pushes arrive interleaved.
// ---------------------------------------------------------------------------

type wsClient struct {
	conn      *websocket.Conn
	frames    chan map[string]any
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(t *testing.T, addr string) *wsClient {
	t.Helper()
	url := fmt.Sprintf("ws://%s/ws", addr)
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial %s: %v", url, err)
	}

	c := &wsClient{
		conn:   conn,
		frames: make(chan map[string]any, 64),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(c.done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.errors <- err
				return
			}
			var frame map[string]any
			if err := json.Unmarshal(data, &frame); err != nil {
				c.errors <- fmt.Errorf("undecodable frame %q: %w", data, err)
				return
			}
			c.frames <- frame
		}
	}()

	return c
}

func (c *wsClient) send(t *testing.T, payload map[string]any) {
	t.Helper()
	if err := c.conn.WriteJSON(payload); err != nil {
		t.Fatalf("WS send %v: %v", payload["type"], err)
	}
}

func (c *wsClient) sendRaw(t *testing.T, data string) {
	t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(data)); err != nil {
		t.Fatalf("WS raw send: %v", err)
	}
}

// ignoredPush returns true for frame types that may arrive
// asynchronously and should be skipped when waiting for a specific
// response.
func ignoredPush(frameType string) bool {
	switch frameType {
	case "system", "presence_update":
		return true
	}
	return false
}

// expect reads frames until one of the wanted type arrives, skipping
// asynchronous pushes. Any other frame type is a test failure.
func (c *wsClient) expect(t *testing.T, want string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case frame := <-c.frames:
			frameType, _ := frame["type"].(string)
			if frameType == want {
				return frame
			}
			if ignoredPush(frameType) {
				continue
			}
			t.Fatalf("expected %q, got %q (%v)", want, frameType, frame)
			return nil
		case err := <-c.errors:
			t.Fatalf("expect %q: read error: %v", want, err)
			return nil
		case <-deadline:
			t.Fatalf("expect %q: timeout after %v", want, timeout)
			return nil
		}
	}
}

// expectOK waits for the given frame type and asserts status ok.
func (c *wsClient) expectOK(t *testing.T, want string, timeout time.Duration) map[string]any {
	t.Helper()
	frame := c.expect(t, want, timeout)
	if status, _ := frame["status"].(string); status != "ok" {
		t.Fatalf("%s: status = %v, message = %v", want, frame["status"], frame["message"])
	}
	return frame
}

// expectError waits for the given frame type and asserts an error
// status with the exact message.
func (c *wsClient) expectError(t *testing.T, want, message string, timeout time.Duration) {
	t.Helper()
	frame := c.expect(t, want, timeout)
	if status, _ := frame["status"].(string); status != "error" {
		t.Fatalf("%s: expected error status, got %v", want, frame)
	}
	if got, _ := frame["message"].(string); got != message {
		t.Fatalf("%s: message = %q, want %q", want, got, message)
	}
}

// awaitPresence reads frames until a presence_update for the given
// user arrives, discarding everything else.
func (c *wsClient) awaitPresence(t *testing.T, userID int64, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case frame := <-c.frames:
			if frameType, _ := frame["type"].(string); frameType != "presence_update" {
				continue
			}
			if uid, ok := frame["user_id"].(float64); ok && int64(uid) == userID {
				return frame
			}
		case err := <-c.errors:
			t.Fatalf("awaitPresence(%d): read error: %v", userID, err)
			return nil
		case <-deadline:
			t.Fatalf("awaitPresence(%d): timeout after %v", userID, timeout)
			return nil
		}
	}
}

// tryRead attempts to read one frame within timeout. Returns nil if
// nothing arrived (no fatal on timeout).
func (c *wsClient) tryRead(t *testing.T, timeout time.Duration) map[string]any {
	t.Helper()
	select {
	case frame := <-c.frames:
		return frame
	case <-c.errors:
		return nil
	case <-time.After(timeout):
		return nil
	}
}

// drain reads and discards frames until the connection goes quiet.
func drain(t *testing.T, c *wsClient, window time.Duration) {
	t.Helper()
	for {
		if frame := c.tryRead(t, window); frame == nil {
			return
		}
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
		<-c.done
	})
}

// ---------------------------------------------------------------------------
// Server setup for journey tests
// ---------------------------------------------------------------------------

func setupJourneyServer(t *testing.T) *Server {
	t.Helper()

	config := DefaultConfig()
	config.Host = "127.0.0.1"
	config.Port = 0
	config.MetricsPort = 0

	srv, err := NewServer(t.TempDir()+"/journey.db", config)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return srv
}

// journeyUser is a connected, authenticated client plus its identity.
type journeyUser struct {
	c     *wsClient
	id    int64
	email string
	token string
}

// registerAndLogin creates an account over the wire and logs it in on
// a fresh connection.
func registerAndLogin(t *testing.T, srv *Server, name, email string) *journeyUser {
	t.Helper()
	timeout := 5 * time.Second

	c := newWSClient(t, srv.Addr())
	t.Cleanup(c.close)

	c.send(t, map[string]any{"type": "register", "name": name, "email": email, "password": "segredo123"})
	reg := c.expectOK(t, "register", timeout)
	user, _ := reg["user"].(map[string]any)
	if user == nil || user["id"].(float64) == 0 {
		t.Fatalf("register: missing user in %v", reg)
	}

	c.send(t, map[string]any{"type": "login", "email": email, "password": "segredo123"})
	login := c.expectOK(t, "login", timeout)
	token, _ := login["session"].(string)
	if token == "" {
		t.Fatalf("login: missing session token in %v", login)
	}

	return &journeyUser{
		c:     c,
		id:    int64(user["id"].(float64)),
		email: email,
		token: token,
	}
}

// befriend runs the invite/accept exchange between two connected users
// and consumes every frame it produces on both sides.
func befriend(t *testing.T, a, b *journeyUser) {
	t.Helper()
	timeout := 5 * time.Second

	a.c.send(t, map[string]any{"type": "add_friend", "email": b.email})
	a.c.expectOK(t, "friend_requests", timeout)
	add := a.c.expectOK(t, "add_friend", timeout)
	requestID := int64(add["request_id"].(float64))

	b.c.expect(t, "friend_request", timeout)
	b.c.expectOK(t, "friend_requests", timeout)

	b.c.send(t, map[string]any{"type": "accept_friend", "request_id": requestID})
	b.c.expectOK(t, "accept_friend", timeout)
	b.c.expectOK(t, "friend_requests", timeout)
	b.c.expectOK(t, "contacts", timeout)

	a.c.expect(t, "friend_accepted", timeout)
	a.c.expectOK(t, "contacts", timeout)
	a.c.expectOK(t, "friend_requests", timeout)
}

// openConversation opens the private conversation with the given user
// and returns its id.
func openConversation(t *testing.T, u *journeyUser, withUserID int64) int64 {
	t.Helper()
	u.c.send(t, map[string]any{"type": "open_conversation", "with_user_id": withUserID})
	resp := u.c.expectOK(t, "open_conversation", 5*time.Second)
	return int64(resp["conversation_id"].(float64))
}

// ---------------------------------------------------------------------------
// Main test entry point (one server for all journeys)
// ---------------------------------------------------------------------------

func TestJourney(t *testing.T) {
	srv := setupJourneyServer(t)

	t.Run("register_login_auth", func(t *testing.T) { runRegisterLoginAuth(t, srv) })
	t.Run("frame_handling", func(t *testing.T) { runFrameHandling(t, srv) })
	t.Run("friendship", func(t *testing.T) { runFriendship(t, srv) })
	t.Run("conversation_chat", func(t *testing.T) { runConversationChat(t, srv) })
	t.Run("presence_status", func(t *testing.T) { runPresenceStatus(t, srv) })
	t.Run("last_connection_wins", func(t *testing.T) { runLastConnectionWins(t, srv) })
}

func runRegisterLoginAuth(t *testing.T, srv *Server) {
	timeout := 5 * time.Second

	c := newWSClient(t, srv.Addr())
	defer c.close()

	// Register
	c.send(t, map[string]any{"type": "register", "name": "Ana", "email": "ana@example.com", "password": "segredo123"})
	reg := c.expectOK(t, "register", timeout)
	user := reg["user"].(map[string]any)
	userID := int64(user["id"].(float64))
	if userID == 0 {
		t.Fatal("register returned user id 0")
	}
	if user["email"].(string) != "ana@example.com" {
		t.Fatalf("register user email = %v", user["email"])
	}

	// Duplicate email
	c.send(t, map[string]any{"type": "register", "name": "Ana2", "email": "ana@example.com", "password": "outra"})
	c.expectError(t, "register", "email already registered", timeout)

	// Missing fields
	c.send(t, map[string]any{"type": "register", "name": "  ", "email": "x@example.com", "password": "p"})
	c.expect(t, "register", timeout) // error status, message wording not pinned here

	// Wrong password, then unknown email: identical error either way
	c.send(t, map[string]any{"type": "login", "email": "ana@example.com", "password": "errada"})
	c.expectError(t, "login", "invalid credentials", timeout)
	c.send(t, map[string]any{"type": "login", "email": "ninguem@example.com", "password": "segredo123"})
	c.expectError(t, "login", "invalid credentials", timeout)

	// Successful login
	c.send(t, map[string]any{"type": "login", "email": "ana@example.com", "password": "segredo123"})
	login := c.expectOK(t, "login", timeout)
	token := login["session"].(string)
	if token == "" {
		t.Fatal("login returned empty session token")
	}
	if int64(login["user"].(map[string]any)["id"].(float64)) != userID {
		t.Fatal("login user id mismatch")
	}

	// Token auth on a fresh connection, followed by the recovery
	// snapshot: friend requests then contacts.
	c2 := newWSClient(t, srv.Addr())
	defer c2.close()
	c2.send(t, map[string]any{"type": "auth", "session": token})
	auth := c2.expectOK(t, "auth", timeout)
	if int64(auth["user"].(map[string]any)["id"].(float64)) != userID {
		t.Fatal("auth user id mismatch")
	}
	c2.expectOK(t, "friend_requests", timeout)
	c2.expectOK(t, "contacts", timeout)

	// Garbage token
	c3 := newWSClient(t, srv.Addr())
	defer c3.close()
	c3.send(t, map[string]any{"type": "auth", "session": "deadbeef"})
	c3.expectError(t, "auth", "invalid session", timeout)

	// Authenticated-only operation without identity
	c3.send(t, map[string]any{"type": "get_contacts"})
	c3.expectError(t, "contacts", "not authenticated", timeout)
}

func runFrameHandling(t *testing.T, srv *Server) {
	timeout := 5 * time.Second

	c := newWSClient(t, srv.Addr())
	defer c.close()

	// Connecting yields a system welcome carrying the session id.
	welcome := c.tryRead(t, timeout)
	if welcome == nil || welcome["type"].(string) != "system" {
		t.Fatalf("expected system welcome, got %v", welcome)
	}
	if welcome["message"].(string) != "welcome" {
		t.Fatalf("welcome message = %v", welcome["message"])
	}

	// Plain text is acknowledged, not fatal.
	c.sendRaw(t, "hello there")
	ack := c.expect(t, "ack", timeout)
	if ack["message"].(string) != "raw text received" {
		t.Fatalf("ack message = %v", ack["message"])
	}

	// A JSON array is not an envelope either.
	c.sendRaw(t, `[1,2,3]`)
	c.expect(t, "ack", timeout)

	// A valid object with an unknown type is an unknown action.
	c.send(t, map[string]any{"type": "teleport"})
	errFrame := c.expect(t, "error", timeout)
	if errFrame["message"].(string) != "unknown action" {
		t.Fatalf("error message = %v", errFrame["message"])
	}

	// An object without a type falls through the same way.
	c.sendRaw(t, `{}`)
	c.expect(t, "error", timeout)

	// The connection survived all of it.
	c.send(t, map[string]any{"type": "login", "email": "", "password": ""})
	c.expect(t, "login", timeout)
}

func runFriendship(t *testing.T, srv *Server) {
	timeout := 5 * time.Second

	alice := registerAndLogin(t, srv, "Alice", "alice.fr@example.com")
	bob := registerAndLogin(t, srv, "Bob", "bob.fr@example.com")
	carol := registerAndLogin(t, srv, "Carol", "carol.fr@example.com")

	// Self and unknown targets
	alice.c.send(t, map[string]any{"type": "add_friend", "email": alice.email})
	alice.c.expectError(t, "add_friend", "cannot send an invite to yourself", timeout)
	alice.c.send(t, map[string]any{"type": "add_friend", "email": "ghost@example.com"})
	alice.c.expectError(t, "add_friend", "user not found", timeout)

	// Invite: sender's outgoing list refreshes, recipient gets the
	// push plus a refreshed incoming list, sender gets the ack last.
	alice.c.send(t, map[string]any{"type": "add_friend", "email": bob.email, "message": "oi, sou eu"})
	requests := alice.c.expectOK(t, "friend_requests", timeout)
	if outgoing := requests["outgoing"].([]any); len(outgoing) != 1 {
		t.Fatalf("outgoing after invite = %d, want 1", len(outgoing))
	}
	add := alice.c.expectOK(t, "add_friend", timeout)
	requestID := int64(add["request_id"].(float64))
	if int64(add["to_user_id"].(float64)) != bob.id {
		t.Fatal("add_friend to_user_id mismatch")
	}

	push := bob.c.expect(t, "friend_request", timeout)
	if int64(push["from"].(float64)) != alice.id {
		t.Fatal("friend_request push from mismatch")
	}
	if push["message"].(string) != "oi, sou eu" {
		t.Fatalf("friend_request push message = %v", push["message"])
	}
	bobRequests := bob.c.expectOK(t, "friend_requests", timeout)
	if incoming := bobRequests["incoming"].([]any); len(incoming) != 1 {
		t.Fatalf("incoming after invite = %d, want 1", len(incoming))
	}

	// A second identical invite is rejected while the first pends.
	alice.c.send(t, map[string]any{"type": "add_friend", "email": bob.email})
	alice.c.expectError(t, "add_friend", "invite already sent", timeout)

	// Only the addressee may accept.
	carol.c.send(t, map[string]any{"type": "accept_friend", "request_id": requestID})
	carol.c.expectError(t, "accept_friend", "not authorized", timeout)
	bob.c.send(t, map[string]any{"type": "accept_friend", "request_id": 999999})
	bob.c.expectError(t, "accept_friend", "request not found", timeout)

	// Accept: both sides end up with each other as contacts.
	bob.c.send(t, map[string]any{"type": "accept_friend", "request_id": requestID})
	accept := bob.c.expectOK(t, "accept_friend", timeout)
	if int64(accept["with"].(float64)) != alice.id {
		t.Fatal("accept_friend with mismatch")
	}
	bob.c.expectOK(t, "friend_requests", timeout)
	bobContacts := bob.c.expectOK(t, "contacts", timeout)
	if contacts := bobContacts["contacts"].([]any); len(contacts) != 1 {
		t.Fatalf("bob contacts = %d, want 1", len(contacts))
	}

	accepted := alice.c.expect(t, "friend_accepted", timeout)
	if int64(accepted["by"].(float64)) != bob.id {
		t.Fatal("friend_accepted by mismatch")
	}
	aliceContacts := alice.c.expectOK(t, "contacts", timeout)
	contact := aliceContacts["contacts"].([]any)[0].(map[string]any)
	if int64(contact["id"].(float64)) != bob.id || contact["presence"].(string) != database.PresenceOnline {
		t.Fatalf("alice contact = %v", contact)
	}
	alice.c.expectOK(t, "friend_requests", timeout)

	// Decline: Carol invites Alice, Alice turns it down.
	carol.c.send(t, map[string]any{"type": "add_friend", "email": alice.email})
	carol.c.expectOK(t, "friend_requests", timeout)
	carolAdd := carol.c.expectOK(t, "add_friend", timeout)
	carolReqID := int64(carolAdd["request_id"].(float64))
	alice.c.expect(t, "friend_request", timeout)
	alice.c.expectOK(t, "friend_requests", timeout)

	alice.c.send(t, map[string]any{"type": "decline_friend", "request_id": carolReqID})
	alice.c.expectOK(t, "decline_friend", timeout)
	alice.c.expectOK(t, "friend_requests", timeout)
	declined := carol.c.expect(t, "friend_declined", timeout)
	if int64(declined["by"].(float64)) != alice.id {
		t.Fatal("friend_declined by mismatch")
	}
	carol.c.expectOK(t, "friend_requests", timeout)

	// Cancel: the sender declines their own pending invite.
	alice.c.send(t, map[string]any{"type": "add_friend", "email": carol.email})
	alice.c.expectOK(t, "friend_requests", timeout)
	cancelAdd := alice.c.expectOK(t, "add_friend", timeout)
	cancelReqID := int64(cancelAdd["request_id"].(float64))
	carol.c.expect(t, "friend_request", timeout)
	carol.c.expectOK(t, "friend_requests", timeout)

	alice.c.send(t, map[string]any{"type": "decline_friend", "request_id": cancelReqID})
	alice.c.expectOK(t, "decline_friend", timeout)
	alice.c.expectOK(t, "friend_requests", timeout)
	carol.c.expect(t, "friend_declined", timeout)
	carol.c.expectOK(t, "friend_requests", timeout)

	// Accepted and declined are terminal. Declining the accepted
	// Alice-Bob request must not flip it, and accepting the request
	// Alice declined must not create a friendship.
	alice.c.send(t, map[string]any{"type": "decline_friend", "request_id": requestID})
	alice.c.expectError(t, "decline_friend", "request not found", timeout)
	req, err := srv.db.GetFriendRequest(requestID)
	if err != nil || req.Status != database.RequestAccepted {
		t.Fatalf("accepted request after decline replay: %+v, %v", req, err)
	}

	alice.c.send(t, map[string]any{"type": "accept_friend", "request_id": carolReqID})
	alice.c.expectError(t, "accept_friend", "request not found", timeout)
	req, err = srv.db.GetFriendRequest(carolReqID)
	if err != nil || req.Status != database.RequestDeclined {
		t.Fatalf("declined request after accept replay: %+v, %v", req, err)
	}
	alice.c.send(t, map[string]any{"type": "get_contacts"})
	contactsNow := alice.c.expectOK(t, "contacts", timeout)
	if contacts := contactsNow["contacts"].([]any); len(contacts) != 1 {
		t.Fatalf("alice contacts after replays = %d, want 1", len(contacts))
	}

	// Re-accepting an already accepted request stays allowed.
	bob.c.send(t, map[string]any{"type": "accept_friend", "request_id": requestID})
	bob.c.expectOK(t, "accept_friend", timeout)
	bob.c.expectOK(t, "friend_requests", timeout)
	bob.c.expectOK(t, "contacts", timeout)
	alice.c.expect(t, "friend_accepted", timeout)
	alice.c.expectOK(t, "contacts", timeout)
	alice.c.expectOK(t, "friend_requests", timeout)
}

func runConversationChat(t *testing.T, srv *Server) {
	timeout := 5 * time.Second

	alice := registerAndLogin(t, srv, "Alice", "alice.ch@example.com")
	bob := registerAndLogin(t, srv, "Bob", "bob.ch@example.com")
	carol := registerAndLogin(t, srv, "Carol", "carol.ch@example.com")
	befriend(t, alice, bob)

	// Opening from either side converges on one conversation.
	convID := openConversation(t, alice, bob.id)
	if got := openConversation(t, bob, alice.id); got != convID {
		t.Fatalf("conversation dedup: alice=%d bob=%d", convID, got)
	}

	alice.c.send(t, map[string]any{"type": "open_conversation", "with_user_id": alice.id})
	alice.c.expectError(t, "open_conversation", "cannot open a conversation with yourself", timeout)
	alice.c.send(t, map[string]any{"type": "open_conversation", "with_user_id": 999999})
	alice.c.expectError(t, "open_conversation", "user not found", timeout)

	// Chat: everyone live in the conversation gets the push — the
	// sender's own connection included — and the sender gets the ack.
	alice.c.send(t, map[string]any{"type": "chat", "conversation_id": convID, "text": "oi Bob"})
	echo := alice.c.expect(t, "chat", timeout)
	echoMsg := echo["message"].(map[string]any)
	if echoMsg["content"].(string) != "oi Bob" {
		t.Fatalf("chat echo content = %v", echoMsg["content"])
	}
	sent := alice.c.expectOK(t, "chat_sent", timeout)
	firstMsgID := int64(sent["message_id"].(float64))

	bobPush := bob.c.expect(t, "chat", timeout)
	bobMsg := bobPush["message"].(map[string]any)
	if int64(bobPush["conversation_id"].(float64)) != convID {
		t.Fatal("chat push conversation_id mismatch")
	}
	if int64(bobMsg["sender_id"].(float64)) != alice.id || bobMsg["content"].(string) != "oi Bob" {
		t.Fatalf("chat push message = %v", bobMsg)
	}

	bob.c.send(t, map[string]any{"type": "chat", "conversation_id": convID, "text": "oi Alice"})
	bob.c.expect(t, "chat", timeout)
	bob.c.expectOK(t, "chat_sent", timeout)
	alice.c.expect(t, "chat", timeout)

	// History comes back oldest-first with increasing ids.
	alice.c.send(t, map[string]any{"type": "get_messages", "conversation_id": convID})
	history := alice.c.expectOK(t, "messages", timeout)
	messages := history["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("history length = %d, want 2", len(messages))
	}
	first := messages[0].(map[string]any)
	second := messages[1].(map[string]any)
	if int64(first["id"].(float64)) != firstMsgID || first["content"].(string) != "oi Bob" {
		t.Fatalf("history[0] = %v", first)
	}
	if second["content"].(string) != "oi Alice" {
		t.Fatalf("history[1] = %v", second)
	}

	// Conversation list carries the latest message.
	alice.c.send(t, map[string]any{"type": "get_conversations"})
	convList := alice.c.expectOK(t, "conversations", timeout)
	conversations := convList["conversations"].([]any)
	if len(conversations) != 1 {
		t.Fatalf("conversations = %d, want 1", len(conversations))
	}
	summary := conversations[0].(map[string]any)
	if int64(summary["id"].(float64)) != convID || summary["last_message"].(string) != "oi Alice" {
		t.Fatalf("conversation summary = %v", summary)
	}

	// Validation and authorization
	alice.c.send(t, map[string]any{"type": "chat", "conversation_id": convID, "text": "   "})
	alice.c.expectError(t, "chat", "invalid parameters", timeout)
	alice.c.send(t, map[string]any{"type": "chat", "conversation_id": convID, "text": strings.Repeat("a", 5000)})
	alice.c.expectError(t, "chat", "message too long", timeout)
	carol.c.send(t, map[string]any{"type": "chat", "conversation_id": convID, "text": "posso entrar?"})
	carol.c.expectError(t, "chat", "not a participant of this conversation", timeout)
	carol.c.send(t, map[string]any{"type": "get_messages", "conversation_id": convID})
	carol.c.expectError(t, "messages", "not a participant of this conversation", timeout)

	// Wizz reaches the other live participants, never the sender, and
	// is dropped without a trace for outsiders.
	alice.c.send(t, map[string]any{"type": "wizz", "conversation_id": convID})
	wizz := bob.c.expect(t, "wizz", timeout)
	if int64(wizz["from"].(float64)) != alice.id || int64(wizz["conversation_id"].(float64)) != convID {
		t.Fatalf("wizz push = %v", wizz)
	}
	if frame := alice.c.tryRead(t, 300*time.Millisecond); frame != nil {
		t.Fatalf("sender received unexpected frame after wizz: %v", frame)
	}
	carol.c.send(t, map[string]any{"type": "wizz", "conversation_id": convID})
	if frame := bob.c.tryRead(t, 300*time.Millisecond); frame != nil {
		t.Fatalf("outsider wizz leaked: %v", frame)
	}
}

func runPresenceStatus(t *testing.T, srv *Server) {
	timeout := 5 * time.Second

	alice := registerAndLogin(t, srv, "Alice", "alice.pr@example.com")
	bob := registerAndLogin(t, srv, "Bob", "bob.pr@example.com")
	befriend(t, alice, bob)

	// Status change: own connection gets the ack and a refreshed
	// contact list, live contacts get the presence push.
	alice.c.send(t, map[string]any{"type": "update_status", "status": "num instante"})
	resp := alice.c.expectOK(t, "update_status", timeout)
	if resp["status_message"].(string) != "num instante" {
		t.Fatalf("update_status status_message = %v", resp["status_message"])
	}
	alice.c.expectOK(t, "contacts", timeout)

	push := bob.c.awaitPresence(t, alice.id, timeout)
	if push["status_message"].(string) != "num instante" {
		t.Fatalf("presence push status = %v", push["status_message"])
	}
	if _, hasPresence := push["presence"]; hasPresence {
		t.Fatalf("status-only push must not carry presence: %v", push)
	}

	// Disconnect flips the contact offline, durably.
	alice.c.close()
	offline := bob.c.awaitPresence(t, alice.id, timeout)
	if offline["presence"].(string) != database.PresenceOffline {
		t.Fatalf("presence after close = %v", offline["presence"])
	}
	stored, err := srv.db.GetUserByID(alice.id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if stored.Presence != database.PresenceOffline {
		t.Fatalf("stored presence = %q, want offline", stored.Presence)
	}

	// Token auth on a fresh connection brings the contact back online.
	c2 := newWSClient(t, srv.Addr())
	defer c2.close()
	c2.send(t, map[string]any{"type": "auth", "session": alice.token})
	c2.expectOK(t, "auth", timeout)
	online := bob.c.awaitPresence(t, alice.id, timeout)
	if online["presence"].(string) != database.PresenceOnline {
		t.Fatalf("presence after auth = %v", online["presence"])
	}
}

func runLastConnectionWins(t *testing.T, srv *Server) {
	timeout := 5 * time.Second

	alice := registerAndLogin(t, srv, "Alice", "alice.lw@example.com")
	bob := registerAndLogin(t, srv, "Bob", "bob.lw@example.com")
	befriend(t, alice, bob)

	// Alice authenticates a second connection; it takes over fan-out.
	c2 := newWSClient(t, srv.Addr())
	defer c2.close()
	c2.send(t, map[string]any{"type": "auth", "session": alice.token})
	c2.expectOK(t, "auth", timeout)
	c2.expectOK(t, "friend_requests", timeout)
	c2.expectOK(t, "contacts", timeout)

	// Closing the superseded first connection must not take Alice
	// offline.
	alice.c.close()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		frame := bob.c.tryRead(t, 100*time.Millisecond)
		if frame == nil {
			continue
		}
		if frame["type"].(string) == "presence_update" {
			if uid, ok := frame["user_id"].(float64); ok && int64(uid) == alice.id {
				if presence, _ := frame["presence"].(string); presence == database.PresenceOffline {
					t.Fatal("stale close knocked the user offline")
				}
			}
		}
	}
	stored, err := srv.db.GetUserByID(alice.id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if stored.Presence != database.PresenceOnline {
		t.Fatalf("stored presence after stale close = %q, want online", stored.Presence)
	}

	// Pushes now land on the replacement connection.
	bob.c.send(t, map[string]any{"type": "update_status", "status": "almoço"})
	bob.c.expectOK(t, "update_status", timeout)
	bob.c.expectOK(t, "contacts", timeout)
	push := c2.awaitPresence(t, bob.id, timeout)
	if push["status_message"].(string) != "almoço" {
		t.Fatalf("replacement connection push = %v", push)
	}

	// Closing the live connection does take Alice offline.
	c2.close()
	offline := bob.c.awaitPresence(t, alice.id, timeout)
	if offline["presence"].(string) != database.PresenceOffline {
		t.Fatalf("presence after real close = %v", offline["presence"])
	}
}
