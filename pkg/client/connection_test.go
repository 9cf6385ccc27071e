package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mensageiro/mensageiro/pkg/protocol"
	"github.com/stretchr/testify/require"
)

// stubServer speaks the server side of the protocol from a script: for
// each received frame it sends a canned sequence of reply frames.
type stubServer struct {
	t       *testing.T
	replies map[string][]any
	addr    string
}

func newStubServer(t *testing.T, replies map[string][]any) *stubServer {
	t.Helper()
	s := &stubServer{t: t, replies: replies}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var frame map[string]any
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			frameType, _ := frame["type"].(string)
			for _, reply := range s.replies[frameType] {
				if err := conn.WriteJSON(reply); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)

	s.addr = strings.TrimPrefix(srv.URL, "http://")
	return s
}

func connectTo(t *testing.T, addr string) *Connection {
	t.Helper()
	c := NewConnection(addr)
	c.SetAutoReconnect(false)
	require.NoError(t, c.Connect())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRequestResponse(t *testing.T) {
	stub := newStubServer(t, map[string][]any{
		"login": {map[string]any{
			"type": "login", "status": "ok", "session": "abc123",
			"user": map[string]any{"id": 7, "email": "ana@example.com", "name": "Ana"},
		}},
	})
	c := connectTo(t, stub.addr)

	resp, err := c.Login("ana@example.com", "segredo")
	require.NoError(t, err)
	require.Equal(t, "abc123", resp.Session)
	require.Equal(t, int64(7), resp.User.ID)
	require.Equal(t, "abc123", c.sessionToken.Load())
}

func TestServerErrorSurfaced(t *testing.T) {
	stub := newStubServer(t, map[string][]any{
		"login": {map[string]any{"type": "login", "status": "error", "message": "invalid credentials"}},
	})
	c := connectTo(t, stub.addr)

	_, err := c.Login("ana@example.com", "errada")
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, "invalid credentials", serverErr.Message)
	require.Equal(t, "login", serverErr.Op)
}

// Responses answered under a different type name route back to the
// request that asked for them.
func TestRenamedResponseType(t *testing.T) {
	stub := newStubServer(t, map[string][]any{
		"get_contacts": {map[string]any{
			"type": "contacts", "status": "ok",
			"contacts": []any{map[string]any{"id": 2, "display_name": "Bob", "presence": "online"}},
		}},
	})
	c := connectTo(t, stub.addr)

	contacts, err := c.Contacts()
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	require.Equal(t, "Bob", contacts[0].DisplayName)
}

// Frames arriving without a request in flight surface as events.
func TestUnsolicitedFramesBecomeEvents(t *testing.T) {
	stub := newStubServer(t, map[string][]any{
		"update_status": {
			map[string]any{"type": "presence_update", "user_id": 2, "status_message": "almoço"},
			map[string]any{"type": "update_status", "status": "ok", "status_message": "x"},
		},
	})
	c := connectTo(t, stub.addr)

	require.NoError(t, c.UpdateStatus("x"))

	select {
	case ev := <-c.Events():
		require.Equal(t, "presence_update", ev.Type)
		var push protocol.PresenceUpdatePush
		require.NoError(t, ev.Decode(&push))
		require.Equal(t, int64(2), push.UserID)
		require.Equal(t, "almoço", push.StatusMessage)
	case <-time.After(2 * time.Second):
		t.Fatal("presence event never arrived")
	}
}

// A posted message is answered by the sender's own fan-out copy and
// then the acknowledgement; the copy must surface as an event, the
// acknowledgement as the return value.
func TestChatEchoAndAck(t *testing.T) {
	stub := newStubServer(t, map[string][]any{
		"chat": {
			map[string]any{
				"type": "chat", "conversation_id": 5,
				"message": map[string]any{"id": 11, "conversation_id": 5, "sender_id": 7, "content": "oi"},
			},
			map[string]any{"type": "chat_sent", "status": "ok", "message_id": 11, "conversation_id": 5},
		},
	})
	c := connectTo(t, stub.addr)

	resp, err := c.Chat(5, "oi")
	require.NoError(t, err)
	require.Equal(t, int64(11), resp.MessageID)

	select {
	case ev := <-c.Events():
		require.Equal(t, "chat", ev.Type)
		var push protocol.ChatPush
		require.NoError(t, ev.Decode(&push))
		require.Equal(t, "oi", push.Message.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("chat echo never surfaced as event")
	}
}

func TestChatRejection(t *testing.T) {
	stub := newStubServer(t, map[string][]any{
		"chat": {map[string]any{"type": "chat", "status": "error", "message": "message too long"}},
	})
	c := connectTo(t, stub.addr)

	_, err := c.Chat(5, "oi")
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, "message too long", serverErr.Message)
}

func TestWizzIsFireAndForget(t *testing.T) {
	stub := newStubServer(t, nil)
	c := connectTo(t, stub.addr)

	require.NoError(t, c.Wizz(5))

	select {
	case ev, ok := <-c.Events():
		if ok {
			t.Fatalf("unexpected event after wizz: %v", ev.Type)
		}
	case <-time.After(300 * time.Millisecond):
	}
}
