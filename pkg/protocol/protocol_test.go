package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValidEnvelope(t *testing.T) {
	env, err := Decode([]byte(`{"type":"login","email":"a@x","password":"pw"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeLogin, env.Type)

	var req LoginRequest
	require.NoError(t, env.Bind(&req))
	assert.Equal(t, "a@x", req.Email)
	assert.Equal(t, "pw", req.Password)
}

func TestDecodeMissingType(t *testing.T) {
	// A JSON object without a type field decodes fine; the dispatcher
	// answers it as an unknown action.
	env, err := Decode([]byte(`{"email":"a@x"}`))
	require.NoError(t, err)
	assert.Empty(t, env.Type)
}

func TestDecodeRawText(t *testing.T) {
	_, err := Decode([]byte(`hello there`))
	assert.Error(t, err)
}

func TestDecodeNonObject(t *testing.T) {
	for _, frame := range []string{`"just a string"`, `42`, `[1,2,3]`, `true`} {
		_, err := Decode([]byte(frame))
		assert.Error(t, err, "frame %s should not decode", frame)
	}
}

func TestBindIgnoresUnknownFields(t *testing.T) {
	env, err := Decode([]byte(`{"type":"chat","conversation_id":7,"text":"hi","extra":"x"}`))
	require.NoError(t, err)

	var req ChatRequest
	require.NoError(t, env.Bind(&req))
	assert.Equal(t, int64(7), req.ConversationID)
	assert.Equal(t, "hi", req.Text)
}

func TestResponseTypeFor(t *testing.T) {
	cases := map[string]string{
		TypeRegister:          TypeRegister,
		TypeLogin:             TypeLogin,
		TypeAuth:              TypeAuth,
		TypeGetContacts:       TypeContacts,
		TypeGetFriendRequests: TypeFriendRequests,
		TypeAddFriend:         TypeAddFriend,
		TypeAcceptFriend:      TypeAcceptFriend,
		TypeDeclineFriend:     TypeDeclineFriend,
		TypeOpenConversation:  TypeOpenConversation,
		TypeGetConversations:  TypeConversations,
		TypeGetMessages:       TypeMessages,
		TypeChat:              TypeChat,
		TypeUpdateStatus:      TypeUpdateStatus,
		"bogus":               TypeError,
		"":                    TypeError,
	}
	for req, want := range cases {
		assert.Equal(t, want, ResponseTypeFor(req), "request type %q", req)
	}
}

func TestPushShapes(t *testing.T) {
	// Field names on pushes are load-bearing: clients switch on them.
	push := ChatPush{
		Type:           TypeChat,
		ConversationID: 3,
		Message: Message{
			ID: 9, ConversationID: 3, SenderID: 1,
			SenderName: "Alice", Content: "hi", CreatedAt: 1700000000000,
		},
	}
	data, err := json.Marshal(push)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "chat", decoded["type"])
	assert.EqualValues(t, 3, decoded["conversation_id"])
	msg, ok := decoded["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hi", msg["content"])
	assert.EqualValues(t, 1, msg["sender_id"])
}
