// Package protocol defines the JSON wire protocol spoken over the
// WebSocket connection. Every frame is a single JSON object (an
// "envelope") carrying a `type` discriminator; requests, responses and
// server-initiated pushes all share this shape.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Request types (client → server).
const (
	TypeRegister          = "register"
	TypeLogin             = "login"
	TypeAuth              = "auth"
	TypeGetContacts       = "get_contacts"
	TypeGetFriendRequests = "get_friend_requests"
	TypeAddFriend         = "add_friend"
	TypeAcceptFriend      = "accept_friend"
	TypeDeclineFriend     = "decline_friend"
	TypeOpenConversation  = "open_conversation"
	TypeGetConversations  = "get_conversations"
	TypeGetMessages       = "get_messages"
	TypeChat              = "chat"
	TypeUpdateStatus      = "update_status"
	TypeWizz              = "wizz"
)

// Response and push types (server → client). Some request types answer
// under a different type name (get_contacts → contacts); the rest echo
// the request type back.
const (
	TypeSystem            = "system"
	TypeAck               = "ack"
	TypeError             = "error"
	TypeContacts          = "contacts"
	TypeFriendRequests    = "friend_requests"
	TypeConversations     = "conversations"
	TypeMessages          = "messages"
	TypeChatSent          = "chat_sent"
	TypeFriendRequestPush = "friend_request"
	TypeFriendAccepted    = "friend_accepted"
	TypeFriendDeclined    = "friend_declined"
	TypePresenceUpdate    = "presence_update"
)

// Status values carried in response envelopes.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrNotAnObject indicates the frame was valid JSON but not an object,
// so no `type` field can exist.
var ErrNotAnObject = errors.New("frame is not a JSON object")

// Envelope is a decoded inbound frame. The raw bytes are retained so a
// handler can bind the payload into its own typed request struct.
type Envelope struct {
	Type string
	raw  []byte
}

// Decode parses an inbound frame into an Envelope. It fails if the
// frame is not a well-formed JSON object; a missing or empty `type` is
// not an error here (the dispatcher answers it as an unknown action).
func Decode(data []byte) (*Envelope, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, ErrNotAnObject
		}
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	return &Envelope{Type: head.Type, raw: data}, nil
}

// Bind unmarshals the envelope's payload into a typed request struct.
func (e *Envelope) Bind(v any) error {
	if err := json.Unmarshal(e.raw, v); err != nil {
		return fmt.Errorf("bind %s payload: %w", e.Type, err)
	}
	return nil
}

// ResponseTypeFor maps a request type to the type name its responses
// (success and failure alike) are sent under. Unknown request types map
// to the generic error type.
func ResponseTypeFor(reqType string) string {
	switch reqType {
	case TypeGetContacts:
		return TypeContacts
	case TypeGetFriendRequests:
		return TypeFriendRequests
	case TypeGetConversations:
		return TypeConversations
	case TypeGetMessages:
		return TypeMessages
	case TypeRegister, TypeLogin, TypeAuth, TypeAddFriend, TypeAcceptFriend,
		TypeDeclineFriend, TypeOpenConversation, TypeChat, TypeUpdateStatus:
		return reqType
	default:
		return TypeError
	}
}
