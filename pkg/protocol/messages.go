package protocol

// Request payloads (client → server). Each request type in the closed
// set has its own struct; unknown fields in the frame are ignored.

// RegisterRequest creates a new account. Does not authenticate the
// connection.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest authenticates with email + password and issues a
// session token.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthRequest re-authenticates a connection with a previously issued
// session token.
type AuthRequest struct {
	Session string `json:"session"`
}

// AddFriendRequest sends a friend invite to the user owning the email.
type AddFriendRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// AcceptFriendRequest accepts a pending invite addressed to the caller.
type AcceptFriendRequest struct {
	RequestID int64 `json:"request_id"`
}

// DeclineFriendRequest declines a pending invite addressed to the
// caller, or cancels the caller's own outgoing invite.
type DeclineFriendRequest struct {
	RequestID int64 `json:"request_id"`
}

// OpenConversationRequest returns the private conversation with the
// given user, creating it on first use.
type OpenConversationRequest struct {
	WithUserID int64 `json:"with_user_id"`
}

// GetMessagesRequest fetches recent history for a conversation.
type GetMessagesRequest struct {
	ConversationID int64 `json:"conversation_id"`
}

// ChatRequest posts a message to a conversation.
type ChatRequest struct {
	ConversationID int64  `json:"conversation_id"`
	Text           string `json:"text"`
}

// UpdateStatusRequest sets the caller's status message.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// WizzRequest relays an attention signal to the conversation's live
// peers. Never persisted, never acknowledged.
type WizzRequest struct {
	ConversationID int64 `json:"conversation_id"`
}

// Shared wire objects.

// User is the public identity shape embedded in auth responses.
type User struct {
	ID            int64   `json:"id"`
	Email         string  `json:"email"`
	Name          string  `json:"name"`
	StatusMessage *string `json:"status_message,omitempty"`
}

// Contact is one entry of a contact list.
type Contact struct {
	ID            int64   `json:"id"`
	DisplayName   string  `json:"display_name"`
	Email         string  `json:"email"`
	Presence      string  `json:"presence"`
	GroupName     string  `json:"group_name"`
	StatusMessage *string `json:"status_message,omitempty"`
}

// IncomingFriendRequest is a pending invite addressed to the list's
// owner.
type IncomingFriendRequest struct {
	ID         int64  `json:"id"`
	FromUserID int64  `json:"from_user_id"`
	FromName   string `json:"from_name"`
	FromEmail  string `json:"from_email"`
	Message    string `json:"message"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"created_at"`
}

// OutgoingFriendRequest is a pending invite the list's owner sent.
type OutgoingFriendRequest struct {
	ID        int64  `json:"id"`
	ToUserID  int64  `json:"to_user_id"`
	ToName    string `json:"to_name"`
	ToEmail   string `json:"to_email"`
	Message   string `json:"message"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// Message is the full message object, as persisted and as fanned out.
type Message struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	SenderID       int64  `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
}

// ConversationSummary is a conversation joined with its latest message.
type ConversationSummary struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	Title       *string `json:"title"`
	LastMessage *string `json:"last_message"`
	LastAt      *int64  `json:"last_at"`
}

// Responses (server → client, answering a request).

// ErrorReply is the uniform failure shape for any request, and the
// "unknown action" reply. Type carries the response type of the
// request that failed.
type ErrorReply struct {
	Type    string `json:"type"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
}

// AckReply acknowledges a frame that could not be decoded as an
// envelope. Nothing else is done with such frames.
type AckReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SystemMessage is sent once on connection open.
type SystemMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	ID      uint64 `json:"id"`
}

// RegisterResponse answers a register request.
type RegisterResponse struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	User   *User  `json:"user,omitempty"`
}

// LoginResponse answers a login request; Session is the opaque token
// for later silent reconnection.
type LoginResponse struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	User    *User  `json:"user,omitempty"`
	Session string `json:"session,omitempty"`
}

// AuthResponse answers a token auth request.
type AuthResponse struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	User   *User  `json:"user,omitempty"`
}

// ContactsResponse carries the caller's contact list. Also pushed
// unsolicited after auth and after contact-changing operations.
type ContactsResponse struct {
	Type     string    `json:"type"`
	Status   string    `json:"status"`
	Contacts []Contact `json:"contacts"`
}

// FriendRequestsResponse carries the caller's pending invites, both
// directions. Also pushed unsolicited when either list changes.
type FriendRequestsResponse struct {
	Type     string                  `json:"type"`
	Status   string                  `json:"status"`
	Incoming []IncomingFriendRequest `json:"incoming"`
	Outgoing []OutgoingFriendRequest `json:"outgoing"`
}

// AddFriendResponse answers add_friend.
type AddFriendResponse struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	RequestID int64  `json:"request_id"`
	ToUserID  int64  `json:"to_user_id"`
	ToEmail   string `json:"to_email"`
}

// AcceptFriendResponse answers accept_friend; With is the new
// contact's user id.
type AcceptFriendResponse struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	With   int64  `json:"with"`
}

// DeclineFriendResponse answers decline_friend.
type DeclineFriendResponse struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	RequestID int64  `json:"request_id"`
}

// OpenConversationResponse answers open_conversation.
type OpenConversationResponse struct {
	Type           string `json:"type"`
	Status         string `json:"status"`
	ConversationID int64  `json:"conversation_id"`
}

// ConversationsResponse answers get_conversations, newest-first.
type ConversationsResponse struct {
	Type          string                `json:"type"`
	Status        string                `json:"status"`
	Conversations []ConversationSummary `json:"conversations"`
}

// MessagesResponse answers get_messages, oldest-first.
type MessagesResponse struct {
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	ConversationID int64     `json:"conversation_id"`
	Messages       []Message `json:"messages"`
}

// ChatSentResponse acknowledges a chat request to its sender. The
// message itself arrives separately through the chat push fan-out.
type ChatSentResponse struct {
	Type           string `json:"type"`
	Status         string `json:"status"`
	MessageID      int64  `json:"message_id"`
	ConversationID int64  `json:"conversation_id"`
}

// UpdateStatusResponse answers update_status.
type UpdateStatusResponse struct {
	Type          string `json:"type"`
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
}

// Server-initiated pushes (no matching request).

// FriendRequestPush notifies a connected user of a new incoming invite.
type FriendRequestPush struct {
	Type      string `json:"type"`
	RequestID int64  `json:"request_id"`
	From      int64  `json:"from"`
	FromEmail string `json:"from_email"`
	Message   string `json:"message"`
}

// FriendAcceptedPush notifies the requester that By accepted.
type FriendAcceptedPush struct {
	Type string `json:"type"`
	By   int64  `json:"by"`
}

// FriendDeclinedPush notifies the requester that By declined.
type FriendDeclinedPush struct {
	Type string `json:"type"`
	By   int64  `json:"by"`
}

// PresenceUpdatePush notifies contacts of a presence or status change.
type PresenceUpdatePush struct {
	Type          string `json:"type"`
	UserID        int64  `json:"user_id"`
	Presence      string `json:"presence,omitempty"`
	StatusMessage string `json:"status_message"`
}

// ChatPush delivers a persisted message to a conversation participant.
// The sender's own connection receives it too.
type ChatPush struct {
	Type           string  `json:"type"`
	ConversationID int64   `json:"conversation_id"`
	Message        Message `json:"message"`
}

// WizzPush relays an attention signal to a conversation peer.
type WizzPush struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversation_id"`
	From           int64  `json:"from"`
}
