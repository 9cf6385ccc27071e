package client

import (
	"github.com/mensageiro/mensageiro/pkg/protocol"
)

// Register creates an account. The connection stays unauthenticated;
// follow up with Login.
func (c *Connection) Register(name, email, password string) (*protocol.User, error) {
	var resp protocol.RegisterResponse
	err := c.request(protocol.TypeRegister, struct {
		Type string `json:"type"`
		protocol.RegisterRequest
	}{protocol.TypeRegister, protocol.RegisterRequest{Name: name, Email: email, Password: password}}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

// Login authenticates with credentials and stores the issued session
// token for reconnects.
func (c *Connection) Login(email, password string) (*protocol.LoginResponse, error) {
	var resp protocol.LoginResponse
	err := c.request(protocol.TypeLogin, struct {
		Type string `json:"type"`
		protocol.LoginRequest
	}{protocol.TypeLogin, protocol.LoginRequest{Email: email, Password: password}}, &resp)
	if err != nil {
		return nil, err
	}
	c.sessionToken.Store(resp.Session)
	return &resp, nil
}

// Auth authenticates with a session token. The server follows the
// response with a friend request and contact snapshot, delivered as
// events.
func (c *Connection) Auth(token string) (*protocol.User, error) {
	var resp protocol.AuthResponse
	err := c.request(protocol.TypeAuth, struct {
		Type string `json:"type"`
		protocol.AuthRequest
	}{protocol.TypeAuth, protocol.AuthRequest{Session: token}}, &resp)
	if err != nil {
		return nil, err
	}
	c.sessionToken.Store(token)
	return resp.User, nil
}

// Contacts fetches the caller's contact list.
func (c *Connection) Contacts() ([]protocol.Contact, error) {
	var resp protocol.ContactsResponse
	err := c.request(protocol.TypeGetContacts, struct {
		Type string `json:"type"`
	}{protocol.TypeGetContacts}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Contacts, nil
}

// FriendRequests fetches pending invites, both directions.
func (c *Connection) FriendRequests() (*protocol.FriendRequestsResponse, error) {
	var resp protocol.FriendRequestsResponse
	err := c.request(protocol.TypeGetFriendRequests, struct {
		Type string `json:"type"`
	}{protocol.TypeGetFriendRequests}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddFriend sends a friend invite to the user owning the email.
func (c *Connection) AddFriend(email, message string) (*protocol.AddFriendResponse, error) {
	var resp protocol.AddFriendResponse
	err := c.request(protocol.TypeAddFriend, struct {
		Type string `json:"type"`
		protocol.AddFriendRequest
	}{protocol.TypeAddFriend, protocol.AddFriendRequest{Email: email, Message: message}}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// AcceptFriend accepts a pending invite addressed to the caller.
func (c *Connection) AcceptFriend(requestID int64) error {
	return c.request(protocol.TypeAcceptFriend, struct {
		Type string `json:"type"`
		protocol.AcceptFriendRequest
	}{protocol.TypeAcceptFriend, protocol.AcceptFriendRequest{RequestID: requestID}}, nil)
}

// DeclineFriend declines an invite addressed to the caller, or cancels
// the caller's own outgoing invite.
func (c *Connection) DeclineFriend(requestID int64) error {
	return c.request(protocol.TypeDeclineFriend, struct {
		Type string `json:"type"`
		protocol.DeclineFriendRequest
	}{protocol.TypeDeclineFriend, protocol.DeclineFriendRequest{RequestID: requestID}}, nil)
}

// OpenConversation returns the id of the private conversation with the
// given user, creating it on first use.
func (c *Connection) OpenConversation(withUserID int64) (int64, error) {
	var resp protocol.OpenConversationResponse
	err := c.request(protocol.TypeOpenConversation, struct {
		Type string `json:"type"`
		protocol.OpenConversationRequest
	}{protocol.TypeOpenConversation, protocol.OpenConversationRequest{WithUserID: withUserID}}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.ConversationID, nil
}

// Conversations fetches the caller's conversation list.
func (c *Connection) Conversations() ([]protocol.ConversationSummary, error) {
	var resp protocol.ConversationsResponse
	err := c.request(protocol.TypeGetConversations, struct {
		Type string `json:"type"`
	}{protocol.TypeGetConversations}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// Messages fetches recent history for a conversation, oldest first.
func (c *Connection) Messages(conversationID int64) ([]protocol.Message, error) {
	var resp protocol.MessagesResponse
	err := c.request(protocol.TypeGetMessages, struct {
		Type string `json:"type"`
		protocol.GetMessagesRequest
	}{protocol.TypeGetMessages, protocol.GetMessagesRequest{ConversationID: conversationID}}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Chat posts a message. The persisted copy also comes back as a chat
// event on the sender's own connection.
func (c *Connection) Chat(conversationID int64, text string) (*protocol.ChatSentResponse, error) {
	return c.requestChat(struct {
		Type string `json:"type"`
		protocol.ChatRequest
	}{protocol.TypeChat, protocol.ChatRequest{ConversationID: conversationID, Text: text}})
}

// UpdateStatus sets the caller's status message.
func (c *Connection) UpdateStatus(status string) error {
	return c.request(protocol.TypeUpdateStatus, struct {
		Type string `json:"type"`
		protocol.UpdateStatusRequest
	}{protocol.TypeUpdateStatus, protocol.UpdateStatusRequest{Status: status}}, nil)
}

// Wizz fires an attention signal into a conversation. The server never
// answers it, so this only reports local send failures.
func (c *Connection) Wizz(conversationID int64) error {
	return c.send(struct {
		Type string `json:"type"`
		protocol.WizzRequest
	}{protocol.TypeWizz, protocol.WizzRequest{ConversationID: conversationID}})
}
