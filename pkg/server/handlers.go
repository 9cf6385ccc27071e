package server

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/mensageiro/mensageiro/pkg/database"
	"github.com/mensageiro/mensageiro/pkg/protocol"
	"golang.org/x/crypto/bcrypt"
)

// handleFrame decodes one inbound frame and dispatches it. A frame
// that is not a well-formed envelope is acknowledged and otherwise
// ignored. Failures — including panics — are local to this frame; the
// connection stays open.
func (s *Server) handleFrame(sess *Session, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			errorLog.Printf("Session %d: panic in handler: %v", sess.ID, r)
			s.sendEnvelope(sess, protocol.TypeError, &protocol.ErrorReply{
				Type:    protocol.TypeError,
				Status:  protocol.StatusError,
				Message: "internal error",
			})
		}
	}()

	env, err := protocol.Decode(data)
	if err != nil {
		debugLog.Printf("Session %d: undecodable frame: %v", sess.ID, err)
		s.sendEnvelope(sess, protocol.TypeAck, &protocol.AckReply{
			Type:    protocol.TypeAck,
			Message: "raw text received",
		})
		return
	}

	if s.metrics != nil {
		s.metrics.RecordMessageReceived(env.Type)
	}

	if err := s.handleEnvelope(sess, env); err != nil {
		s.replyError(sess, env.Type, err)
	}
}

// handleEnvelope routes an envelope to its handler. The request set is
// closed; anything else is an unknown action.
func (s *Server) handleEnvelope(sess *Session, env *protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeRegister:
		return s.handleRegister(sess, env)
	case protocol.TypeLogin:
		return s.handleLogin(sess, env)
	case protocol.TypeAuth:
		return s.handleAuth(sess, env)
	case protocol.TypeGetContacts:
		return s.handleGetContacts(sess, env)
	case protocol.TypeGetFriendRequests:
		return s.handleGetFriendRequests(sess, env)
	case protocol.TypeAddFriend:
		return s.handleAddFriend(sess, env)
	case protocol.TypeAcceptFriend:
		return s.handleAcceptFriend(sess, env)
	case protocol.TypeDeclineFriend:
		return s.handleDeclineFriend(sess, env)
	case protocol.TypeOpenConversation:
		return s.handleOpenConversation(sess, env)
	case protocol.TypeGetConversations:
		return s.handleGetConversations(sess, env)
	case protocol.TypeGetMessages:
		return s.handleGetMessages(sess, env)
	case protocol.TypeChat:
		return s.handleChat(sess, env)
	case protocol.TypeUpdateStatus:
		return s.handleUpdateStatus(sess, env)
	case protocol.TypeWizz:
		return s.handleWizz(sess, env)
	default:
		return s.sendEnvelope(sess, protocol.TypeError, &protocol.ErrorReply{
			Type:    protocol.TypeError,
			Message: "unknown action",
		})
	}
}

// replyError converts a handler failure into a wire error reply under
// the request's response type. Infrastructure detail never reaches the
// client.
func (s *Server) replyError(sess *Session, reqType string, err error) {
	var herr *HandlerError
	if !errors.As(err, &herr) {
		herr = errInfra(reqType, err)
	}

	if herr.Kind == KindInfrastructure {
		errorLog.Printf("Session %d: %s failed: %v", sess.ID, reqType, herr)
	} else {
		debugLog.Printf("Session %d: %s rejected: %v", sess.ID, reqType, herr)
	}
	if s.metrics != nil {
		s.metrics.RecordHandlerError(herr.Kind)
	}

	respType := protocol.ResponseTypeFor(reqType)
	s.sendEnvelope(sess, respType, &protocol.ErrorReply{
		Type:    respType,
		Status:  protocol.StatusError,
		Message: herr.Message,
	})
}

// requireUser returns the session's bound user id or an auth error.
func requireUser(sess *Session) (int64, error) {
	userID, ok := sess.UserID()
	if !ok {
		return 0, errAuth("not authenticated")
	}
	return userID, nil
}

// newSessionToken returns n random bytes hex-encoded.
func newSessionToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func wireUser(user *database.User) *protocol.User {
	return &protocol.User{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.DisplayName,
		StatusMessage: user.StatusMessage,
	}
}

func wireMessage(msg *database.Message) protocol.Message {
	return protocol.Message{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}
}

// handleRegister creates an account. It does not authenticate the
// connection; clients follow up with login.
func (s *Server) handleRegister(sess *Session, env *protocol.Envelope) error {
	var req protocol.RegisterRequest
	if err := env.Bind(&req); err != nil {
		return errValidation("invalid parameters")
	}

	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" || req.Password == "" {
		return errValidation("fill in name, email and password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return errInfra("bcrypt.GenerateFromPassword", err)
	}

	userID, err := s.db.CreateUser(email, name, string(hash))
	if err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			return errConflict("email already registered")
		}
		return errInfra("CreateUser", err)
	}

	debugLog.Printf("Session %d: registered user %d (%s)", sess.ID, userID, email)
	return s.sendEnvelope(sess, protocol.TypeRegister, &protocol.RegisterResponse{
		Type:   protocol.TypeRegister,
		Status: protocol.StatusOK,
		User:   &protocol.User{ID: userID, Email: email, Name: name},
	})
}

// handleLogin verifies credentials, issues a fresh session token, and
// binds the identity to this connection.
func (s *Server) handleLogin(sess *Session, env *protocol.Envelope) error {
	var req protocol.LoginRequest
	if err := env.Bind(&req); err != nil {
		return errValidation("invalid parameters")
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return errValidation("fill in email and password")
	}

	user, err := s.db.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return errAuth("invalid credentials")
		}
		return errInfra("GetUserByEmail", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return errAuth("invalid credentials")
	}

	token, err := newSessionToken(s.config.SessionTokenBytes)
	if err != nil {
		return errInfra("newSessionToken", err)
	}
	if err := s.db.CreateSession(token, user.ID); err != nil {
		return errInfra("CreateSession", err)
	}

	s.bindUser(sess, user)

	debugLog.Printf("Session %d: user %d logged in (%s)", sess.ID, user.ID, email)
	return s.sendEnvelope(sess, protocol.TypeLogin, &protocol.LoginResponse{
		Type:    protocol.TypeLogin,
		Status:  protocol.StatusOK,
		User:    wireUser(user),
		Session: token,
	})
}

// handleAuth re-authenticates with a session token and then pushes the
// recovery snapshot: pending friend requests and the contact list.
func (s *Server) handleAuth(sess *Session, env *protocol.Envelope) error {
	var req protocol.AuthRequest
	if err := env.Bind(&req); err != nil {
		return errValidation("invalid parameters")
	}
	if req.Session == "" {
		return errValidation("missing session token")
	}

	user, err := s.db.GetSessionUser(req.Session)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return errAuth("invalid session")
		}
		return errInfra("GetSessionUser", err)
	}

	s.bindUser(sess, user)

	debugLog.Printf("Session %d: user %d authenticated by token", sess.ID, user.ID)
	if err := s.sendEnvelope(sess, protocol.TypeAuth, &protocol.AuthResponse{
		Type:   protocol.TypeAuth,
		Status: protocol.StatusOK,
		User:   wireUser(user),
	}); err != nil {
		return nil
	}

	s.pushFriendRequests(sess, user.ID)
	s.pushContacts(sess, user.ID)
	return nil
}

// bindUser attaches the identity to the session, registers the
// connection for fan-out (replacing any previous one), mirrors online
// presence into the store, and tells the user's live contacts.
func (s *Server) bindUser(sess *Session, user *database.User) {
	s.sessions.Bind(sess, user)

	if err := s.db.SetPresence(user.ID, database.PresenceOnline); err != nil {
		errorLog.Printf("Session %d: failed to persist online presence for user %d: %v", sess.ID, user.ID, err)
	}

	status := ""
	if user.StatusMessage != nil {
		status = *user.StatusMessage
	}
	s.pushPresenceToContacts(user.ID, database.PresenceOnline, status)
}

func (s *Server) handleGetContacts(sess *Session, env *protocol.Envelope) error {
	userID, err := requireUser(sess)
	if err != nil {
		return err
	}
	return s.sendContacts(sess, userID)
}

func (s *Server) handleGetFriendRequests(sess *Session, env *protocol.Envelope) error {
	userID, err := requireUser(sess)
	if err != nil {
		return err
	}
	return s.sendFriendRequests(sess, userID)
}

// handleAddFriend inserts a new pending friend request and notifies
// the target when connected.
func (s *Server) handleAddFriend(sess *Session, env *protocol.Envelope) error {
	userID, email, _, ok := sess.Identity()
	if !ok {
		return errAuth("not authenticated")
	}

	var req protocol.AddFriendRequest
	if err := env.Bind(&req); err != nil {
		return errValidation("invalid parameters")
	}
	targetEmail := strings.TrimSpace(req.Email)
	if targetEmail == "" {
		return errValidation("invalid parameters")
	}
	if targetEmail == email {
		return errValidation("cannot send an invite to yourself")
	}

	target, err := s.db.GetUserByEmail(targetEmail)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return errNotFound("user not found")
		}
		return errInfra("GetUserByEmail", err)
	}

	message := strings.TrimSpace(req.Message)
	requestID, err := s.db.CreateFriendRequest(userID, target.ID, message)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateRequest) {
			return errConflict("invite already sent")
		}
		return errInfra("CreateFriendRequest", err)
	}
	debugLog.Printf("Session %d: friend request %d from %d to %d", sess.ID, requestID, userID, target.ID)

	// Refresh the sender's outgoing list.
	s.pushFriendRequests(sess, userID)

	// Notify the target, if connected.
	if targetSess, online := s.sessions.LookupUser(target.ID); online {
		s.sendEnvelope(targetSess, protocol.TypeFriendRequestPush, &protocol.FriendRequestPush{
			Type:      protocol.TypeFriendRequestPush,
			RequestID: requestID,
			From:      userID,
			FromEmail: email,
			Message:   message,
		})
		s.pushFriendRequests(targetSess, target.ID)
	}

	return s.sendEnvelope(sess, protocol.TypeAddFriend, &protocol.AddFriendResponse{
		Type:      protocol.TypeAddFriend,
		Status:    protocol.StatusOK,
		RequestID: requestID,
		ToUserID:  target.ID,
		ToEmail:   target.Email,
	})
}

// handleAcceptFriend accepts a request addressed to the caller. The
// store transaction also normalizes any reciprocal pending request and
// writes both contact edges, so a simultaneous mutual invite resolves
// to a single symmetric friendship.
func (s *Server) handleAcceptFriend(sess *Session, env *protocol.Envelope) error {
	userID, err := requireUser(sess)
	if err != nil {
		return err
	}

	var req protocol.AcceptFriendRequest
	if err := env.Bind(&req); err != nil || req.RequestID == 0 {
		return errValidation("invalid parameters")
	}

	request, err := s.db.GetFriendRequest(req.RequestID)
	if err != nil {
		if errors.Is(err, database.ErrRequestNotFound) {
			return errNotFound("request not found")
		}
		return errInfra("GetFriendRequest", err)
	}
	if request.ToUserID != userID {
		return errAuthorization("not authorized")
	}
	// Declined is terminal; re-accepting an accepted request stays
	// allowed.
	if request.Status == database.RequestDeclined {
		return errNotFound("request not found")
	}

	if err := s.db.AcceptFriendRequest(request.ID, request.FromUserID, request.ToUserID); err != nil {
		return errInfra("AcceptFriendRequest", err)
	}
	other := request.FromUserID
	debugLog.Printf("Session %d: request %d accepted by %d; contacts ensured with %d", sess.ID, request.ID, userID, other)

	if err := s.sendEnvelope(sess, protocol.TypeAcceptFriend, &protocol.AcceptFriendResponse{
		Type:   protocol.TypeAcceptFriend,
		Status: protocol.StatusOK,
		With:   other,
	}); err != nil {
		return nil
	}

	s.pushFriendRequests(sess, userID)
	s.pushContacts(sess, userID)

	if otherSess, online := s.sessions.LookupUser(other); online {
		s.sendEnvelope(otherSess, protocol.TypeFriendAccepted, &protocol.FriendAcceptedPush{
			Type: protocol.TypeFriendAccepted,
			By:   userID,
		})
		s.pushContacts(otherSess, other)
		s.pushFriendRequests(otherSess, other)
	}
	return nil
}

// handleDeclineFriend declines a request addressed to the caller. The
// original sender may invoke it on their own request to cancel it;
// either party is therefore an acceptable actor.
func (s *Server) handleDeclineFriend(sess *Session, env *protocol.Envelope) error {
	userID, err := requireUser(sess)
	if err != nil {
		return err
	}

	var req protocol.DeclineFriendRequest
	if err := env.Bind(&req); err != nil || req.RequestID == 0 {
		return errValidation("invalid parameters")
	}

	request, err := s.db.GetFriendRequest(req.RequestID)
	if err != nil {
		if errors.Is(err, database.ErrRequestNotFound) {
			return errNotFound("request not found")
		}
		return errInfra("GetFriendRequest", err)
	}
	if request.ToUserID != userID && request.FromUserID != userID {
		return errAuthorization("not authorized")
	}
	// Only a pending request can be declined; accepted and declined are
	// terminal.
	if request.Status != database.RequestPending {
		return errNotFound("request not found")
	}

	if err := s.db.DeclineFriendRequest(request.ID); err != nil {
		return errInfra("DeclineFriendRequest", err)
	}

	if err := s.sendEnvelope(sess, protocol.TypeDeclineFriend, &protocol.DeclineFriendResponse{
		Type:      protocol.TypeDeclineFriend,
		Status:    protocol.StatusOK,
		RequestID: request.ID,
	}); err != nil {
		return nil
	}

	s.pushFriendRequests(sess, userID)

	counterpart := request.FromUserID
	if userID == request.FromUserID {
		counterpart = request.ToUserID
	}
	if otherSess, online := s.sessions.LookupUser(counterpart); online {
		s.sendEnvelope(otherSess, protocol.TypeFriendDeclined, &protocol.FriendDeclinedPush{
			Type: protocol.TypeFriendDeclined,
			By:   userID,
		})
		s.pushFriendRequests(otherSess, counterpart)
	}
	return nil
}

// handleOpenConversation returns the private conversation with the
// given user, creating it on first use. Concurrent opens from both
// sides converge on one conversation id.
func (s *Server) handleOpenConversation(sess *Session, env *protocol.Envelope) error {
	userID, err := requireUser(sess)
	if err != nil {
		return err
	}

	var req protocol.OpenConversationRequest
	if err := env.Bind(&req); err != nil || req.WithUserID == 0 {
		return errValidation("invalid parameters")
	}
	if req.WithUserID == userID {
		return errValidation("cannot open a conversation with yourself")
	}

	if _, err := s.db.GetUserByID(req.WithUserID); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return errNotFound("user not found")
		}
		return errInfra("GetUserByID", err)
	}

	conversationID, err := s.db.OpenPrivateConversation(userID, req.WithUserID)
	if err != nil {
		return errInfra("OpenPrivateConversation", err)
	}

	return s.sendEnvelope(sess, protocol.TypeOpenConversation, &protocol.OpenConversationResponse{
		Type:           protocol.TypeOpenConversation,
		Status:         protocol.StatusOK,
		ConversationID: conversationID,
	})
}

func (s *Server) handleGetConversations(sess *Session, env *protocol.Envelope) error {
	userID, err := requireUser(sess)
	if err != nil {
		return err
	}

	summaries, err := s.db.ListConversations(userID)
	if err != nil {
		return errInfra("ListConversations", err)
	}

	conversations := make([]protocol.ConversationSummary, 0, len(summaries))
	for _, conv := range summaries {
		conversations = append(conversations, protocol.ConversationSummary{
			ID:          conv.ID,
			Type:        conv.Type,
			Title:       conv.Title,
			LastMessage: conv.LastMessage,
			LastAt:      conv.LastAt,
		})
	}

	return s.sendEnvelope(sess, protocol.TypeConversations, &protocol.ConversationsResponse{
		Type:          protocol.TypeConversations,
		Status:        protocol.StatusOK,
		Conversations: conversations,
	})
}

func (s *Server) handleGetMessages(sess *Session, env *protocol.Envelope) error {
	userID, err := requireUser(sess)
	if err != nil {
		return err
	}

	var req protocol.GetMessagesRequest
	if err := env.Bind(&req); err != nil || req.ConversationID == 0 {
		return errValidation("invalid parameters")
	}

	if err := s.requireParticipant(req.ConversationID, userID); err != nil {
		return err
	}

	history, err := s.db.ListMessages(req.ConversationID, s.config.HistoryLimit)
	if err != nil {
		return errInfra("ListMessages", err)
	}

	messages := make([]protocol.Message, 0, len(history))
	for i := range history {
		messages = append(messages, wireMessage(&history[i]))
	}

	return s.sendEnvelope(sess, protocol.TypeMessages, &protocol.MessagesResponse{
		Type:           protocol.TypeMessages,
		Status:         protocol.StatusOK,
		ConversationID: req.ConversationID,
		Messages:       messages,
	})
}

// handleChat persists a message and fans it out to every live
// participant, the sender's own connection included; the sender
// additionally gets a chat_sent acknowledgement.
func (s *Server) handleChat(sess *Session, env *protocol.Envelope) error {
	userID, err := requireUser(sess)
	if err != nil {
		return err
	}

	var req protocol.ChatRequest
	if err := env.Bind(&req); err != nil {
		return errValidation("invalid parameters")
	}
	text := strings.TrimSpace(req.Text)
	if req.ConversationID == 0 || text == "" {
		return errValidation("invalid parameters")
	}
	if len(text) > s.config.MaxMessageLength {
		return errValidation("message too long")
	}

	if err := s.requireParticipant(req.ConversationID, userID); err != nil {
		return err
	}

	msg, err := s.db.SaveMessage(req.ConversationID, userID, text)
	if err != nil {
		return errInfra("SaveMessage", err)
	}

	participants, err := s.db.ParticipantIDs(req.ConversationID)
	if err != nil {
		return errInfra("ParticipantIDs", err)
	}

	push := protocol.ChatPush{
		Type:           protocol.TypeChat,
		ConversationID: req.ConversationID,
		Message:        wireMessage(msg),
	}
	for _, participantID := range participants {
		if peer, online := s.sessions.LookupUser(participantID); online {
			s.sendEnvelope(peer, protocol.TypeChat, &push)
		}
	}

	return s.sendEnvelope(sess, protocol.TypeChatSent, &protocol.ChatSentResponse{
		Type:           protocol.TypeChatSent,
		Status:         protocol.StatusOK,
		MessageID:      msg.ID,
		ConversationID: req.ConversationID,
	})
}

// handleUpdateStatus persists the caller's status message and tells
// every live contact.
func (s *Server) handleUpdateStatus(sess *Session, env *protocol.Envelope) error {
	userID, err := requireUser(sess)
	if err != nil {
		return err
	}

	var req protocol.UpdateStatusRequest
	if err := env.Bind(&req); err != nil {
		return errValidation("invalid parameters")
	}
	status := strings.TrimSpace(req.Status)

	if err := s.db.SetStatusMessage(userID, status); err != nil {
		return errInfra("SetStatusMessage", err)
	}

	if err := s.sendEnvelope(sess, protocol.TypeUpdateStatus, &protocol.UpdateStatusResponse{
		Type:          protocol.TypeUpdateStatus,
		Status:        protocol.StatusOK,
		StatusMessage: status,
	}); err != nil {
		return nil
	}

	s.pushPresenceToContacts(userID, "", status)
	s.pushContacts(sess, userID)
	return nil
}

// handleWizz relays a transient attention signal to the other live
// participants of the conversation. Never persisted, never
// acknowledged; anything invalid is silently dropped.
func (s *Server) handleWizz(sess *Session, env *protocol.Envelope) error {
	userID, ok := sess.UserID()
	if !ok {
		return nil
	}

	var req protocol.WizzRequest
	if err := env.Bind(&req); err != nil || req.ConversationID == 0 {
		return nil
	}

	isParticipant, err := s.db.IsParticipant(req.ConversationID, userID)
	if err != nil || !isParticipant {
		return nil
	}

	participants, err := s.db.ParticipantIDs(req.ConversationID)
	if err != nil {
		errorLog.Printf("Session %d: wizz fan-out failed: %v", sess.ID, err)
		return nil
	}

	push := protocol.WizzPush{
		Type:           protocol.TypeWizz,
		ConversationID: req.ConversationID,
		From:           userID,
	}
	for _, participantID := range participants {
		if participantID == userID {
			continue
		}
		if peer, online := s.sessions.LookupUser(participantID); online {
			s.sendEnvelope(peer, protocol.TypeWizz, &push)
		}
	}
	return nil
}

// requireParticipant verifies conversation membership for the caller.
func (s *Server) requireParticipant(conversationID, userID int64) error {
	isParticipant, err := s.db.IsParticipant(conversationID, userID)
	if err != nil {
		return errInfra("IsParticipant", err)
	}
	if !isParticipant {
		return errAuthorization("not a participant of this conversation")
	}
	return nil
}

// sendContacts sends the user's contact list to the session. Used both
// as the get_contacts response and as an unsolicited refresh push.
func (s *Server) sendContacts(sess *Session, userID int64) error {
	list, err := s.db.ListContacts(userID)
	if err != nil {
		return errInfra("ListContacts", err)
	}

	contacts := make([]protocol.Contact, 0, len(list))
	for _, contact := range list {
		contacts = append(contacts, protocol.Contact{
			ID:            contact.UserID,
			DisplayName:   contact.DisplayName,
			Email:         contact.Email,
			Presence:      contact.Presence,
			GroupName:     contact.GroupName,
			StatusMessage: contact.StatusMessage,
		})
	}

	return s.sendEnvelope(sess, protocol.TypeContacts, &protocol.ContactsResponse{
		Type:     protocol.TypeContacts,
		Status:   protocol.StatusOK,
		Contacts: contacts,
	})
}

// sendFriendRequests sends the user's pending requests, both
// directions, to the session.
func (s *Server) sendFriendRequests(sess *Session, userID int64) error {
	incoming, outgoing, err := s.db.PendingRequests(userID)
	if err != nil {
		return errInfra("PendingRequests", err)
	}

	resp := protocol.FriendRequestsResponse{
		Type:     protocol.TypeFriendRequests,
		Status:   protocol.StatusOK,
		Incoming: make([]protocol.IncomingFriendRequest, 0, len(incoming)),
		Outgoing: make([]protocol.OutgoingFriendRequest, 0, len(outgoing)),
	}
	for _, req := range incoming {
		resp.Incoming = append(resp.Incoming, protocol.IncomingFriendRequest(req))
	}
	for _, req := range outgoing {
		resp.Outgoing = append(resp.Outgoing, protocol.OutgoingFriendRequest(req))
	}

	return s.sendEnvelope(sess, protocol.TypeFriendRequests, &resp)
}

// pushContacts is sendContacts as a best-effort push.
func (s *Server) pushContacts(sess *Session, userID int64) {
	if err := s.pushLoggedOnly(s.sendContacts(sess, userID)); err != nil {
		errorLog.Printf("Session %d: contacts push failed: %v", sess.ID, err)
	}
}

// pushFriendRequests is sendFriendRequests as a best-effort push.
func (s *Server) pushFriendRequests(sess *Session, userID int64) {
	if err := s.pushLoggedOnly(s.sendFriendRequests(sess, userID)); err != nil {
		errorLog.Printf("Session %d: friend request push failed: %v", sess.ID, err)
	}
}

// pushLoggedOnly filters out plain send errors (peer gone) which the
// disconnect path already accounts for.
func (s *Server) pushLoggedOnly(err error) error {
	var herr *HandlerError
	if errors.As(err, &herr) {
		return err
	}
	return nil
}

// pushPresenceToContacts tells every live contact about a presence or
// status change. An empty presence means only the status message
// changed.
func (s *Server) pushPresenceToContacts(userID int64, presence, statusMessage string) {
	contactIDs, err := s.db.ListContactIDs(userID)
	if err != nil {
		errorLog.Printf("Presence push for user %d failed: %v", userID, err)
		return
	}

	push := protocol.PresenceUpdatePush{
		Type:          protocol.TypePresenceUpdate,
		UserID:        userID,
		Presence:      presence,
		StatusMessage: statusMessage,
	}
	for _, contactID := range contactIDs {
		if peer, online := s.sessions.LookupUser(contactID); online {
			s.sendEnvelope(peer, protocol.TypePresenceUpdate, &push)
		}
	}
}
