package server

import (
	"sync"
	"sync/atomic"

	"github.com/mensageiro/mensageiro/pkg/database"
)

// Session represents an active client connection. Identity is absent
// until a login or token auth succeeds on this connection; it is a
// typed slot here, never an ad-hoc property hung off the transport
// handle.
type Session struct {
	ID         uint64
	Conn       *SafeConn
	RemoteAddr string

	mu          sync.RWMutex // Protects the bound identity below
	userID      *int64
	email       string
	displayName string
}

// bind attaches an authenticated identity to the session and returns
// the previously bound user id, if any.
func (s *Session) bind(user *database.User) *int64 {
	s.mu.Lock()
	prev := s.userID
	id := user.ID
	s.userID = &id
	s.email = user.Email
	s.displayName = user.DisplayName
	s.mu.Unlock()
	return prev
}

// UserID returns the bound user id, if any.
func (s *Session) UserID() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID == nil {
		return 0, false
	}
	return *s.userID, true
}

// Identity returns the bound identity, if any.
func (s *Session) Identity() (id int64, email, displayName string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID == nil {
		return 0, "", "", false
	}
	return *s.userID, s.email, s.displayName, true
}

// SessionManager manages all active sessions and the user → connection
// registry used for fan-out. At most one connection per user id; a new
// bind for an already-present user replaces the previous entry without
// closing the previous connection.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
	byUser   map[int64]*Session
	nextID   uint64
	metrics  *Metrics
}

// NewSessionManager creates a new session manager
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[uint64]*Session),
		byUser:   make(map[int64]*Session),
	}
}

// SetMetrics attaches metrics to the session manager
func (sm *SessionManager) SetMetrics(metrics *Metrics) {
	sm.metrics = metrics
}

// CreateSession registers a new, not yet authenticated connection.
func (sm *SessionManager) CreateSession(conn *SafeConn, remoteAddr string) *Session {
	sessionID := atomic.AddUint64(&sm.nextID, 1)

	sess := &Session{
		ID:         sessionID,
		Conn:       conn,
		RemoteAddr: remoteAddr,
	}

	sm.mu.Lock()
	sm.sessions[sessionID] = sess
	sessionCount := len(sm.sessions)
	sm.mu.Unlock()

	if sm.metrics != nil {
		sm.metrics.RecordActiveSessions(sessionCount)
		sm.metrics.RecordSessionCreated()
	}

	return sess
}

// Bind binds an authenticated user to the session and registers it for
// fan-out, replacing any previous connection for the same user (last
// connection wins).
func (sm *SessionManager) Bind(sess *Session, user *database.User) {
	prev := sess.bind(user)

	sm.mu.Lock()
	// A connection re-authenticating as a different user must not leave
	// the old identity routed to it.
	if prev != nil && *prev != user.ID && sm.byUser[*prev] == sess {
		delete(sm.byUser, *prev)
	}
	sm.byUser[user.ID] = sess
	sm.mu.Unlock()
}

// LookupUser returns the live connection for a user id, if any.
func (sm *SessionManager) LookupUser(userID int64) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sess, ok := sm.byUser[userID]
	return sess, ok
}

// Remove removes a session and closes its connection. It returns the
// user id whose registry entry was removed, or nil. A session whose
// registry slot was already taken over by a newer connection for the
// same user must not evict that newer entry, so its close reports no
// user going offline.
func (sm *SessionManager) Remove(sessionID uint64) *int64 {
	sm.mu.Lock()
	sess, ok := sm.sessions[sessionID]
	if !ok {
		sm.mu.Unlock()
		return nil
	}
	delete(sm.sessions, sessionID)

	var wentOffline *int64
	sess.mu.RLock()
	boundUser := sess.userID
	sess.mu.RUnlock()
	if boundUser != nil && sm.byUser[*boundUser] == sess {
		delete(sm.byUser, *boundUser)
		wentOffline = boundUser
	}
	sessionCount := len(sm.sessions)
	sm.mu.Unlock()

	if sm.metrics != nil {
		sm.metrics.RecordActiveSessions(sessionCount)
		sm.metrics.RecordSessionDisconnected()
	}

	sess.Conn.Close()
	return wentOffline
}

// CountOnline returns the number of users with a live registry entry.
func (sm *SessionManager) CountOnline() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.byUser)
}

// CountSessions returns the number of open connections.
func (sm *SessionManager) CountSessions() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CloseAll closes all sessions
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, sess := range sm.sessions {
		sess.Conn.Close()
	}
	sm.sessions = make(map[uint64]*Session)
	sm.byUser = make(map[int64]*Session)
}
