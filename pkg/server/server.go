// Package server implements the mensageiro presence/chat server: one
// WebSocket connection per client exchanging JSON envelopes, a
// connection registry for fan-out, and handlers over the SQLite store.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mensageiro/mensageiro/pkg/database"
	"github.com/mensageiro/mensageiro/pkg/protocol"
)

var (
	errorLog *log.Logger
	debugLog *log.Logger
)

// initLoggers sets up error and debug loggers. Tests may preset them;
// a second call is a no-op.
func initLoggers() {
	if errorLog == nil {
		errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	}
	if debugLog == nil {
		debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
	}
}

// Server is the mensageiro server: WebSocket endpoint, connection
// registry, and the persistent store.
type Server struct {
	db        *database.DB
	sessions  *SessionManager
	config    ServerConfig
	metrics   *Metrics
	upgrader  websocket.Upgrader
	startTime time.Time

	listener      net.Listener
	httpServer    *http.Server
	metricsServer *http.Server
	shutdown      chan struct{}
	wg            sync.WaitGroup
}

// NewServer creates a new server instance. Failure to open the store
// is fatal to the caller: the process must not come up without it.
func NewServer(dbPath string, config ServerConfig) (*Server, error) {
	db, err := database.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	initLoggers()

	metrics := NewMetrics()
	sessions := NewSessionManager()
	sessions.SetMetrics(metrics)

	return &Server{
		db:        db,
		sessions:  sessions,
		config:    config,
		metrics:   metrics,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The browser client is served from elsewhere.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		shutdown: make(chan struct{}),
	}, nil
}

// EnableDebugLogging enables per-frame debug logging to stderr.
func (s *Server) EnableDebugLogging() {
	debugLog = log.New(os.Stderr, "DEBUG: ", log.LstdFlags)
	debugLog.Println("Debug logging enabled")
}

// Start starts the WebSocket endpoint and, when configured, the
// internal metrics endpoint. It returns once both are listening.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	s.httpServer = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("WebSocket server listening on %s (/ws)", listener.Addr())
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errorLog.Printf("HTTP server error: %v", err)
		}
	}()

	if s.config.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", s.metrics.Handler())
		metricsMux.HandleFunc("/health", s.HealthHandler)
		s.metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", s.config.MetricsPort),
			Handler: metricsMux,
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			log.Printf("Metrics server listening on :%d (/metrics, /health) - INTERNAL ONLY", s.config.MetricsPort)
			if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errorLog.Printf("Metrics server error: %v", err)
			}
		}()
	}

	return nil
}

// Addr returns the address the WebSocket endpoint is bound to.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	log.Println("Graceful shutdown initiated...")
	close(s.shutdown)

	if s.httpServer != nil {
		s.httpServer.Close()
	}
	if s.metricsServer != nil {
		s.metricsServer.Close()
	}

	s.sessions.CloseAll()
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		errorLog.Printf("Error during database close: %v", err)
		return err
	}

	log.Println("Graceful shutdown complete")
	return nil
}

// HealthHandler reports liveness and the current connection count.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"sessions":       s.sessions.CountSessions(),
		"online_users":   s.sessions.CountOnline(),
	})
}

// HandleWebSocket upgrades an HTTP request and runs the connection's
// message loop.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		errorLog.Printf("WebSocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	sess := s.sessions.CreateSession(NewSafeConn(conn), conn.RemoteAddr().String())
	debugLog.Printf("New connection from %s (session %d)", sess.RemoteAddr, sess.ID)

	welcome := protocol.SystemMessage{
		Type:    protocol.TypeSystem,
		Message: "welcome",
		ID:      sess.ID,
	}
	if err := s.sendEnvelope(sess, protocol.TypeSystem, &welcome); err != nil {
		s.removeSession(sess)
		return
	}

	s.wg.Add(1)
	go s.messageLoop(sess)
}

// messageLoop processes frames for one connection, strictly in arrival
// order. It owns the connection's read side; writes go through the
// session's SafeConn from any goroutine.
func (s *Server) messageLoop(sess *Session) {
	defer s.wg.Done()
	defer s.removeSession(sess)

	for {
		data, err := sess.Conn.ReadMessage()
		if err != nil {
			debugLog.Printf("Session %d: read loop ended: %v", sess.ID, err)
			return
		}

		debugLog.Printf("Session %d ← RECV %d bytes", sess.ID, len(data))
		s.handleFrame(sess, data)
	}
}

// removeSession drops the connection from the registry and, if this
// was the user's current connection, mirrors offline presence into the
// store and tells their live contacts.
func (s *Server) removeSession(sess *Session) {
	wentOffline := s.sessions.Remove(sess.ID)
	if wentOffline == nil {
		return
	}

	userID := *wentOffline
	if err := s.db.SetPresence(userID, database.PresenceOffline); err != nil {
		errorLog.Printf("Session %d: failed to persist offline presence for user %d: %v", sess.ID, userID, err)
	}
	s.pushPresenceToContacts(userID, database.PresenceOffline, "")
	debugLog.Printf("Session %d: user %d went offline", sess.ID, userID)
}

// sendEnvelope writes one envelope to a session, with metrics.
func (s *Server) sendEnvelope(sess *Session, msgType string, v any) error {
	if err := sess.Conn.WriteJSON(v); err != nil {
		debugLog.Printf("Session %d: send %s failed: %v", sess.ID, msgType, err)
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordMessageSent(msgType)
	}
	return nil
}
