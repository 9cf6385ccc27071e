// Package database is the persistent store: users, sessions, contacts,
// friend requests, conversations and messages in SQLite. It is the
// single source of truth for durable state; transient liveness lives in
// the server's connection registry, not here.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUserNotFound indicates no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound indicates the session token is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRequestNotFound indicates the friend request id does not exist.
	ErrRequestNotFound = errors.New("friend request not found")
	// ErrDuplicateRequest indicates a pending request already exists
	// for the same (from, to) pair.
	ErrDuplicateRequest = errors.New("pending friend request already exists")
)

// Presence values mirrored into the users table. The authoritative
// liveness fact is the connection registry; these columns are a
// best-effort mirror updated on connect, login and disconnect.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Friend request states. Pending is the only non-terminal state.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestDeclined = "declined"
)

// Conversation types. Only private conversations are created here.
const (
	ConversationPrivate = "private"
	ConversationGroup   = "group"
)

// DB wraps the SQLite database connection
type DB struct {
	conn      *sql.DB // Read connection pool
	writeConn *sql.DB // Dedicated write connection (1 connection)
}

// Open opens a connection to the SQLite database at the given path
// and initializes the schema if needed
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL allows multiple readers and one writer at the same time
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := applyPragmas(conn); err != nil {
		conn.Close()
		return nil, err
	}

	// Dedicated write connection: exactly 1 connection, no pooling,
	// so writes never contend for the pool under SQLite's single-writer
	// limitation
	writeConn, err := sql.Open("sqlite", path)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open write connection: %w", err)
	}
	writeConn.SetMaxOpenConns(1)
	writeConn.SetMaxIdleConns(1)
	writeConn.SetConnMaxLifetime(0)

	if err := applyPragmas(writeConn); err != nil {
		conn.Close()
		writeConn.Close()
		return nil, err
	}

	db := &DB{conn: conn, writeConn: writeConn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		writeConn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func applyPragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connections
func (db *DB) Close() error {
	db.writeConn.Close()
	return db.conn.Close()
}

// initSchema creates all tables and indexes if they don't exist
func (db *DB) initSchema() error {
	schema := `
-- User accounts. presence/last_seen mirror the connection registry.
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	presence TEXT NOT NULL DEFAULT 'offline',
	status_message TEXT,
	last_seen INTEGER,
	created_at INTEGER NOT NULL
);

-- Opaque reconnection tokens. A later login supersedes but does not
-- revoke earlier tokens.
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL REFERENCES users(id),
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

-- Directed contact edges; acceptance always writes both directions.
CREATE TABLE IF NOT EXISTS contacts (
	user_id INTEGER NOT NULL REFERENCES users(id),
	contact_id INTEGER NOT NULL REFERENCES users(id),
	group_name TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, contact_id)
);

CREATE TABLE IF NOT EXISTS friend_requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_user_id INTEGER NOT NULL REFERENCES users(id),
	to_user_id INTEGER NOT NULL REFERENCES users(id),
	message TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	created_at INTEGER NOT NULL,
	responded_at INTEGER
);
-- At most one pending request per ordered (from, to) pair.
CREATE UNIQUE INDEX IF NOT EXISTS idx_friend_requests_pending
	ON friend_requests(from_user_id, to_user_id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_friend_requests_to ON friend_requests(to_user_id, status);
CREATE INDEX IF NOT EXISTS idx_friend_requests_from ON friend_requests(from_user_id, status);

-- pair_key is 'min:max' of the two participant ids for private
-- conversations; the UNIQUE index serializes get-or-create per pair.
CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL DEFAULT 'private',
	title TEXT,
	pair_key TEXT UNIQUE,
	created_by INTEGER NOT NULL REFERENCES users(id),
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_participants (
	conversation_id INTEGER NOT NULL REFERENCES conversations(id),
	user_id INTEGER NOT NULL REFERENCES users(id),
	joined_at INTEGER NOT NULL,
	PRIMARY KEY (conversation_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants(user_id);

-- Immutable once created; ordering key is (created_at, id).
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id),
	sender_id INTEGER NOT NULL REFERENCES users(id),
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, created_at, id);
`
	_, err := db.writeConn.Exec(schema)
	return err
}

// nowMillis returns the current time in milliseconds since epoch
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}
