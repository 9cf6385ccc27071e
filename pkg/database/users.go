package database

import (
	"database/sql"
	"errors"
)

// User is a registered account row.
type User struct {
	ID            int64
	Email         string
	DisplayName   string
	PasswordHash  string
	Presence      string
	StatusMessage *string
	LastSeen      *int64
	CreatedAt     int64
}

// CreateUser creates a new account with the given bcrypt hash and
// returns its id. The new user starts online (registration happens on
// a live connection). Returns ErrEmailTaken on duplicate email.
func (db *DB) CreateUser(email, displayName, passwordHash string) (int64, error) {
	result, err := db.writeConn.Exec(`
		INSERT INTO users (email, display_name, password_hash, presence, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, email, displayName, passwordHash, PresenceOnline, nowMillis())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrEmailTaken
		}
		return 0, err
	}
	return result.LastInsertId()
}

// GetUserByEmail returns the user owning the email, or ErrUserNotFound.
func (db *DB) GetUserByEmail(email string) (*User, error) {
	return db.getUser(`WHERE email = ?`, email)
}

// GetUserByID returns the user by id, or ErrUserNotFound.
func (db *DB) GetUserByID(id int64) (*User, error) {
	return db.getUser(`WHERE id = ?`, id)
}

func (db *DB) getUser(where string, arg any) (*User, error) {
	user := &User{}
	var statusMessage sql.NullString
	var lastSeen sql.NullInt64

	err := db.conn.QueryRow(`
		SELECT id, email, display_name, password_hash, presence, status_message, last_seen, created_at
		FROM users `+where,
		arg,
	).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Presence,
		&statusMessage,
		&lastSeen,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if statusMessage.Valid {
		user.StatusMessage = &statusMessage.String
	}
	if lastSeen.Valid {
		user.LastSeen = &lastSeen.Int64
	}
	return user, nil
}

// SetPresence updates the mirrored presence column and stamps
// last_seen.
func (db *DB) SetPresence(userID int64, presence string) error {
	_, err := db.writeConn.Exec(`
		UPDATE users SET presence = ?, last_seen = ? WHERE id = ?
	`, presence, nowMillis(), userID)
	return err
}

// SetStatusMessage persists the user's status message. An empty string
// clears it.
func (db *DB) SetStatusMessage(userID int64, status string) error {
	var value any
	if status != "" {
		value = status
	}
	_, err := db.writeConn.Exec(`
		UPDATE users SET status_message = ? WHERE id = ?
	`, value, userID)
	return err
}

// CreateSession persists a reconnection token for the user. An earlier
// token for the same user stays valid; the newest one simply joins it.
func (db *DB) CreateSession(token string, userID int64) error {
	_, err := db.writeConn.Exec(`
		INSERT INTO sessions (id, user_id, created_at) VALUES (?, ?, ?)
	`, token, userID, nowMillis())
	return err
}

// GetSessionUser resolves a session token to its user, or
// ErrSessionNotFound.
func (db *DB) GetSessionUser(token string) (*User, error) {
	var userID int64
	err := db.conn.QueryRow(`
		SELECT user_id FROM sessions WHERE id = ?
	`, token).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return db.GetUserByID(userID)
}
