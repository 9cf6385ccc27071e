package database

import (
	"database/sql"
	"errors"
)

// FriendRequest is a raw friend_requests row.
type FriendRequest struct {
	ID          int64
	FromUserID  int64
	ToUserID    int64
	Message     string
	Status      string
	CreatedAt   int64
	RespondedAt *int64
}

// IncomingRequest is a pending request joined with its sender.
type IncomingRequest struct {
	ID         int64
	FromUserID int64
	FromName   string
	FromEmail  string
	Message    string
	Status     string
	CreatedAt  int64
}

// OutgoingRequest is a pending request joined with its addressee.
type OutgoingRequest struct {
	ID        int64
	ToUserID  int64
	ToName    string
	ToEmail   string
	Message   string
	Status    string
	CreatedAt int64
}

// Contact is a contact edge joined with the peer's user row.
type Contact struct {
	UserID        int64
	DisplayName   string
	Email         string
	Presence      string
	GroupName     string
	StatusMessage *string
}

// CreateFriendRequest inserts a new pending request and returns its id.
// Returns ErrDuplicateRequest if a pending request from→to already
// exists (enforced by the partial unique index).
func (db *DB) CreateFriendRequest(fromUserID, toUserID int64, message string) (int64, error) {
	result, err := db.writeConn.Exec(`
		INSERT INTO friend_requests (from_user_id, to_user_id, message, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, fromUserID, toUserID, message, RequestPending, nowMillis())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateRequest
		}
		return 0, err
	}
	return result.LastInsertId()
}

// GetFriendRequest returns a request by id, or ErrRequestNotFound.
func (db *DB) GetFriendRequest(id int64) (*FriendRequest, error) {
	req := &FriendRequest{}
	var respondedAt sql.NullInt64

	err := db.conn.QueryRow(`
		SELECT id, from_user_id, to_user_id, message, status, created_at, responded_at
		FROM friend_requests WHERE id = ?
	`, id).Scan(
		&req.ID,
		&req.FromUserID,
		&req.ToUserID,
		&req.Message,
		&req.Status,
		&req.CreatedAt,
		&respondedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if respondedAt.Valid {
		req.RespondedAt = &respondedAt.Int64
	}
	return req, nil
}

// AcceptFriendRequest atomically accepts the named request, marks
// accepted any other still-pending request between the same two users
// in either direction (so a simultaneous mutual invite resolves
// cleanly), and upserts both directed contact edges. Safe to repeat:
// the edge inserts ignore duplicates.
func (db *DB) AcceptFriendRequest(requestID, fromUserID, toUserID int64) error {
	tx, err := db.writeConn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := nowMillis()

	if _, err := tx.Exec(`
		UPDATE friend_requests SET status = ?, responded_at = ? WHERE id = ?
	`, RequestAccepted, now, requestID); err != nil {
		return err
	}

	// One direction at a time. Folding both directions into a single
	// UPDATE with an OR hits a query planner fault in the sqlite driver
	// when combined with the partial unique index on pending requests.
	for _, pair := range [][2]int64{{fromUserID, toUserID}, {toUserID, fromUserID}} {
		if _, err := tx.Exec(`
			UPDATE friend_requests SET status = ?, responded_at = ?
			WHERE status = ? AND from_user_id = ? AND to_user_id = ?
		`, RequestAccepted, now, RequestPending, pair[0], pair[1]); err != nil {
			return err
		}
	}

	for _, pair := range [][2]int64{{toUserID, fromUserID}, {fromUserID, toUserID}} {
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO contacts (user_id, contact_id, created_at)
			VALUES (?, ?, ?)
		`, pair[0], pair[1], now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeclineFriendRequest moves a request to the terminal declined state.
func (db *DB) DeclineFriendRequest(requestID int64) error {
	_, err := db.writeConn.Exec(`
		UPDATE friend_requests SET status = ?, responded_at = ? WHERE id = ?
	`, RequestDeclined, nowMillis(), requestID)
	return err
}

// PendingRequests returns the user's pending requests, both directions,
// newest first.
func (db *DB) PendingRequests(userID int64) ([]IncomingRequest, []OutgoingRequest, error) {
	rows, err := db.conn.Query(`
		SELECT fr.id, fr.from_user_id, u.display_name, u.email, fr.message, fr.status, fr.created_at
		FROM friend_requests fr
		JOIN users u ON fr.from_user_id = u.id
		WHERE fr.to_user_id = ? AND fr.status = ?
		ORDER BY fr.created_at DESC
	`, userID, RequestPending)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	incoming := []IncomingRequest{}
	for rows.Next() {
		var req IncomingRequest
		if err := rows.Scan(&req.ID, &req.FromUserID, &req.FromName, &req.FromEmail,
			&req.Message, &req.Status, &req.CreatedAt); err != nil {
			return nil, nil, err
		}
		incoming = append(incoming, req)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err = db.conn.Query(`
		SELECT fr.id, fr.to_user_id, u.display_name, u.email, fr.message, fr.status, fr.created_at
		FROM friend_requests fr
		JOIN users u ON fr.to_user_id = u.id
		WHERE fr.from_user_id = ? AND fr.status = ?
		ORDER BY fr.created_at DESC
	`, userID, RequestPending)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	outgoing := []OutgoingRequest{}
	for rows.Next() {
		var req OutgoingRequest
		if err := rows.Scan(&req.ID, &req.ToUserID, &req.ToName, &req.ToEmail,
			&req.Message, &req.Status, &req.CreatedAt); err != nil {
			return nil, nil, err
		}
		outgoing = append(outgoing, req)
	}
	return incoming, outgoing, rows.Err()
}

// ListContacts returns the user's contact list ordered by display name.
func (db *DB) ListContacts(userID int64) ([]Contact, error) {
	rows, err := db.conn.Query(`
		SELECT c.contact_id, u.display_name, u.email, u.presence, c.group_name, u.status_message
		FROM contacts c
		JOIN users u ON c.contact_id = u.id
		WHERE c.user_id = ?
		ORDER BY u.display_name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []Contact{}
	for rows.Next() {
		var contact Contact
		var statusMessage sql.NullString
		if err := rows.Scan(&contact.UserID, &contact.DisplayName, &contact.Email,
			&contact.Presence, &contact.GroupName, &statusMessage); err != nil {
			return nil, err
		}
		if statusMessage.Valid {
			contact.StatusMessage = &statusMessage.String
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

// ListContactIDs returns just the ids of the user's contacts, for
// presence fan-out.
func (db *DB) ListContactIDs(userID int64) ([]int64, error) {
	rows, err := db.conn.Query(`
		SELECT contact_id FROM contacts WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
