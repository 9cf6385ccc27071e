package database

import (
	"database/sql"
	"errors"
	"fmt"
)

// Message is a persisted chat message.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	SenderName     string
	Content        string
	CreatedAt      int64
}

// ConversationSummary is a conversation joined with its most recent
// message.
type ConversationSummary struct {
	ID          int64
	Type        string
	Title       *string
	LastMessage *string
	LastAt      *int64
}

// pairKey builds the canonical unordered-pair key for a private
// conversation.
func pairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// OpenPrivateConversation returns the id of the private conversation
// between the two users, creating it with both participant rows on
// first use. The pair_key UNIQUE index serializes concurrent opens
// from both sides onto a single conversation.
func (db *DB) OpenPrivateConversation(userID, otherUserID int64) (int64, error) {
	key := pairKey(userID, otherUserID)

	var id int64
	err := db.conn.QueryRow(`
		SELECT id FROM conversations WHERE type = ? AND pair_key = ?
	`, ConversationPrivate, key).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	tx, err := db.writeConn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := nowMillis()
	result, err := tx.Exec(`
		INSERT INTO conversations (type, title, pair_key, created_by, created_at)
		VALUES (?, NULL, ?, ?, ?)
	`, ConversationPrivate, key, userID, now)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race; the other side's insert won.
			tx.Rollback()
			err = db.conn.QueryRow(`
				SELECT id FROM conversations WHERE type = ? AND pair_key = ?
			`, ConversationPrivate, key).Scan(&id)
			return id, err
		}
		return 0, err
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, participant := range []int64{userID, otherUserID} {
		if _, err := tx.Exec(`
			INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
			VALUES (?, ?, ?)
		`, id, participant, now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// IsParticipant reports whether the user has a participant row in the
// conversation.
func (db *DB) IsParticipant(conversationID, userID int64) (bool, error) {
	var one int
	err := db.conn.QueryRow(`
		SELECT 1 FROM conversation_participants
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ParticipantIDs returns all participant user ids of a conversation.
func (db *DB) ParticipantIDs(conversationID int64) ([]int64, error) {
	rows, err := db.conn.Query(`
		SELECT user_id FROM conversation_participants WHERE conversation_id = ?
	`, conversationID)
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

// SaveMessage persists a new message with a server-assigned id and
// timestamp and returns the full row as it will be fanned out.
func (db *DB) SaveMessage(conversationID, senderID int64, content string) (*Message, error) {
	now := nowMillis()
	result, err := db.writeConn.Exec(`
		INSERT INTO messages (conversation_id, sender_id, content, created_at)
		VALUES (?, ?, ?, ?)
	`, conversationID, senderID, content, now)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	var senderName string
	if err := db.conn.QueryRow(`
		SELECT display_name FROM users WHERE id = ?
	`, senderID).Scan(&senderName); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	return &Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		Content:        content,
		CreatedAt:      now,
	}, nil
}

// ListMessages returns up to limit of the conversation's most recent
// messages, oldest first.
func (db *DB) ListMessages(conversationID int64, limit int) ([]Message, error) {
	rows, err := db.conn.Query(`
		SELECT id, conversation_id, sender_id, sender_name, content, created_at FROM (
			SELECT m.id, m.conversation_id, m.sender_id,
			       COALESCE(u.display_name, '') AS sender_name,
			       m.content, m.created_at
			FROM messages m
			LEFT JOIN users u ON m.sender_id = u.id
			WHERE m.conversation_id = ?
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT ?
		) ORDER BY created_at ASC, id ASC
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID,
			&msg.SenderName, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ListConversations returns the user's conversations joined with their
// most recent message, newest first.
func (db *DB) ListConversations(userID int64) ([]ConversationSummary, error) {
	rows, err := db.conn.Query(`
		SELECT conv.id, conv.type, conv.title, m.content, m.created_at
		FROM conversations conv
		JOIN conversation_participants p ON p.conversation_id = conv.id
		LEFT JOIN messages m ON m.id = (
			SELECT id FROM messages
			WHERE conversation_id = conv.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
		WHERE p.user_id = ?
		ORDER BY m.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := []ConversationSummary{}
	for rows.Next() {
		var conv ConversationSummary
		var title, lastMessage sql.NullString
		var lastAt sql.NullInt64
		if err := rows.Scan(&conv.ID, &conv.Type, &title, &lastMessage, &lastAt); err != nil {
			return nil, err
		}
		if title.Valid {
			conv.Title = &title.String
		}
		if lastMessage.Valid {
			conv.LastMessage = &lastMessage.String
		}
		if lastAt.Valid {
			conv.LastAt = &lastAt.Int64
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}
