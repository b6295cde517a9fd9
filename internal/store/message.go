package store

import (
	"fmt"
	"strings"
	"time"
)

// UpsertMessage inserts or updates a message (idempotent on conversation_id + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (conversation_id, msg_id, sender_id, sender_name, body, from_me, read, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			sender_name = CASE WHEN excluded.sender_name != '' THEN excluded.sender_name ELSE messages.sender_name END,
			body = excluded.body,
			read = MAX(messages.read, excluded.read)`,
		m.ConversationID, m.MsgID, m.SenderID, m.SenderName, m.Body, m.FromMe, m.Read, m.SentAt, now)
	return err
}

// MarkMessagesRead sets the read flag on the given server ids. Unknown ids
// are ignored.
func (db *DB) MarkMessagesRead(conversationID string, msgIDs []string) error {
	if len(msgIDs) == 0 {
		return nil
	}
	args := make([]any, 0, len(msgIDs)+1)
	args = append(args, conversationID)
	for _, id := range msgIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(msgIDs)), ",")
	_, err := db.Exec(fmt.Sprintf(`
		UPDATE messages SET read = 1
		WHERE conversation_id = ? AND msg_id IN (%s)`, placeholders), args...)
	return err
}

// ListMessages returns messages for a conversation using keyset pagination
// by sent_at, newest first.
func (db *DB) ListMessages(conversationID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, conversation_id, msg_id, sender_id, sender_name, body, from_me, read, sent_at
		FROM messages
		WHERE conversation_id = ? AND sent_at < ?
		ORDER BY sent_at DESC, id DESC
		LIMIT ?`, conversationID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.MsgID, &m.SenderID, &m.SenderName, &m.Body, &m.FromMe, &m.Read, &m.SentAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
