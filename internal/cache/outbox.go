package cache

import (
	"encoding/json"
	"time"

	"github.com/ostelo/deskchat/internal/chat"
)

// OutboxEntry represents a queued outgoing message. It survives restarts so
// an interrupted send is visible (and retryable) next session.
type OutboxEntry struct {
	ID             int64
	ClientKey      string
	ConversationID string
	Body           string
	ReplyToID      string
	Attachments    []chat.Attachment
	Status         string // queued, sending, sent, failed
	ErrorMessage   string
	ServerMsgID    string
}

// Queue adds a message to the send outbox.
func (db *DB) Queue(e *OutboxEntry) error {
	atts, err := json.Marshal(e.Attachments)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO outbox (client_key, conversation_id, body, reply_to_id, attachments, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'queued', ?, ?)`,
		e.ClientKey, e.ConversationID, e.Body, e.ReplyToID, string(atts), now, now)
	return err
}

// MarkSending updates an outbox entry to 'sending' status.
func (db *DB) MarkSending(clientKey string) error {
	return db.setStatus(clientKey, "sending", "", "")
}

// MarkSent updates an outbox entry to 'sent' with the server message ID.
func (db *DB) MarkSent(clientKey, serverMsgID string) error {
	return db.setStatus(clientKey, "sent", "", serverMsgID)
}

// MarkFailed updates an outbox entry to 'failed' with an error message.
func (db *DB) MarkFailed(clientKey, errMsg string) error {
	return db.setStatus(clientKey, "failed", errMsg, "")
}

func (db *DB) setStatus(clientKey, status, errMsg, serverMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE outbox SET status = ?, error_message = ?, server_msg_id = ?, updated_at = ?
		WHERE client_key = ?`,
		status, errMsg, serverMsgID, now, clientKey)
	return err
}

// Delete removes an outbox entry entirely. Used when a failed send is
// retried: the retry is a fresh send under a new client key.
func (db *DB) Delete(clientKey string) error {
	_, err := db.Exec(`DELETE FROM outbox WHERE client_key = ?`, clientKey)
	return err
}

// Pending returns outbox entries that are still queued, oldest first.
func (db *DB) Pending() ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT id, client_key, conversation_id, body, reply_to_id, attachments, status, error_message, server_msg_id
		FROM outbox WHERE status = 'queued' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		var atts string
		if err := rows.Scan(&e.ID, &e.ClientKey, &e.ConversationID, &e.Body, &e.ReplyToID, &atts, &e.Status, &e.ErrorMessage, &e.ServerMsgID); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(atts), &e.Attachments); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
