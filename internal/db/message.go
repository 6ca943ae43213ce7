package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/RichardoC/convostore/internal/models"
	"github.com/pkg/errors"
)

// CreateMessage appends a message to a conversation. The new row's created_at
// never precedes the conversation's latest message, so history order follows
// insertion order even if the wall clock steps back.
func (d *Database) CreateMessage(ctx context.Context, conversationID int64, role, content string) (*models.Message, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin insert message")
	}
	defer tx.Rollback()

	if _, err := getConversation(ctx, tx, d.rebind, conversationID); err != nil {
		return nil, err
	}

	createdAt := d.timestamp()
	var last time.Time
	err = tx.QueryRowContext(ctx, d.rebind(`
        SELECT created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT 1`), conversationID).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, errors.Wrap(err, "load latest message time")
	case createdAt.Before(last):
		createdAt = last
	}

	msg := &models.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      createdAt,
	}
	query := `
        INSERT INTO messages (conversation_id, role, content, created_at)
        VALUES (?, ?, ?, ?)
        RETURNING id`
	if err := tx.QueryRowContext(ctx, d.rebind(query), conversationID, role, content, createdAt).Scan(&msg.ID); err != nil {
		return nil, errors.Wrap(err, "insert message")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit message")
	}
	return msg, nil
}

// ListMessages returns the full history of a conversation, oldest first.
func (d *Database) ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	if _, err := d.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	query := `
        SELECT id, conversation_id, role, content, created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at ASC, id ASC`

	rows, err := d.db.QueryContext(ctx, d.rebind(query), conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		messages = append(messages, msg)
	}
	return messages, errors.Wrap(rows.Err(), "list messages")
}
