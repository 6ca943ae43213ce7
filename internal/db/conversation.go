package db

import (
	"context"
	"database/sql"

	"github.com/RichardoC/convostore/internal/models"
	"github.com/pkg/errors"
)

func (d *Database) CreateConversation(ctx context.Context, title *string) (*models.Conversation, error) {
	query := `
        INSERT INTO conversations (title, created_at)
        VALUES (?, ?)
        RETURNING id`

	conv := &models.Conversation{Title: title, CreatedAt: d.timestamp()}
	err := d.db.QueryRowContext(ctx, d.rebind(query), nullString(title), conv.CreatedAt).Scan(&conv.ID)
	if err != nil {
		return nil, errors.Wrap(err, "insert conversation")
	}
	return conv, nil
}

// GetConversation returns ErrNotFound when no conversation has the given id.
func (d *Database) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	return getConversation(ctx, d.db, d.rebind, id)
}

// ListConversations pages through conversations in creation order.
func (d *Database) ListConversations(ctx context.Context, offset, limit int) ([]models.Conversation, error) {
	if offset < 0 || limit < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "offset %d, limit %d", offset, limit)
	}

	query := `
        SELECT id, title, created_at
        FROM conversations
        ORDER BY id
        LIMIT ? OFFSET ?`

	rows, err := d.db.QueryContext(ctx, d.rebind(query), limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *conv)
	}
	return conversations, errors.Wrap(rows.Err(), "list conversations")
}

// DeleteConversation removes a conversation together with every message it owns.
// It reports false when the conversation did not exist.
func (d *Database) DeleteConversation(ctx context.Context, id int64) (bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "begin delete")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, d.rebind("DELETE FROM messages WHERE conversation_id = ?"), id); err != nil {
		return false, errors.Wrap(err, "delete messages")
	}

	res, err := tx.ExecContext(ctx, d.rebind("DELETE FROM conversations WHERE id = ?"), id)
	if err != nil {
		return false, errors.Wrap(err, "delete conversation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "delete conversation")
	}
	if n == 0 {
		return false, nil
	}

	return true, errors.Wrap(tx.Commit(), "commit delete")
}

func getConversation(ctx context.Context, q querier, rebind func(string) string, id int64) (*models.Conversation, error) {
	row := q.QueryRowContext(ctx, rebind("SELECT id, title, created_at FROM conversations WHERE id = ?"), id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "conversation %d", id)
	}
	return conv, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (*models.Conversation, error) {
	var (
		conv  models.Conversation
		title sql.NullString
	)
	if err := s.Scan(&conv.ID, &title, &conv.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan conversation")
	}
	if title.Valid {
		conv.Title = &title.String
	}
	return &conv, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
