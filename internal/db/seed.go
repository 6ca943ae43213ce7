package db

import (
	"context"

	"github.com/RichardoC/convostore/internal/models"
	"github.com/pkg/errors"
)

type seedMessage struct {
	role    string
	content string
}

type seedConversation struct {
	title    string
	messages []seedMessage
}

// seedData is inserted once into an empty store.
var seedData = []seedConversation{
	{
		title: "Welcome",
		messages: []seedMessage{
			{role: models.RoleUser, content: "Hi! What can you do?"},
			{role: models.RoleAssistant, content: "Hello! I keep track of our conversation and answer your messages. Send me anything to get started."},
		},
	},
	{
		title: "Getting started",
	},
}

// Seed inserts the fixed seed dataset if, and only if, the conversations table
// is empty. It reports whether rows were written.
func (d *Database) Seed(ctx context.Context) (bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "begin seed")
	}
	defer tx.Rollback()

	if d.driver == DriverPostgres {
		// Concurrent startups must not both observe an empty table.
		if _, err := tx.ExecContext(ctx, "LOCK TABLE conversations IN EXCLUSIVE MODE"); err != nil {
			return false, errors.Wrap(err, "lock conversations")
		}
	}

	var count int64
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&count); err != nil {
		return false, errors.Wrap(err, "count conversations")
	}
	if count > 0 {
		return false, nil
	}

	now := d.timestamp()
	for _, conv := range seedData {
		var id int64
		err := tx.QueryRowContext(ctx,
			d.rebind("INSERT INTO conversations (title, created_at) VALUES (?, ?) RETURNING id"),
			conv.title, now,
		).Scan(&id)
		if err != nil {
			return false, errors.Wrapf(err, "seed conversation %q", conv.title)
		}

		for _, msg := range conv.messages {
			_, err := tx.ExecContext(ctx,
				d.rebind("INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)"),
				id, msg.role, msg.content, now,
			)
			if err != nil {
				return false, errors.Wrapf(err, "seed message for %q", conv.title)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, "commit seed")
	}
	return true, nil
}
