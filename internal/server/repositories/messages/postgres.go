// Package messages provides the PostgreSQL-backed chat message repository.
package messages

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/leroytan/the-website-sub000/internal/dbx"
	"github.com/leroytan/the-website-sub000/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a message. Messages are never updated afterwards except for
// read_at.
func (r *PostgresRepository) Create(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (id, chat_id, sender_id, content, filtered_content, is_flagged,
			message_type, moderation_provider, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.ChatID, msg.SenderID, msg.Content, msg.FilteredContent, msg.IsFlagged,
		string(msg.Type), msg.ModerationProvider, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// List returns up to filter.Limit messages older than filter.Before,
// oldest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*models.Message, error) {
	query := `
		SELECT id, chat_id, sender_id, content, filtered_content, is_flagged,
			message_type, moderation_provider, created_at, updated_at, read_at
		FROM messages
		WHERE chat_id = $1
			AND ($2::text = '' OR id < $2::text)
			AND ($3::text = '' OR NOT (is_flagged AND sender_id <> $3::text))
		ORDER BY id DESC
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query, filter.ChatID, filter.Before, filter.HideFlaggedFor, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select messages: %w", err)
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		var (
			item    models.Message
			msgType string
		)
		if err := rows.Scan(
			&item.ID, &item.ChatID, &item.SenderID, &item.Content, &item.FilteredContent, &item.IsFlagged,
			&msgType, &item.ModerationProvider, &item.CreatedAt, &item.UpdatedAt, &item.ReadAt,
		); err != nil {
			return nil, err
		}
		item.Type = models.MessageType(msgType)
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(result)
	return result, nil
}

// MarkRead stamps every unread message in the chat sent by the other
// participant. Flagged messages are skipped unless includeFlagged is set.
func (r *PostgresRepository) MarkRead(ctx context.Context, chatID, readerID string, at time.Time, includeFlagged bool) (int64, error) {
	query := `
		UPDATE messages SET read_at = $3
		WHERE chat_id = $1 AND sender_id <> $2 AND read_at IS NULL
			AND ($4 OR NOT is_flagged)
	`
	res, err := r.db.ExecContext(ctx, query, chatID, readerID, at, includeFlagged)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
