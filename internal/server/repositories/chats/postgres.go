// Package chats provides the PostgreSQL-backed chat repository.
package chats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leroytan/the-website-sub000/internal/common"
	"github.com/leroytan/the-website-sub000/internal/dbx"
	"github.com/leroytan/the-website-sub000/internal/server/models"
)

const chatColumns = `id, user_low, user_high, locked, created_at, unlocked_at, last_message_at`

// PostgresRepository implements chat storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Chat, error) {
	var c models.Chat
	err := row.Scan(&c.ID, &c.UserLow, &c.UserHigh, &c.Locked, &c.CreatedAt, &c.UnlockedAt, &c.LastMessageAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &c, nil
}

// GetByID returns the chat with the given id or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByParticipants looks a chat up by its canonically ordered pair.
func (r *PostgresRepository) GetByParticipants(ctx context.Context, userLow, userHigh string) (*models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE user_low = $1 AND user_high = $2`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userLow, userHigh))
}

// Create inserts a new chat. A concurrent insert of the same pair surfaces as
// a unique violation (see dbx.IsUniqueViolation).
func (r *PostgresRepository) Create(ctx context.Context, chat *models.Chat) error {
	query := `INSERT INTO chats (id, user_low, user_high, locked, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, chat.ID, chat.UserLow, chat.UserHigh, chat.Locked, chat.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Unlock moves a LOCKED chat to UNLOCKED. It reports false when no row
// changed, which happens for an unknown id or an already unlocked chat.
func (r *PostgresRepository) Unlock(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE chats SET locked = FALSE, unlocked_at = $2 WHERE id = $1 AND locked`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE chats SET last_message_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
