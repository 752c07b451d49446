package messages

import (
	"context"
	"time"

	"github.com/leroytan/the-website-sub000/internal/server/models"
)

// ListFilter selects a page of a chat's history.
//
// Before is an exclusive message id cursor ("" for the newest page).
// HideFlaggedFor, when set, drops flagged messages that user did not send.
type ListFilter struct {
	ChatID         string
	Before         string
	Limit          int
	HideFlaggedFor string
}

type Repository interface {
	Create(ctx context.Context, msg *models.Message) error
	List(ctx context.Context, filter ListFilter) ([]*models.Message, error)
	MarkRead(ctx context.Context, chatID, readerID string, at time.Time, includeFlagged bool) (int64, error)
}
