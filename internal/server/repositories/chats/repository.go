package chats

import (
	"context"
	"time"

	"github.com/leroytan/the-website-sub000/internal/server/models"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*models.Chat, error)
	GetByParticipants(ctx context.Context, userLow, userHigh string) (*models.Chat, error)
	Create(ctx context.Context, chat *models.Chat) error
	Unlock(ctx context.Context, id string, at time.Time) (bool, error)
	TouchLastMessage(ctx context.Context, id string, at time.Time) error
}
