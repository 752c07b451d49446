package repomanager

import (
	"context"
	"database/sql"

	"github.com/leroytan/the-website-sub000/internal/dbx"
	"github.com/leroytan/the-website-sub000/internal/server/repositories/chats"
	"github.com/leroytan/the-website-sub000/internal/server/repositories/messages"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Chats(db dbx.DBTX) chats.Repository
	Messages(db dbx.DBTX) messages.Repository
}
