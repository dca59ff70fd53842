package repository

import (
	"context"

	"colleague-chat/internal/domain/model"
)

// SessionBookRepository persists the {sessions, lastActive} document of one owner.
type SessionBookRepository interface {
	// Load returns domain.ErrNotFound when the owner has no document yet.
	Load(ctx context.Context, tx Tx, owner string) (*model.SessionBook, error)
	Save(ctx context.Context, tx Tx, book *model.SessionBook) error
}
