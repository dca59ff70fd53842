package repository

import (
	"context"

	"colleague-chat/internal/domain/model"
)

// FunnelStateRepository keeps the intake funnel of a session between requests.
type FunnelStateRepository interface {
	// Get returns domain.ErrNotFound when the session has no active funnel.
	Get(ctx context.Context, owner, sessionID string) (*model.FunnelState, error)
	Set(ctx context.Context, owner, sessionID string, state *model.FunnelState) error
	Clear(ctx context.Context, owner, sessionID string) error
}
