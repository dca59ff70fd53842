package repository

import (
	"context"

	"colleague-chat/internal/domain/model"
)

// ResponseCacheRepository is the cross-user answer cache keyed by question hash.
type ResponseCacheRepository interface {
	// Lookup returns domain.ErrNotFound on a miss.
	Lookup(ctx context.Context, tx Tx, hash string) (*model.CachedResponse, error)
	// Store is write-once per hash; a concurrent duplicate is ignored.
	Store(ctx context.Context, tx Tx, resp *model.CachedResponse) error
	Touch(ctx context.Context, tx Tx, id string) error
}
