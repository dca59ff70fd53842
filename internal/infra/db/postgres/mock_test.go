//go:build !integration

package postgres

import (
	"context"
	"time"

	"colleague-chat/internal/domain/model"
	"colleague-chat/internal/domain/ports/repository"
	red "colleague-chat/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerResponseCache mocks the table-backed repository the decorator wraps.
type mockInnerResponseCache struct {
	LookupFunc func(ctx context.Context, tx repository.Tx, hash string) (*model.CachedResponse, error)
	StoreFunc  func(ctx context.Context, tx repository.Tx, c *model.CachedResponse) error
	TouchFunc  func(ctx context.Context, tx repository.Tx, id string) error
}

func (m *mockInnerResponseCache) Lookup(ctx context.Context, tx repository.Tx, hash string) (*model.CachedResponse, error) {
	return m.LookupFunc(ctx, tx, hash)
}
func (m *mockInnerResponseCache) Store(ctx context.Context, tx repository.Tx, c *model.CachedResponse) error {
	return m.StoreFunc(ctx, tx, c)
}
func (m *mockInnerResponseCache) Touch(ctx context.Context, tx repository.Tx, id string) error {
	return m.TouchFunc(ctx, tx, id)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if m.ExpireFunc == nil {
		return nil
	}
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
