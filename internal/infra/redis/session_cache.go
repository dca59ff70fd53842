package redis

import (
	"context"
	"encoding/json"
	"time"

	"colleague-chat/internal/domain/model"
)

// SessionCache keeps the hot copy of an owner's session book.
type SessionCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewSessionCache(client RedisClient, ttl time.Duration) *SessionCache {
	return &SessionCache{
		client: client,
		ttl:    ttl,
	}
}

func sessionBookKey(owner string) string { return "session_book:" + owner }

func (c *SessionCache) StoreBook(ctx context.Context, book *model.SessionBook) error {
	data, err := json.Marshal(book)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionBookKey(book.Owner), data, c.ttl)
}

// GetBook returns redis.Nil on a miss.
func (c *SessionCache) GetBook(ctx context.Context, owner string) (*model.SessionBook, error) {
	data, err := c.client.Get(ctx, sessionBookKey(owner))
	if err != nil {
		return nil, err
	}
	var book model.SessionBook
	if err := json.Unmarshal([]byte(data), &book); err != nil {
		return nil, err
	}
	book.Owner = owner
	return &book, nil
}

func (c *SessionCache) DeleteBook(ctx context.Context, owner string) error {
	return c.client.Del(ctx, sessionBookKey(owner))
}

func (c *SessionCache) ExtendBook(ctx context.Context, owner string) error {
	return c.client.Expire(ctx, sessionBookKey(owner), c.ttl)
}
