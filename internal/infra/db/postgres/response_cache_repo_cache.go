package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"colleague-chat/internal/domain/model"
	"colleague-chat/internal/domain/ports/repository"
	"colleague-chat/internal/infra/metrics"
	red "colleague-chat/internal/infra/redis"
)

var _ repository.ResponseCacheRepository = (*responseCacheDecorator)(nil)

// responseCacheDecorator keeps hot answers in Redis in front of the table.
type responseCacheDecorator struct {
	inner repository.ResponseCacheRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewResponseCacheDecorator(inner repository.ResponseCacheRepository, cache red.RedisClient, ttl time.Duration, log *zerolog.Logger) repository.ResponseCacheRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &responseCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: log}
}

func responseKey(hash string) string { return "response_cache:" + hash }

func (d *responseCacheDecorator) Lookup(ctx context.Context, tx repository.Tx, hash string) (*model.CachedResponse, error) {
	key := responseKey(hash)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var c model.CachedResponse
		if json.Unmarshal([]byte(val), &c) == nil {
			metrics.IncCacheRequest("response", "hit")
			return &c, nil
		}
	} else if !red.IsMiss(err) {
		d.log.Warn().Err(err).Str("key", key).Msg("response cache read failed")
	}

	metrics.IncCacheRequest("response", "miss")
	c, err := d.inner.Lookup(ctx, tx, hash)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(c); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return c, nil
}

// Store writes through to the table and drops the hot copy so the next read
// sees whichever row won a concurrent insert.
func (d *responseCacheDecorator) Store(ctx context.Context, tx repository.Tx, c *model.CachedResponse) error {
	if err := d.inner.Store(ctx, tx, c); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, responseKey(c.QuestionHash))
	return nil
}

func (d *responseCacheDecorator) Touch(ctx context.Context, tx repository.Tx, id string) error {
	return d.inner.Touch(ctx, tx, id)
}
