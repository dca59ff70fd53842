package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"colleague-chat/internal/domain"
	"colleague-chat/internal/domain/model"
	"colleague-chat/internal/domain/ports/repository"
)

var _ repository.FunnelStateRepository = (*FunnelStateRepo)(nil)

// FunnelStateRepo stores the intake funnel of each session in Redis.
type FunnelStateRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewFunnelStateRepo(client RedisClient, ttl time.Duration) *FunnelStateRepo {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &FunnelStateRepo{client: client, ttl: ttl}
}

func (s *FunnelStateRepo) stateKey(owner, sessionID string) string {
	return fmt.Sprintf("funnel_state:%s:%s", owner, sessionID)
}

func (s *FunnelStateRepo) Set(ctx context.Context, owner, sessionID string, state *model.FunnelState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.stateKey(owner, sessionID), data, s.ttl)
}

func (s *FunnelStateRepo) Get(ctx context.Context, owner, sessionID string) (*model.FunnelState, error) {
	data, err := s.client.Get(ctx, s.stateKey(owner, sessionID))
	if IsMiss(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var state model.FunnelState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, err
	}
	if !state.IsActive {
		return nil, domain.ErrNotFound
	}
	return &state, nil
}

func (s *FunnelStateRepo) Clear(ctx context.Context, owner, sessionID string) error {
	return s.client.Del(ctx, s.stateKey(owner, sessionID))
}
