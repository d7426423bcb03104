package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"collaboraid-sync/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

// Cache key patterns:
// - user:{user_id} - profile cache, default 5m TTL

const DefaultParticipantTTL = 5 * time.Minute

// ParticipantCache keeps counterpart profiles so a conversation opened by id
// alone can still show a name.
type ParticipantCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewParticipantCache(client *goredis.Client, ttl time.Duration) *ParticipantCache {
	if ttl <= 0 {
		ttl = DefaultParticipantTTL
	}
	return &ParticipantCache{client: client, ttl: ttl}
}

// participantCache is the cached subset of a user profile.
type participantCache struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	Avatar   string `json:"avatar_url,omitempty"`
}

func userKey(id domain.UserID) string {
	return fmt.Sprintf("user:%s", id)
}

// Get returns ok=false on a cache miss.
func (c *ParticipantCache) Get(ctx context.Context, id domain.UserID) (domain.Participant, bool, error) {
	data, err := c.client.Get(ctx, userKey(id)).Result()
	if errors.Is(err, goredis.Nil) {
		return domain.Participant{}, false, nil
	}
	if err != nil {
		return domain.Participant{}, false, err
	}

	var u participantCache
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return domain.Participant{}, false, err
	}
	return domain.Participant{
		ID:     domain.UserID(u.ID),
		Name:   u.Username,
		Email:  u.Email,
		Role:   u.Role,
		Avatar: u.Avatar,
	}, true, nil
}

func (c *ParticipantCache) Put(ctx context.Context, p domain.Participant) error {
	if p.ID == 0 {
		return nil
	}
	data, err := json.Marshal(participantCache{
		ID:       int64(p.ID),
		Username: p.Name,
		Email:    p.Email,
		Role:     p.Role,
		Avatar:   p.Avatar,
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, userKey(p.ID), data, c.ttl).Err()
}

func (c *ParticipantCache) Invalidate(ctx context.Context, id domain.UserID) error {
	return c.client.Del(ctx, userKey(id)).Err()
}
