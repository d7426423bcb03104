package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Cooldown key pattern:
// - cooldown:{name} - TTL equals the cooldown length

// CooldownStore tracks per-key cooldowns so they survive restarts and are
// shared between processes acting for the same user.
type CooldownStore struct {
	client *goredis.Client
}

func NewCooldownStore(client *goredis.Client) *CooldownStore {
	return &CooldownStore{client: client}
}

func cooldownKey(name string) string {
	return fmt.Sprintf("cooldown:%s", name)
}

// Acquire starts a cooldown of length ttl. When one is already running it
// returns the time left on it and starts nothing.
func (s *CooldownStore) Acquire(ctx context.Context, name string, ttl time.Duration) (time.Duration, error) {
	key := cooldownKey(name)
	ok, err := s.client.SetNX(ctx, key, time.Now().Add(ttl).UnixMilli(), ttl).Result()
	if err != nil {
		return 0, fmt.Errorf("cooldown acquire failed: %w", err)
	}
	if ok {
		return 0, nil
	}

	left, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("cooldown ttl failed: %w", err)
	}
	if left <= 0 {
		// expired between SETNX and PTTL
		return s.Acquire(ctx, name, ttl)
	}
	return left, nil
}

func (s *CooldownStore) Remaining(ctx context.Context, name string) (time.Duration, error) {
	left, err := s.client.PTTL(ctx, cooldownKey(name)).Result()
	if err != nil {
		return 0, err
	}
	if left < 0 {
		return 0, nil
	}
	return left, nil
}

func (s *CooldownStore) Release(ctx context.Context, name string) error {
	return s.client.Del(ctx, cooldownKey(name)).Err()
}
