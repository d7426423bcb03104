package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"collaboraid-sync/internal/domain"
	collab_errors "collaboraid-sync/pkg/errors"
	"collaboraid-sync/pkg/logger"
)

const DefaultAdminCooldown = 5 * time.Minute

// CooldownStore starts named cooldowns. Acquire returns the time left when
// one is already running and starts nothing in that case.
type CooldownStore interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (time.Duration, error)
	Remaining(ctx context.Context, name string) (time.Duration, error)
	Release(ctx context.Context, name string) error
}

type AdminRequester interface {
	RequestAdminRole(ctx context.Context) error
}

// Session holds the signed-in user and the per-user state that used to live
// in browser storage.
type Session struct {
	Self          domain.Participant
	AdminCooldown time.Duration

	cooldowns CooldownStore
	backend   AdminRequester
	logger    *logger.Logger
}

func New(self domain.Participant, backend AdminRequester, cooldowns CooldownStore, cooldown time.Duration, l *logger.Logger) *Session {
	if cooldowns == nil {
		cooldowns = NewMemoryStore(nil)
	}
	if cooldown <= 0 {
		cooldown = DefaultAdminCooldown
	}
	return &Session{
		Self:          self,
		AdminCooldown: cooldown,
		cooldowns:     cooldowns,
		backend:       backend,
		logger:        logger.OrNop(l),
	}
}

func adminKey(id domain.UserID) string {
	return fmt.Sprintf("admin-request:%s", id)
}

// RequestAdminRole asks the backend to promote the user. The cooldown only
// sticks when the backend accepted the request.
func (s *Session) RequestAdminRole(ctx context.Context) error {
	key := adminKey(s.Self.ID)
	left, err := s.cooldowns.Acquire(ctx, key, s.AdminCooldown)
	if err != nil {
		return err
	}
	if left > 0 {
		return &collab_errors.CooldownError{Remaining: left}
	}

	if err := s.backend.RequestAdminRole(ctx); err != nil {
		if rerr := s.cooldowns.Release(ctx, key); rerr != nil {
			s.logger.Warnf("release admin cooldown: %v", rerr)
		}
		return fmt.Errorf("admin role request failed: %w", err)
	}
	s.logger.Infof("admin role requested for user %s", s.Self.ID)
	return nil
}

// AdminCooldownRemaining is zero when a request may be made now.
func (s *Session) AdminCooldownRemaining(ctx context.Context) (time.Duration, error) {
	return s.cooldowns.Remaining(ctx, adminKey(s.Self.ID))
}

// MemoryStore is the process-local CooldownStore.
type MemoryStore struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{until: make(map[string]time.Time), now: now}
}

func (m *MemoryStore) Acquire(_ context.Context, name string, ttl time.Duration) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if end, ok := m.until[name]; ok && end.After(now) {
		return end.Sub(now), nil
	}
	m.until[name] = now.Add(ttl)
	return 0, nil
}

func (m *MemoryStore) Remaining(_ context.Context, name string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end, ok := m.until[name]
	if !ok {
		return 0, nil
	}
	left := end.Sub(m.now())
	if left <= 0 {
		delete(m.until, name)
		return 0, nil
	}
	return left, nil
}

func (m *MemoryStore) Release(_ context.Context, name string) error {
	m.mu.Lock()
	delete(m.until, name)
	m.mu.Unlock()
	return nil
}
