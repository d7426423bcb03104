package redispush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"collaboraid-sync/internal/domain"
	"collaboraid-sync/internal/events"
	"collaboraid-sync/internal/push"
)

var errClosed = errors.New("redis pubsub closed")

// Dialer listens on a Redis relay's per-user channels. go-redis resubscribes
// transparently after short blips, so the session also pings the server and
// reports itself lost once a ping fails.
type Dialer struct {
	Client       *goredis.Client
	PingInterval time.Duration
	Now          func() time.Time
}

func (d *Dialer) Name() string { return "redis" }

func (d *Dialer) InboxTopic(user domain.UserID) string { return events.UserChannel(user) }

func (d *Dialer) SendDestination() string { return events.SendChannel }

func (d *Dialer) Dial(ctx context.Context) (push.Session, error) {
	if err := d.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	interval := d.PingInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}

	ps := d.Client.Subscribe(context.Background())
	s := &session{
		client:   d.Client,
		pubsub:   ps,
		now:      now,
		handlers: make(map[string]func([]byte)),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
	go s.listen(ps.Channel())
	go s.health(interval)
	return s, nil
}

type session struct {
	client *goredis.Client
	pubsub *goredis.PubSub
	now    func() time.Time

	mu       sync.RWMutex
	handlers map[string]func([]byte)

	once     sync.Once
	stopOnce sync.Once
	err      error
	done     chan struct{}
	stop     chan struct{}
}

func (s *session) fail(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

func (s *session) listen(ch <-chan *goredis.Message) {
	for msg := range ch {
		s.mu.RLock()
		h := s.handlers[msg.Channel]
		s.mu.RUnlock()
		if h != nil {
			h(events.Unwrap([]byte(msg.Payload)))
		}
	}
	s.fail(errClosed)
}

func (s *session) health(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := s.client.Ping(ctx).Err()
			cancel()
			if err != nil {
				s.fail(err)
				_ = s.pubsub.Close()
				return
			}
		case <-s.stop:
			return
		case <-s.done:
			return
		}
	}
}

func (s *session) Subscribe(channel string, handler func([]byte)) error {
	s.mu.Lock()
	s.handlers[channel] = handler
	s.mu.Unlock()
	if err := s.pubsub.Subscribe(context.Background(), channel); err != nil {
		return fmt.Errorf("failed to subscribe to channel '%s': %w", channel, err)
	}
	return nil
}

func (s *session) Publish(ctx context.Context, channel string, body []byte) error {
	env := events.NewEnvelope(events.EventMessageSend, "", body, s.now())
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel '%s': %w", channel, err)
	}
	return nil
}

func (s *session) Done() <-chan struct{} { return s.done }

func (s *session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *session) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return s.pubsub.Close()
}
