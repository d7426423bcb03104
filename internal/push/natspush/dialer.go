package natspush

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"collaboraid-sync/internal/auth"
	"collaboraid-sync/internal/domain"
	"collaboraid-sync/internal/push"
)

const (
	SubjectPrefix = "messages"
	SendSubject   = "messages.send"
)

// Dialer connects to a NATS relay that mirrors the backend's per-user
// message topics onto subjects. Reconnection is left to the supervisor.
type Dialer struct {
	URL     string
	Tokens  auth.TokenSource
	Timeout time.Duration
}

func (d *Dialer) Name() string { return "nats" }

func (d *Dialer) InboxTopic(user domain.UserID) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, user)
}

func (d *Dialer) SendDestination() string { return SendSubject }

func (d *Dialer) Dial(ctx context.Context) (push.Session, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}

	sess := &session{done: make(chan struct{})}
	opts := []nats.Option{
		nats.Name("collabsync"),
		nats.Timeout(timeout),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err == nil {
				err = nats.ErrConnectionClosed
			}
			sess.fail(err)
		}),
		nats.ClosedHandler(func(*nats.Conn) { sess.fail(nats.ErrConnectionClosed) }),
	}
	if d.Tokens != nil {
		token, err := d.Tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(d.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	sess.nc = nc
	return sess, nil
}

type session struct {
	nc *nats.Conn

	once sync.Once
	err  error
	done chan struct{}
}

func (s *session) fail(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

func (s *session) Subscribe(subject string, handler func([]byte)) error {
	if _, err := s.nc.Subscribe(subject, func(m *nats.Msg) { handler(m.Data) }); err != nil {
		return fmt.Errorf("failed to subscribe to subject '%s': %w", subject, err)
	}
	return nil
}

func (s *session) Publish(ctx context.Context, subject string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.nc.Publish(subject, body); err != nil {
		return fmt.Errorf("failed to publish message to subject '%s': %w", subject, err)
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
	s.nc.Close()
	return nil
}
