package push

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"collaboraid-sync/internal/domain"
	"collaboraid-sync/internal/transport/httpdto"
	collab_errors "collaboraid-sync/pkg/errors"
	"collaboraid-sync/pkg/logger"
)

const DefaultReconnectDelay = 5 * time.Second

// Session is one live connection to a pub/sub transport. Done is closed
// when the connection is lost; Err then reports why.
type Session interface {
	Subscribe(topic string, handler func(payload []byte)) error
	Publish(ctx context.Context, destination string, body []byte) error
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Dialer opens sessions and names the transport's topics.
type Dialer interface {
	Name() string
	Dial(ctx context.Context) (Session, error)
	InboxTopic(user domain.UserID) string
	SendDestination() string
}

type Config struct {
	Dialer         Dialer
	ReconnectDelay time.Duration
	Normalizer     httpdto.Normalizer
	Logger         *logger.Logger
}

// Supervisor keeps a Dialer connected, retrying after a fixed delay and
// re-establishing every subscription on each new session.
type Supervisor struct {
	dialer Dialer
	delay  time.Duration
	norm   httpdto.Normalizer
	logger *logger.Logger

	state atomic.Int32

	mu       sync.Mutex
	session  Session
	subs     map[string]func([]byte)
	watchers []func(domain.ConnectionState)
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewSupervisor(cfg Config) *Supervisor {
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Supervisor{
		dialer: cfg.Dialer,
		delay:  delay,
		norm:   cfg.Normalizer,
		logger: logger.OrNop(cfg.Logger).With(zap.String("transport", cfg.Dialer.Name())),
		subs:   make(map[string]func([]byte)),
	}
}

func (s *Supervisor) State() domain.ConnectionState {
	return domain.ConnectionState(s.state.Load())
}

func (s *Supervisor) Watch(fn func(domain.ConnectionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *Supervisor) setState(st domain.ConnectionState) {
	if domain.ConnectionState(s.state.Swap(int32(st))) == st {
		return
	}
	s.mu.Lock()
	watchers := append([]func(domain.ConnectionState){}, s.watchers...)
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(st)
	}
}

// Connect starts the connection loop and waits for the outcome of the first
// attempt. The loop keeps retrying in the background after a failure.
func (s *Supervisor) Connect(ctx context.Context) (domain.ConnectionState, error) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return s.State(), nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	first := make(chan error, 1)
	go s.run(runCtx, first)

	select {
	case err := <-first:
		return s.State(), err
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

func (s *Supervisor) run(ctx context.Context, first chan<- error) {
	defer close(s.done)
	report := func(err error) {
		if first != nil {
			first <- err
			first = nil
		}
	}

	for {
		s.setState(domain.Connecting)
		sess, err := s.dialer.Dial(ctx)
		if err == nil {
			err = s.attach(sess)
		}
		if err != nil {
			s.setState(domain.Disconnected)
			report(err)
			if ctx.Err() != nil {
				return
			}
			s.logger.Warnf("connect failed, retrying in %s: %v", s.delay, err)
			if !s.sleep(ctx) {
				return
			}
			continue
		}

		s.setState(domain.Connected)
		report(nil)
		s.logger.Infof("connected")

		select {
		case <-sess.Done():
			s.detach(sess)
			s.setState(domain.Disconnected)
			s.logger.Warnf("connection lost, reconnecting in %s: %v", s.delay, sess.Err())
			if !s.sleep(ctx) {
				return
			}
		case <-ctx.Done():
			s.detach(sess)
			if err := sess.Close(); err != nil {
				s.logger.Debugf("close session: %v", err)
			}
			s.setState(domain.Disconnected)
			return
		}
	}
}

func (s *Supervisor) attach(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, h := range s.subs {
		if err := sess.Subscribe(topic, h); err != nil {
			_ = sess.Close()
			return err
		}
	}
	s.session = sess
	return nil
}

func (s *Supervisor) detach(sess Session) {
	s.mu.Lock()
	if s.session == sess {
		s.session = nil
	}
	s.mu.Unlock()
}

func (s *Supervisor) sleep(ctx context.Context) bool {
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Subscribe records the user's inbox topic so it survives reconnects, and
// subscribes it right away when a session is live. Payloads are normalized
// before handler sees them; malformed ones are logged and dropped.
func (s *Supervisor) Subscribe(user domain.UserID, handler func(domain.Message)) error {
	topic := s.dialer.InboxTopic(user)
	raw := func(payload []byte) {
		m, err := s.norm.Decode(payload)
		if err != nil {
			s.logger.Warnf("drop event on %s: %v", topic, err)
			return
		}
		handler(m)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[topic] = raw
	if s.session != nil {
		return s.session.Subscribe(topic, raw)
	}
	return nil
}

func (s *Supervisor) Publish(ctx context.Context, out domain.Outbound) error {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil || s.State() != domain.Connected {
		return collab_errors.ErrNotConnected
	}
	body, err := json.Marshal(httpdto.NewSendEnvelope(out))
	if err != nil {
		return err
	}
	return sess.Publish(ctx, s.dialer.SendDestination(), body)
}

// Disconnect stops the loop and closes the live session, if any.
func (s *Supervisor) Disconnect() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		s.setState(domain.Disconnected)
		return nil
	}
	cancel()
	<-done
	return nil
}
