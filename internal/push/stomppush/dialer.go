package stomppush

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"

	"collaboraid-sync/internal/auth"
	"collaboraid-sync/internal/domain"
	"collaboraid-sync/internal/push"
)

const (
	TopicPrefix     = "/topic/messages/"
	SendDestination = "/app/sendMessage"
)

var errClosed = errors.New("session closed")

// Dialer connects to the backend's STOMP endpoint over a raw websocket
// (the SockJS "/websocket" transport path).
type Dialer struct {
	URL       string
	Tokens    auth.TokenSource
	HeartBeat time.Duration
	WS        *websocket.Dialer
}

func (d *Dialer) Name() string { return "stomp" }

func (d *Dialer) InboxTopic(user domain.UserID) string {
	return TopicPrefix + user.String()
}

func (d *Dialer) SendDestination() string { return SendDestination }

func (d *Dialer) Dial(ctx context.Context) (push.Session, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("stomp url: %w", err)
	}
	var bearer string
	if d.Tokens != nil {
		token, err := d.Tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		bearer = "Bearer " + token
	}

	header := http.Header{}
	if bearer != "" {
		header.Set("Authorization", bearer)
	}
	wsDialer := d.WS
	if wsDialer == nil {
		wsDialer = websocket.DefaultDialer
	}
	ws, resp, err := wsDialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	sess := &session{done: make(chan struct{})}
	sess.stream = newWSStream(ws, sess.fail)

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.Host(u.Hostname()),
		stomp.ConnOpt.HeartBeat(d.HeartBeat, d.HeartBeat),
	}
	if bearer != "" {
		opts = append(opts, stomp.ConnOpt.Header("Authorization", bearer))
	}
	conn, err := stomp.Connect(sess.stream, opts...)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("stomp connect: %w", err)
	}
	sess.conn = conn
	return sess, nil
}

type session struct {
	conn   *stomp.Conn
	stream *wsStream

	mu   sync.Mutex
	subs []*stomp.Subscription

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

func (s *session) Subscribe(topic string, handler func([]byte)) error {
	sub, err := s.conn.Subscribe(topic, stomp.AckAuto)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	go func() {
		for msg := range sub.C {
			if msg.Err != nil {
				s.fail(msg.Err)
				return
			}
			handler(msg.Body)
		}
	}()
	return nil
}

func (s *session) Publish(ctx context.Context, destination string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.conn.Send(destination, "application/json", body)
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
	err := s.conn.MustDisconnect()
	_ = s.stream.Close()
	s.fail(errClosed)
	return err
}
