package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaboraid-sync/internal/domain"
	"collaboraid-sync/internal/transport/httpdto"
	collab_errors "collaboraid-sync/pkg/errors"
)

type published struct {
	dest string
	body []byte
}

type fakeSession struct {
	mu        sync.Mutex
	subs      map[string]func([]byte)
	published []published
	done      chan struct{}
	once      sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{subs: make(map[string]func([]byte)), done: make(chan struct{})}
}

func (f *fakeSession) Subscribe(topic string, h func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[topic] = h
	return nil
}

func (f *fakeSession) Publish(_ context.Context, dest string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{dest: dest, body: body})
	return nil
}

func (f *fakeSession) Done() <-chan struct{} { return f.done }
func (f *fakeSession) Err() error            { return errors.New("connection reset") }

func (f *fakeSession) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *fakeSession) emit(topic string, payload string) {
	f.mu.Lock()
	h := f.subs[topic]
	f.mu.Unlock()
	h([]byte(payload))
}

func (f *fakeSession) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for t := range f.subs {
		out = append(out, t)
	}
	return out
}

type fakeDialer struct {
	mu       sync.Mutex
	failures int
	sessions []*fakeSession
}

func (d *fakeDialer) Name() string { return "fake" }

func (d *fakeDialer) Dial(ctx context.Context) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("connection refused")
	}
	s := newFakeSession()
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDialer) InboxTopic(user domain.UserID) string {
	return fmt.Sprintf("inbox.%d", user)
}

func (d *fakeDialer) SendDestination() string { return "send" }

func (d *fakeDialer) session(i int) *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.sessions) {
		return nil
	}
	return d.sessions[i]
}

type stateLog struct {
	mu     sync.Mutex
	states []domain.ConnectionState
}

func (l *stateLog) record(s domain.ConnectionState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) all() []domain.ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.ConnectionState(nil), l.states...)
}

func newSupervisor(d *fakeDialer) *Supervisor {
	return NewSupervisor(Config{
		Dialer:         d,
		ReconnectDelay: 10 * time.Millisecond,
		Normalizer:     httpdto.Normalizer{Self: 1},
	})
}

func TestSupervisorDeliversNormalizedMessages(t *testing.T) {
	d := &fakeDialer{}
	s := newSupervisor(d)
	defer s.Disconnect()

	got := make(chan domain.Message, 2)
	require.NoError(t, s.Subscribe(1, func(m domain.Message) { got <- m }))

	state, err := s.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Connected, state)

	sess := d.session(0)
	assert.Equal(t, []string{"inbox.1"}, sess.topics())

	sess.emit("inbox.1", `{"messageId":5,"senderId":2,"receiverId":1,"content":"hi","timestamp":"2025-04-30T12:00:00"}`)
	sess.emit("inbox.1", `{"content":"no parties"}`)

	m := <-got
	assert.Equal(t, "5", m.ID)
	assert.Len(t, got, 0, "malformed payload dropped")
}

func TestSupervisorReconnectsAndResubscribes(t *testing.T) {
	d := &fakeDialer{}
	s := newSupervisor(d)
	log := &stateLog{}
	s.Watch(log.record)
	defer s.Disconnect()

	_, err := s.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Subscribe(1, func(domain.Message) {}))
	assert.Equal(t, []string{"inbox.1"}, d.session(0).topics(), "subscribed on the live session")

	d.session(0).Close()

	require.Eventually(t, func() bool {
		sess := d.session(1)
		return sess != nil && s.State() == domain.Connected
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"inbox.1"}, d.session(1).topics())

	assert.Equal(t, []domain.ConnectionState{
		domain.Connecting, domain.Connected,
		domain.Disconnected, domain.Connecting, domain.Connected,
	}, log.all())
}

func TestSupervisorRetriesAfterFailedDial(t *testing.T) {
	d := &fakeDialer{failures: 2}
	s := newSupervisor(d)
	defer s.Disconnect()

	state, err := s.Connect(context.Background())
	assert.Error(t, err)
	assert.NotEqual(t, domain.Connected, state)

	require.Eventually(t, func() bool { return s.State() == domain.Connected }, time.Second, 5*time.Millisecond)
}

func TestSupervisorPublish(t *testing.T) {
	d := &fakeDialer{}
	s := newSupervisor(d)

	out := domain.Outbound{ClientID: "c-1", Sender: domain.Participant{ID: 1, Name: "me"}, Receiver: domain.Participant{ID: 2}, Content: "yo"}
	assert.ErrorIs(t, s.Publish(context.Background(), out), collab_errors.ErrNotConnected)

	_, err := s.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Publish(context.Background(), out))

	sess := d.session(0)
	require.Len(t, sess.published, 1)
	assert.Equal(t, "send", sess.published[0].dest)
	var env httpdto.SendEnvelope
	require.NoError(t, json.Unmarshal(sess.published[0].body, &env))
	assert.Equal(t, "c-1", env.ClientID)
	assert.Equal(t, domain.UserID(2), env.Receiver.ID)

	require.NoError(t, s.Disconnect())
	assert.Equal(t, domain.Disconnected, s.State())
	assert.ErrorIs(t, s.Publish(context.Background(), out), collab_errors.ErrNotConnected)
}
