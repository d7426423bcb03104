package natspush

import (
	"context"
	"net"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaboraid-sync/internal/auth"
)

const testToken = "tkn"

func runServer(t *testing.T) (*Dialer, func(), string) {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	opts.Authorization = testToken
	srv := natsserver.RunServer(&opts)
	t.Cleanup(srv.Shutdown)

	d := &Dialer{URL: srv.ClientURL(), Tokens: auth.NewStaticToken(testToken), Timeout: time.Second}
	return d, srv.Shutdown, srv.ClientURL()
}

func TestSubjects(t *testing.T) {
	d := &Dialer{}
	assert.Equal(t, "messages.42", d.InboxTopic(42))
	assert.Equal(t, "messages.send", d.SendDestination())
	assert.Equal(t, "nats", d.Name())
}

func TestSessionSubscribeAndPublish(t *testing.T) {
	d, _, url := runServer(t)
	ctx := context.Background()

	sess, err := d.Dial(ctx)
	require.NoError(t, err)
	defer sess.Close()

	peer, err := nats.Connect(url, nats.Token(testToken))
	require.NoError(t, err)
	defer peer.Close()

	got := make(chan []byte, 16)
	require.NoError(t, sess.Subscribe(d.InboxTopic(9), func(b []byte) { got <- b }))

	payload := []byte(`{"messageId":1,"content":"hello"}`)
	var delivered []byte
	require.Eventually(t, func() bool {
		if err := peer.Publish("messages.9", payload); err != nil {
			return false
		}
		select {
		case delivered = <-got:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, string(payload), string(delivered))

	outbox, err := peer.SubscribeSync(SendSubject)
	require.NoError(t, err)
	require.NoError(t, peer.Flush())

	require.NoError(t, sess.Publish(ctx, d.SendDestination(), []byte(`{"content":"x"}`)))
	msg, err := outbox.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"x"}`, string(msg.Data))
	assert.NoError(t, sess.Err())
}

func TestSessionPublishHonorsContext(t *testing.T) {
	d, _, _ := runServer(t)
	sess, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sess.Publish(ctx, SendSubject, []byte(`{}`)), context.Canceled)
}

func TestSessionReportsLostServer(t *testing.T) {
	d, shutdown, _ := runServer(t)

	sess, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer sess.Close()
	assert.NoError(t, sess.Err())

	shutdown()
	select {
	case <-sess.Done():
		assert.Error(t, sess.Err())
	case <-time.After(3 * time.Second):
		t.Fatal("session not reported lost")
	}
}

func TestDialRejectsBadToken(t *testing.T) {
	d, _, _ := runServer(t)
	d.Tokens = auth.NewStaticToken("wrong")

	_, err := d.Dial(context.Background())
	assert.ErrorContains(t, err, "failed to connect to NATS")
}

func TestDialUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = (&Dialer{URL: "nats://" + addr}).Dial(context.Background())
	assert.ErrorContains(t, err, "failed to connect to NATS")
}
