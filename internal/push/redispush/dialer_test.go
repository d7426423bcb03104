package redispush

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaboraid-sync/internal/events"
)

func newDialer(t *testing.T) (*Dialer, *miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &Dialer{Client: client, PingInterval: 50 * time.Millisecond}, mr, client
}

func TestChannels(t *testing.T) {
	d := &Dialer{}
	assert.Equal(t, "redis", d.Name())
	assert.Equal(t, "channel:user:9", d.InboxTopic(9))
	assert.Equal(t, "channel:messages:send", d.SendDestination())
}

func TestSessionDeliversUnwrappedPayloads(t *testing.T) {
	d, _, client := newDialer(t)
	ctx := context.Background()

	sess, err := d.Dial(ctx)
	require.NoError(t, err)
	defer sess.Close()

	got := make(chan []byte, 16)
	require.NoError(t, sess.Subscribe(d.InboxTopic(9), func(b []byte) { got <- b }))

	payload := []byte(`{"messageId":1,"content":"hello"}`)
	env, err := json.Marshal(events.NewEnvelope(events.EventMessageCreated, "1", payload, time.Now()))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, err := client.Publish(ctx, "channel:user:9", env).Result()
		return err == nil && n > 0
	}, time.Second, 10*time.Millisecond)

	select {
	case b := <-got:
		assert.JSONEq(t, string(payload), string(b))
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestSessionPublishWrapsEnvelope(t *testing.T) {
	d, _, client := newDialer(t)
	ctx := context.Background()

	listener := client.Subscribe(ctx, events.SendChannel)
	defer listener.Close()
	_, err := listener.Receive(ctx)
	require.NoError(t, err)

	sess, err := d.Dial(ctx)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Publish(ctx, d.SendDestination(), []byte(`{"content":"x"}`)))

	msg, err := listener.ReceiveMessage(ctx)
	require.NoError(t, err)
	var env events.Envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, events.EventMessageSend, env.EventType)
	assert.JSONEq(t, `{"content":"x"}`, string(env.Payload))
}

func TestSessionReportsLostServer(t *testing.T) {
	d, mr, _ := newDialer(t)

	sess, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	mr.Close()
	select {
	case <-sess.Done():
		assert.Error(t, sess.Err())
	case <-time.After(3 * time.Second):
		t.Fatal("session not reported lost")
	}
}

func TestDialUnreachable(t *testing.T) {
	d, mr, _ := newDialer(t)
	mr.Close()
	_, err := d.Dial(context.Background())
	assert.ErrorContains(t, err, "failed to reach redis")
}
