package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaboraid-sync/internal/chatsync"
	"collaboraid-sync/internal/domain"
)

func runHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub()
	go h.Run(ctx)
	return h
}

func TestHubBroadcastBySubscription(t *testing.T) {
	h := runHub(t)
	a, b := NewClient(nil), NewClient(nil)
	h.Register(a)
	h.Register(b)
	h.Subscribe(a, ChannelSummaries)
	h.Subscribe(b, ChannelStatus)

	require.Eventually(t, func() bool {
		return h.GetChannelSubscriberCount(ChannelSummaries) == 1 && h.GetChannelSubscriberCount(ChannelStatus) == 1
	}, time.Second, 5*time.Millisecond)

	h.Broadcast(ChannelSummaries, []byte("x"))
	assert.Equal(t, []byte("x"), <-a.Send)
	assert.Empty(t, b.Send)
	assert.True(t, a.IsSubscribed(ChannelSummaries))
}

func TestHubUnregisterClosesClient(t *testing.T) {
	h := runHub(t)
	c := NewClient(nil)
	h.Register(c)
	h.Subscribe(c, ChannelStatus)
	require.Eventually(t, func() bool { return h.GetChannelSubscriberCount(ChannelStatus) == 1 }, time.Second, 5*time.Millisecond)

	h.Unregister(c)
	require.Eventually(t, func() bool { return h.GetClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, h.GetChannelSubscriberCount(ChannelStatus))
	_, open := <-c.Send
	assert.False(t, open)

	// late subscription for a removed client is ignored
	h.Subscribe(c, ChannelStatus)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, h.GetChannelSubscriberCount(ChannelStatus))
}

func TestCanSubscribe(t *testing.T) {
	assert.True(t, CanSubscribe("summaries"))
	assert.True(t, CanSubscribe("status"))
	assert.True(t, CanSubscribe("conversation:12"))
	assert.False(t, CanSubscribe("conversation:0"))
	assert.False(t, CanSubscribe("conversation:abc"))
	assert.False(t, CanSubscribe("channel:user:1"))
}

func TestSyncBridgeRoutesUpdates(t *testing.T) {
	h := runHub(t)
	conv, sums, status := NewClient(nil), NewClient(nil), NewClient(nil)
	for _, c := range []*Client{conv, sums, status} {
		h.Register(c)
	}
	h.Subscribe(conv, ConversationChannel(2))
	h.Subscribe(sums, ChannelSummaries)
	h.Subscribe(status, ChannelStatus)
	require.Eventually(t, func() bool {
		return h.GetChannelSubscriberCount(ConversationChannel(2)) == 1 &&
			h.GetChannelSubscriberCount(ChannelSummaries) == 1 &&
			h.GetChannelSubscriberCount(ChannelStatus) == 1
	}, time.Second, 5*time.Millisecond)

	b := NewSyncBridge(h, nil)
	c := domain.Conversation{Counterpart: domain.Participant{ID: 2}}
	s := c.Summary()
	b.Handle(chatsync.Update{Kind: chatsync.UpdateConversation, CounterpartID: 2, Conversation: &c, Summary: &s, Appended: 1, AutoScroll: true})
	b.Handle(chatsync.Update{Kind: chatsync.UpdateConnection, State: domain.Connected})

	var ev Event
	require.NoError(t, json.Unmarshal(<-conv.Send, &ev))
	assert.Equal(t, "conversation", ev.Type)
	require.NoError(t, json.Unmarshal(<-sums.Send, &ev))
	assert.Equal(t, "summary", ev.Type)

	var st struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(<-status.Send, &st))
	assert.Equal(t, "status", st.Type)
	assert.Equal(t, "CONNECTED", st.Data["state"])
}
