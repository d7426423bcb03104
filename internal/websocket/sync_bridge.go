package websocket

import (
	"encoding/json"

	"collaboraid-sync/internal/chatsync"
	"collaboraid-sync/internal/transport/httpdto"
	"collaboraid-sync/pkg/logger"
)

// Event is the frame written to UI clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SyncBridge forwards engine updates to the hub. Register Handle with the
// engine's Subscribe.
type SyncBridge struct {
	hub    *Hub
	logger *logger.Logger
}

func NewSyncBridge(hub *Hub, l *logger.Logger) *SyncBridge {
	return &SyncBridge{hub: hub, logger: logger.OrNop(l).Named("sync_bridge")}
}

func (b *SyncBridge) Handle(u chatsync.Update) {
	switch u.Kind {
	case chatsync.UpdateConnection:
		b.publish(ChannelStatus, "status", fields{"state": u.State})
	case chatsync.UpdateConversation:
		if u.Conversation != nil {
			b.publish(ConversationChannel(u.CounterpartID), "conversation", fields{
				"conversation": httpdto.FromConversation(*u.Conversation),
				"appended":     u.Appended,
				"autoScroll":   u.AutoScroll,
			})
		}
		if u.Summary != nil {
			b.publish(ChannelSummaries, "summary", httpdto.FromSummary(*u.Summary))
		}
	case chatsync.UpdateSummary:
		if u.Summary != nil {
			b.publish(ChannelSummaries, "summary", httpdto.FromSummary(*u.Summary))
		}
	case chatsync.UpdateFailed:
		if u.Failed != nil {
			b.publish(ConversationChannel(u.CounterpartID), "failed", httpdto.FromMessage(*u.Failed))
		}
	}
}

type fields map[string]interface{}

func (b *SyncBridge) publish(channel, kind string, data interface{}) {
	payload, err := json.Marshal(Event{Type: kind, Data: data})
	if err != nil {
		b.logger.Errorf("encode %s event: %v", kind, err)
		return
	}
	b.hub.Broadcast(channel, payload)
}
