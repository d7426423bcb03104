package websocket

import (
	"fmt"
	"strings"

	"collaboraid-sync/internal/domain"
)

const (
	ChannelSummaries = "summaries"
	ChannelStatus    = "status"

	channelPrefixConversation = "conversation:"
)

func ConversationChannel(id domain.UserID) string {
	return fmt.Sprintf("%s%s", channelPrefixConversation, id)
}

// CanSubscribe accepts the summary and status channels and any
// conversation:{userId} channel.
func CanSubscribe(channel string) bool {
	switch channel {
	case ChannelSummaries, ChannelStatus:
		return true
	}
	if !strings.HasPrefix(channel, channelPrefixConversation) {
		return false
	}
	id, err := domain.ParseUserID(strings.TrimPrefix(channel, channelPrefixConversation))
	return err == nil && id > 0
}
