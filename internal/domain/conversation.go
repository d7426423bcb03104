package domain

import (
	"time"
)

// Conversation is the derived view of all messages exchanged with one
// counterpart, ordered by timestamp.
type Conversation struct {
	Counterpart    Participant `json:"counterpart"`
	Messages       []Message   `json:"messages"`
	UnreadCount    int         `json:"unreadCount"`
	LastActivityAt time.Time   `json:"lastActivityAt"`
}

type ConversationSummary struct {
	Counterpart    Participant `json:"counterpart"`
	LastMessage    Message     `json:"lastMessage"`
	UnreadCount    int         `json:"unreadCount"`
	LastActivityAt time.Time   `json:"lastActivityAt"`
}

func (c Conversation) Summary() ConversationSummary {
	s := ConversationSummary{
		Counterpart:    c.Counterpart,
		UnreadCount:    c.UnreadCount,
		LastActivityAt: c.LastActivityAt,
	}
	if n := len(c.Messages); n > 0 {
		s.LastMessage = c.Messages[n-1]
	}
	return s
}
