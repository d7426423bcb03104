package chatsync

import (
	"context"

	"collaboraid-sync/internal/domain"
)

// HistoryFetcher reads message history over REST.
type HistoryFetcher interface {
	GetReceived(ctx context.Context) ([]domain.Message, error)
	GetSent(ctx context.Context) ([]domain.Message, error)
	GetConversation(ctx context.Context, counterpart domain.UserID) ([]domain.Message, error)
}

// ReadMarker persists read receipts on the backend.
type ReadMarker interface {
	MarkRead(ctx context.Context, messageID string) error
}

// MessageSender is the REST fallback used when the push channel is down.
type MessageSender interface {
	Send(ctx context.Context, out domain.Outbound) (domain.Message, error)
}

// PushChannel is a long-lived subscription to the per-user message topic.
// Handlers receive already normalized messages on the transport's goroutine.
type PushChannel interface {
	Connect(ctx context.Context) (domain.ConnectionState, error)
	Subscribe(user domain.UserID, handler func(domain.Message)) error
	Publish(ctx context.Context, out domain.Outbound) error
	State() domain.ConnectionState
	Watch(fn func(domain.ConnectionState))
	Disconnect() error
}

type ParticipantCache interface {
	Get(ctx context.Context, id domain.UserID) (domain.Participant, bool, error)
	Put(ctx context.Context, p domain.Participant) error
}
