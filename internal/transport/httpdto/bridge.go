package httpdto

import (
	"time"

	"collaboraid-sync/internal/domain"
)

// SendRequest is used for POST /v1/conversations/:id/messages
type SendRequest struct {
	Content string `json:"content" binding:"required"`
}

type ParticipantDTO struct {
	ID     domain.UserID `json:"id"`
	Name   string        `json:"name"`
	Email  string        `json:"email,omitempty"`
	Role   string        `json:"role,omitempty"`
	Avatar string        `json:"avatar,omitempty"`
}

func FromParticipant(p domain.Participant) ParticipantDTO {
	return ParticipantDTO{
		ID:     p.ID,
		Name:   p.DisplayName(),
		Email:  p.Email,
		Role:   p.Role,
		Avatar: p.Avatar,
	}
}

func FromParticipants(ps []domain.Participant) []ParticipantDTO {
	out := make([]ParticipantDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, FromParticipant(p))
	}
	return out
}

type MessageView struct {
	ID        string        `json:"id,omitempty"`
	ClientID  string        `json:"clientId,omitempty"`
	SenderID  domain.UserID `json:"senderId"`
	Receiver  domain.UserID `json:"receiverId"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	Read      bool          `json:"read"`
	Status    domain.Status `json:"status"`
	TaskID    string        `json:"taskId,omitempty"`
	TaskTitle string        `json:"taskTitle,omitempty"`
}

func FromMessage(m domain.Message) MessageView {
	return MessageView{
		ID:        m.ID,
		ClientID:  m.ClientID,
		SenderID:  m.Sender.ID,
		Receiver:  m.Receiver.ID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Read:      m.Read,
		Status:    m.Status,
		TaskID:    m.TaskID,
		TaskTitle: m.TaskTitle,
	}
}

func FromMessages(ms []domain.Message) []MessageView {
	out := make([]MessageView, 0, len(ms))
	for _, m := range ms {
		out = append(out, FromMessage(m))
	}
	return out
}

type ConversationView struct {
	Counterpart    ParticipantDTO `json:"counterpart"`
	Messages       []MessageView  `json:"messages"`
	UnreadCount    int            `json:"unreadCount"`
	LastActivityAt time.Time      `json:"lastActivityAt"`
}

func FromConversation(c domain.Conversation) ConversationView {
	return ConversationView{
		Counterpart:    FromParticipant(c.Counterpart),
		Messages:       FromMessages(c.Messages),
		UnreadCount:    c.UnreadCount,
		LastActivityAt: c.LastActivityAt,
	}
}

type SummaryView struct {
	Counterpart    ParticipantDTO `json:"counterpart"`
	LastMessage    *MessageView   `json:"lastMessage,omitempty"`
	UnreadCount    int            `json:"unreadCount"`
	LastActivityAt time.Time      `json:"lastActivityAt"`
}

func FromSummary(s domain.ConversationSummary) SummaryView {
	v := SummaryView{
		Counterpart:    FromParticipant(s.Counterpart),
		UnreadCount:    s.UnreadCount,
		LastActivityAt: s.LastActivityAt,
	}
	if !s.LastMessage.Timestamp.IsZero() {
		m := FromMessage(s.LastMessage)
		v.LastMessage = &m
	}
	return v
}

func FromSummaries(ss []domain.ConversationSummary) []SummaryView {
	out := make([]SummaryView, 0, len(ss))
	for _, s := range ss {
		out = append(out, FromSummary(s))
	}
	return out
}

type PendingView struct {
	ClientID    string        `json:"clientId"`
	Counterpart domain.UserID `json:"counterpartId"`
	Transport   string        `json:"transport,omitempty"`
	Status      domain.Status `json:"status"`
	Message     MessageView   `json:"message"`
}

type StatusResponse struct {
	Self          ParticipantDTO         `json:"self"`
	State         domain.ConnectionState `json:"state"`
	Active        *ParticipantDTO        `json:"active,omitempty"`
	Conversations int                    `json:"conversations"`
}

type CooldownResponse struct {
	RemainingSeconds int64 `json:"remainingSeconds"`
}
