package domain

import (
	"time"
)

// Message is a single chat message between two participants. ID is the
// server identity and stays empty for an optimistic local echo until the
// backend confirms it.
type Message struct {
	ID        string      `json:"id,omitempty"`
	ClientID  string      `json:"clientId,omitempty"`
	Sender    Participant `json:"sender"`
	Receiver  Participant `json:"receiver"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Read      bool        `json:"read"`
	Status    Status      `json:"status"`
	TaskID    string      `json:"taskId,omitempty"`
	TaskTitle string      `json:"taskTitle,omitempty"`
}

// Counterpart returns the participant on the other side of the message from
// self's point of view. ok is false when self is not a party to it.
func (m Message) Counterpart(self UserID) (Participant, bool) {
	switch self {
	case m.Sender.ID:
		return m.Receiver, true
	case m.Receiver.ID:
		return m.Sender, true
	}
	return Participant{}, false
}

func (m Message) Authoritative() bool {
	return m.ID != ""
}

// Outbound is a message handed to a transport for delivery.
type Outbound struct {
	ClientID string
	Sender   Participant
	Receiver Participant
	Content  string
}
