package httpdto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"collaboraid-sync/internal/domain"
	collab_errors "collaboraid-sync/pkg/errors"
)

// UserRef is the nested participant form used by push payloads.
type UserRef struct {
	ID       json.RawMessage `json:"id,omitempty"`
	Username string          `json:"username,omitempty"`
	Email    string          `json:"email,omitempty"`
	Role     string          `json:"role,omitempty"`
}

// MessageDTO accepts every shape the backend has been seen to emit: REST
// history rows (messageId, flat sender fields) and push events (nested
// sender/receiver objects, clientId or tempId).
type MessageDTO struct {
	MessageID json.RawMessage `json:"messageId,omitempty"`
	ID        json.RawMessage `json:"id,omitempty"`

	SenderID       json.RawMessage `json:"senderId,omitempty"`
	SenderUsername string          `json:"senderUsername,omitempty"`
	SenderEmail    string          `json:"senderEmail,omitempty"`
	SenderRole     string          `json:"senderRole,omitempty"`
	SenderAvatar   string          `json:"senderAvatar,omitempty"`
	Sender         *UserRef        `json:"sender,omitempty"`

	ReceiverID       json.RawMessage `json:"receiverId,omitempty"`
	ReceiverUsername string          `json:"receiverUsername,omitempty"`
	ReceiverEmail    string          `json:"receiverEmail,omitempty"`
	ReceiverRole     string          `json:"receiverRole,omitempty"`
	ReceiverAvatar   string          `json:"receiverAvatar,omitempty"`
	Receiver         *UserRef        `json:"receiver,omitempty"`

	Content   string          `json:"content"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Read      *bool           `json:"read,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
	TempID    string          `json:"tempId,omitempty"`
	TaskID    json.RawMessage `json:"taskId,omitempty"`
	TaskTitle string          `json:"taskTitle,omitempty"`
}

// Normalizer turns wire payloads into domain messages. Loc is the zone used
// for the backend's zone-less LocalDateTime values; Now supplies the receipt
// time for payloads without a timestamp.
type Normalizer struct {
	Self domain.UserID
	Loc  *time.Location
	Now  func() time.Time
}

func (n Normalizer) location() *time.Location {
	if n.Loc == nil {
		return time.UTC
	}
	return n.Loc
}

func (n Normalizer) now() time.Time {
	if n.Now == nil {
		return time.Now()
	}
	return n.Now()
}

// Decode parses a single raw payload.
func (n Normalizer) Decode(raw []byte) (domain.Message, error) {
	var dto MessageDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", collab_errors.ErrMalformedEvent, err)
	}
	return n.Message(dto)
}

// DecodeList parses a JSON array of messages, skipping entries that fail
// normalization. The number of skipped entries is returned.
func (n Normalizer) DecodeList(raw []byte) ([]domain.Message, int, error) {
	var dtos []MessageDTO
	if err := json.Unmarshal(raw, &dtos); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", collab_errors.ErrMalformedEvent, err)
	}
	out := make([]domain.Message, 0, len(dtos))
	skipped := 0
	for _, dto := range dtos {
		m, err := n.Message(dto)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, m)
	}
	return out, skipped, nil
}

func (n Normalizer) Message(dto MessageDTO) (domain.Message, error) {
	var m domain.Message

	id, err := rawString(firstPresent(dto.MessageID, dto.ID))
	if err != nil {
		return m, fmt.Errorf("%w: id: %v", collab_errors.ErrMalformedEvent, err)
	}
	m.ID = id

	m.Sender, err = participant(dto.SenderID, dto.Sender, domain.Participant{
		Name: dto.SenderUsername, Email: dto.SenderEmail, Role: dto.SenderRole, Avatar: dto.SenderAvatar,
	})
	if err != nil {
		return m, fmt.Errorf("%w: sender: %v", collab_errors.ErrMalformedEvent, err)
	}
	m.Receiver, err = participant(dto.ReceiverID, dto.Receiver, domain.Participant{
		Name: dto.ReceiverUsername, Email: dto.ReceiverEmail, Role: dto.ReceiverRole, Avatar: dto.ReceiverAvatar,
	})
	if err != nil {
		return m, fmt.Errorf("%w: receiver: %v", collab_errors.ErrMalformedEvent, err)
	}

	if len(dto.Timestamp) == 0 || string(dto.Timestamp) == "null" {
		m.Timestamp = n.now()
	} else {
		m.Timestamp, err = ParseTimestamp(dto.Timestamp, n.location())
		if err != nil {
			return m, fmt.Errorf("%w: timestamp: %v", collab_errors.ErrMalformedEvent, err)
		}
	}

	m.Content = dto.Content
	m.ClientID = dto.ClientID
	if m.ClientID == "" {
		m.ClientID = dto.TempID
	}
	if m.TaskID, err = rawString(dto.TaskID); err != nil {
		return m, fmt.Errorf("%w: taskId: %v", collab_errors.ErrMalformedEvent, err)
	}
	m.TaskTitle = dto.TaskTitle
	m.Status = domain.StatusSent

	switch {
	case n.Self != 0 && m.Sender.ID == n.Self:
		m.Read = true
	case dto.Read != nil:
		m.Read = *dto.Read
	}
	return m, nil
}

func participant(flatID json.RawMessage, ref *UserRef, flat domain.Participant) (domain.Participant, error) {
	raw := flatID
	if ref != nil && len(raw) == 0 {
		raw = ref.ID
	}
	s, err := rawString(raw)
	if err != nil {
		return domain.Participant{}, err
	}
	if s == "" {
		return domain.Participant{}, fmt.Errorf("missing id")
	}
	id, err := domain.ParseUserID(s)
	if err != nil || id <= 0 {
		return domain.Participant{}, fmt.Errorf("invalid id %q", s)
	}
	p := flat
	p.ID = id
	if ref != nil {
		p, _ = p.Fill(domain.Participant{Name: ref.Username, Email: ref.Email, Role: ref.Role})
	}
	return p, nil
}

func firstPresent(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}

// rawString renders a JSON number or string as a plain string.
func rawString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", err
	}
	if i, err := num.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return num.String(), nil
}

// SendMessageRequest is the body of POST /messages/send-authenticated.
type SendMessageRequest struct {
	ReceiverID domain.UserID `json:"receiverId"`
	Content    string        `json:"content"`
	ClientID   string        `json:"clientId,omitempty"`
}

func NewSendMessageRequest(out domain.Outbound) SendMessageRequest {
	return SendMessageRequest{
		ReceiverID: out.Receiver.ID,
		Content:    out.Content,
		ClientID:   out.ClientID,
	}
}

type EnvelopeParty struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username,omitempty"`
}

// SendEnvelope is what the push channel publishes to the send destination.
type SendEnvelope struct {
	Sender   EnvelopeParty `json:"sender"`
	Receiver EnvelopeParty `json:"receiver"`
	Content  string        `json:"content"`
	ClientID string        `json:"clientId"`
}

func NewSendEnvelope(out domain.Outbound) SendEnvelope {
	return SendEnvelope{
		Sender:   EnvelopeParty{ID: out.Sender.ID, Username: out.Sender.Name},
		Receiver: EnvelopeParty{ID: out.Receiver.ID, Username: out.Receiver.Name},
		Content:  out.Content,
		ClientID: out.ClientID,
	}
}
