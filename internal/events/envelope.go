package events

import (
	"encoding/json"
	"time"
)

const (
	EventMessageCreated = "message.created"
	EventMessageSend    = "message.send"

	AggregateMessage = "message"
)

// Envelope wraps message payloads carried over Redis pub/sub.
type Envelope struct {
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, aggregateID string, payload []byte, now time.Time) Envelope {
	return Envelope{
		EventType:     eventType,
		AggregateType: AggregateMessage,
		AggregateID:   aggregateID,
		OccurredAt:    now.UTC(),
		Payload:       json.RawMessage(payload),
	}
}

// Unwrap returns the payload of an enveloped event. Anything that does not
// look like an envelope is returned as is, so relays that publish bare
// message JSON keep working.
func Unwrap(raw []byte) []byte {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return raw
	}
	if env.EventType == "" || len(env.Payload) == 0 || string(env.Payload) == "null" {
		return raw
	}
	return env.Payload
}
