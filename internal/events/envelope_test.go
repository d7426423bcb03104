package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrap(t *testing.T) {
	payload := []byte(`{"messageId":7,"content":"hi"}`)
	env := NewEnvelope(EventMessageCreated, "7", payload, time.Unix(0, 0))
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	assert.JSONEq(t, string(payload), string(Unwrap(raw)))
	assert.Equal(t, payload, Unwrap(payload))
	assert.Equal(t, []byte("not json"), Unwrap([]byte("not json")))
	assert.Equal(t, []byte(`{"event_type":"x","payload":null}`), Unwrap([]byte(`{"event_type":"x","payload":null}`)))
}

func TestUserChannel(t *testing.T) {
	assert.Equal(t, "channel:user:12", UserChannel(12))
}
