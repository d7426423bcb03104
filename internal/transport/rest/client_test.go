package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaboraid-sync/internal/auth"
	"collaboraid-sync/internal/domain"
	"collaboraid-sync/internal/transport/httpdto"
	collab_errors "collaboraid-sync/pkg/errors"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:    srv.URL + "/api/",
		Tokens:     auth.NewStaticToken("secret"),
		Timeout:    time.Second,
		Normalizer: httpdto.Normalizer{Self: 1},
	})
}

func TestGetConversationSendsBearerAndNormalizes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages/conversation/user-authenticated/2", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, `[
			{"messageId":1,"senderId":2,"receiverId":1,"content":"hi","timestamp":"2025-04-30T12:00:00","read":false},
			{"messageId":2,"senderId":1,"receiverId":2,"content":"hello","timestamp":"2025-04-30T12:00:05"},
			{"messageId":3,"content":"broken"}
		]`)
	})
	c := newTestClient(t, mux)

	msgs, err := c.GetConversation(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "1", msgs[0].ID)
	assert.False(t, msgs[0].Read)
	assert.True(t, msgs[1].Read, "own message")
}

func TestFetchErrorCarriesStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages/received", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	})
	c := newTestClient(t, mux)

	_, err := c.GetReceived(context.Background())
	var fe *collab_errors.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "received", fe.Op)
	assert.Equal(t, http.StatusUnauthorized, fe.Status)
	assert.ErrorIs(t, err, collab_errors.ErrUnauthorized)
}

func TestSendPostsClientID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages/send-authenticated", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req httpdto.SendMessageRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, domain.UserID(2), req.ReceiverID)
		assert.Equal(t, "c-1", req.ClientID)
		_, _ = io.WriteString(w, `{"messageId":77,"senderId":1,"receiverId":2,"content":"hey","timestamp":"2025-04-30T12:00:00"}`)
	})
	c := newTestClient(t, mux)

	m, err := c.Send(context.Background(), domain.Outbound{
		ClientID: "c-1",
		Sender:   domain.Participant{ID: 1},
		Receiver: domain.Participant{ID: 2},
		Content:  "hey",
	})
	require.NoError(t, err)
	assert.Equal(t, "77", m.ID)
	assert.Equal(t, "c-1", m.ClientID)
}

func TestSendPlainTextResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages/send-authenticated", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "Message sent")
	})
	c := newTestClient(t, mux)

	m, err := c.Send(context.Background(), domain.Outbound{ClientID: "c-2", Receiver: domain.Participant{ID: 2}, Content: "x"})
	require.NoError(t, err)
	assert.Empty(t, m.ID)
	assert.Equal(t, domain.StatusSent, m.Status)
}

func TestSendFailureIsSendError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages/send-authenticated", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestClient(t, mux)

	_, err := c.Send(context.Background(), domain.Outbound{ClientID: "c-3", Receiver: domain.Participant{ID: 2}, Content: "x"})
	var se *collab_errors.SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "c-3", se.ClientID)
	assert.Equal(t, http.StatusBadGateway, se.Status)
	assert.ErrorIs(t, err, collab_errors.ErrServiceUnavailable)
}

func TestAdminsAndCurrentUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/admins", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":5,"username":"root","email":"root@example.com","role":"ADMIN"},{"id":null}]`)
	})
	mux.HandleFunc("/api/auth/current-user", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":1,"username":"me","role":"USER","profilePicture":"/p.png"}`)
	})
	mux.HandleFunc("/api/messages/9/read", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
	})
	c := newTestClient(t, mux)

	admins, err := c.Admins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Participant{{ID: 5, Name: "root", Email: "root@example.com", Role: "ADMIN"}}, admins)

	self, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Participant{ID: 1, Name: "me", Role: "USER", Avatar: "/p.png"}, self)

	require.NoError(t, c.MarkRead(context.Background(), "9"))
}

func TestMissingTokenFailsBeforeRequest(t *testing.T) {
	called := false
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages/sent", func(w http.ResponseWriter, r *http.Request) { called = true })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api", Tokens: auth.NewStaticToken("")})
	_, err := c.GetSent(context.Background())
	assert.ErrorIs(t, err, collab_errors.ErrUnauthorized)
	assert.False(t, called)
}
