package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"collaboraid-sync/internal/auth"
	"collaboraid-sync/internal/domain"
	"collaboraid-sync/internal/transport/httpdto"
	collab_errors "collaboraid-sync/pkg/errors"
	"collaboraid-sync/pkg/logger"
)

const maxBody = 8 << 20

type Config struct {
	BaseURL    string
	Tokens     auth.TokenSource
	Timeout    time.Duration
	Normalizer httpdto.Normalizer
	Logger     *logger.Logger
	// Transport overrides the underlying round tripper, mostly for tests.
	Transport http.RoundTripper
}

// Client talks to the CollaborAid REST API. It implements the history,
// send and read-receipt ports of the sync engine.
type Client struct {
	baseURL string
	http    *http.Client
	norm    httpdto.Normalizer
	logger  *logger.Logger
}

func New(cfg Config) *Client {
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: &bearerTransport{base: base, tokens: cfg.Tokens},
		},
		norm:   cfg.Normalizer,
		logger: logger.OrNop(cfg.Logger).Named("rest"),
	}
}

func (c *Client) GetReceived(ctx context.Context) ([]domain.Message, error) {
	return c.list(ctx, "received", "/messages/received")
}

func (c *Client) GetSent(ctx context.Context) ([]domain.Message, error) {
	return c.list(ctx, "sent", "/messages/sent")
}

func (c *Client) GetConversation(ctx context.Context, counterpart domain.UserID) ([]domain.Message, error) {
	return c.list(ctx, "conversation", "/messages/conversation/user-authenticated/"+counterpart.String())
}

func (c *Client) list(ctx context.Context, op, path string) ([]domain.Message, error) {
	body, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, &collab_errors.FetchError{Op: op, Status: status, Err: err}
	}
	msgs, skipped, err := c.norm.DecodeList(body)
	if err != nil {
		return nil, &collab_errors.FetchError{Op: op, Status: status, Err: err}
	}
	if skipped > 0 {
		c.logger.Warnf("%s: skipped %d malformed messages", op, skipped)
	}
	return msgs, nil
}

// Send posts a message. When the response body is not a message (older
// backends answer with plain text) the returned message carries only the
// request fields and no server id.
func (c *Client) Send(ctx context.Context, out domain.Outbound) (domain.Message, error) {
	body, status, err := c.do(ctx, http.MethodPost, "/messages/send-authenticated", httpdto.NewSendMessageRequest(out))
	if err != nil {
		return domain.Message{}, &collab_errors.SendError{ClientID: out.ClientID, Status: status, Err: err}
	}
	m, err := c.norm.Decode(body)
	if err != nil {
		c.logger.Debugf("send %s: response is not a message: %v", out.ClientID, err)
		return domain.Message{
			ClientID: out.ClientID,
			Sender:   out.Sender,
			Receiver: out.Receiver,
			Content:  out.Content,
			Read:     true,
			Status:   domain.StatusSent,
		}, nil
	}
	if m.ClientID == "" {
		m.ClientID = out.ClientID
	}
	return m, nil
}

func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	_, status, err := c.do(ctx, http.MethodPut, "/messages/"+messageID+"/read", nil)
	if err != nil {
		return &collab_errors.FetchError{Op: "mark-read", Status: status, Err: err}
	}
	return nil
}

func (c *Client) CurrentUser(ctx context.Context) (domain.Participant, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/auth/current-user", nil)
	if err != nil {
		return domain.Participant{}, &collab_errors.FetchError{Op: "current-user", Status: status, Err: err}
	}
	var u httpdto.UserDTO
	if err := json.Unmarshal(body, &u); err != nil {
		return domain.Participant{}, &collab_errors.FetchError{Op: "current-user", Status: status, Err: err}
	}
	return u.Participant()
}

// Admins lists the support staff a user can open a conversation with.
func (c *Client) Admins(ctx context.Context) ([]domain.Participant, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/auth/admins", nil)
	if err != nil {
		return nil, &collab_errors.FetchError{Op: "admins", Status: status, Err: err}
	}
	var users []httpdto.UserDTO
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, &collab_errors.FetchError{Op: "admins", Status: status, Err: err}
	}
	out := make([]domain.Participant, 0, len(users))
	for _, u := range users {
		p, err := u.Participant()
		if err != nil {
			c.logger.Warnf("admins: %v", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *Client) RequestAdminRole(ctx context.Context) error {
	_, status, err := c.do(ctx, http.MethodPost, "/auth/request-admin-role", nil)
	if err != nil {
		return &collab_errors.FetchError{Op: "request-admin-role", Status: status, Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	c.logger.Debugf("%s %s %d %s", method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		cause := collab_errors.StatusError(resp.StatusCode)
		if msg := strings.TrimSpace(string(body)); msg != "" && len(msg) < 256 {
			cause = fmt.Errorf("%w: %s", cause, msg)
		}
		return body, resp.StatusCode, cause
	}
	return body, resp.StatusCode, nil
}

// bearerTransport attaches the current access token to every request.
type bearerTransport struct {
	base   http.RoundTripper
	tokens auth.TokenSource
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.tokens == nil {
		return t.base.RoundTrip(req)
	}
	token, err := t.tokens.Token(req.Context())
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(clone)
}
