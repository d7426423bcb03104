package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"collaboraid-sync/internal/domain"
	collab_errors "collaboraid-sync/pkg/errors"
)

// TokenSource supplies the bearer token attached to backend requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Claims are the fields the client reads from the backend's access token.
// The signature is not verified here; the backend does that.
type Claims struct {
	UserID    domain.UserID
	Subject   string
	Role      string
	ExpiresAt time.Time
}

func ParseClaims(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}
	var c Claims
	if sub, err := mc.GetSubject(); err == nil {
		c.Subject = sub
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	switch v := mc["id"].(type) {
	case float64:
		c.UserID = domain.UserID(v)
	case string:
		if id, err := domain.ParseUserID(v); err == nil {
			c.UserID = id
		}
	}
	if role, ok := mc["role"].(string); ok {
		c.Role = role
	}
	return c, nil
}

// StaticToken serves a token configured up front. Opaque (non-JWT) tokens
// are passed through; JWTs are refused once expired so callers fail fast
// instead of collecting 401s.
type StaticToken struct {
	token  string
	claims Claims
	now    func() time.Time
}

func NewStaticToken(token string) *StaticToken {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	st := &StaticToken{token: token, now: time.Now}
	if claims, err := ParseClaims(token); err == nil {
		st.claims = claims
	}
	return st
}

func (s *StaticToken) Claims() Claims {
	return s.claims
}

func (s *StaticToken) Token(context.Context) (string, error) {
	if s.token == "" {
		return "", fmt.Errorf("%w: no token configured", collab_errors.ErrUnauthorized)
	}
	if !s.claims.ExpiresAt.IsZero() && !s.now().Before(s.claims.ExpiresAt) {
		return "", fmt.Errorf("%w: token expired at %s", collab_errors.ErrUnauthorized, s.claims.ExpiresAt.Format(time.RFC3339))
	}
	return s.token, nil
}
