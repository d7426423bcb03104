package collab_errors

import (
	"errors"
	"fmt"
	"time"
)

// Common errors
var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrRateLimited          = errors.New("rate limited")
	ErrServiceUnavailable   = errors.New("service unavailable")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrMalformedEvent       = errors.New("malformed message event")
	ErrNotConnected         = errors.New("push channel not connected")
	ErrCooldownActive       = errors.New("cooldown active")
	ErrUnknownMessage       = errors.New("unknown message")
)

// FetchError reports a failed history read. Op names the endpoint, Status is
// the HTTP status when a response was received.
type FetchError struct {
	Op     string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SendError reports that neither the push channel nor the REST fallback
// accepted a message.
type SendError struct {
	ClientID string
	Status   int
	Err      error
}

func (e *SendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("send %s: status %d: %v", e.ClientID, e.Status, e.Err)
	}
	return fmt.Sprintf("send %s: %v", e.ClientID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%v: retry in %s", ErrCooldownActive, e.Remaining.Round(time.Second))
}

func (e *CooldownError) Unwrap() error { return ErrCooldownActive }

// StatusError maps an HTTP status to the matching sentinel, or a generic error.
func StatusError(status int) error {
	switch {
	case status == 401:
		return ErrUnauthorized
	case status == 403:
		return ErrForbidden
	case status == 404:
		return ErrNotFound
	case status == 429:
		return ErrRateLimited
	case status == 400 || status == 422:
		return ErrInvalidInput
	case status >= 500:
		return ErrServiceUnavailable
	}
	return fmt.Errorf("unexpected status %d", status)
}
