package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"collaboraid-sync/internal/transport/httpdto"
	collab_errors "collaboraid-sync/pkg/errors"
)

func httpStatus(err error) int {
	var (
		se *collab_errors.SendError
		fe *collab_errors.FetchError
	)
	switch {
	case errors.Is(err, collab_errors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, collab_errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, collab_errors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, collab_errors.ErrNotFound), errors.Is(err, collab_errors.ErrUnknownMessage):
		return http.StatusNotFound
	case errors.Is(err, collab_errors.ErrNoActiveConversation):
		return http.StatusConflict
	case errors.Is(err, collab_errors.ErrRateLimited), errors.Is(err, collab_errors.ErrCooldownActive):
		return http.StatusTooManyRequests
	case errors.As(err, &se), errors.As(err, &fe), errors.Is(err, collab_errors.ErrServiceUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	var (
		se *collab_errors.SendError
		fe *collab_errors.FetchError
	)
	switch {
	case errors.Is(err, collab_errors.ErrCooldownActive):
		return "COOLDOWN_ACTIVE"
	case errors.As(err, &se):
		return "SEND_FAILED"
	case errors.As(err, &fe):
		return "FETCH_FAILED"
	}
	switch httpStatus(err) {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusBadGateway:
		return "UPSTREAM_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(httpStatus(err), httpdto.NewErrorResponse(err.Error(), errorCode(err)))
}
