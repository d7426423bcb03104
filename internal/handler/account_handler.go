package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"collaboraid-sync/internal/domain"
	"collaboraid-sync/internal/transport/httpdto"
	collab_errors "collaboraid-sync/pkg/errors"
)

type AdminDirectory interface {
	Admins(ctx context.Context) ([]domain.Participant, error)
}

type AdminRoleRequester interface {
	RequestAdminRole(ctx context.Context) error
	AdminCooldownRemaining(ctx context.Context) (time.Duration, error)
}

// AccountHandler serves the signed-in user's account endpoints.
type AccountHandler struct {
	directory AdminDirectory
	session   AdminRoleRequester
}

func NewAccountHandler(directory AdminDirectory, session AdminRoleRequester) *AccountHandler {
	return &AccountHandler{directory: directory, session: session}
}

func (h *AccountHandler) Admins(c *gin.Context) {
	admins, err := h.directory.Admins(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromParticipants(admins)))
}

func (h *AccountHandler) RequestAdmin(c *gin.Context) {
	err := h.session.RequestAdminRole(c.Request.Context())
	var ce *collab_errors.CooldownError
	if errors.As(err, &ce) {
		_ = c.Error(err)
		c.JSON(http.StatusTooManyRequests, httpdto.NewFailureResponse(cooldownView(ce.Remaining), err.Error(), "COOLDOWN_ACTIVE"))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"requested": true}))
}

func (h *AccountHandler) AdminCooldown(c *gin.Context) {
	left, err := h.session.AdminCooldownRemaining(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(cooldownView(left)))
}

func cooldownView(d time.Duration) httpdto.CooldownResponse {
	return httpdto.CooldownResponse{RemainingSeconds: int64(math.Ceil(d.Seconds()))}
}
