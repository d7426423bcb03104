package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"collaboraid-sync/internal/transport/httpdto"
)

type Refresher interface {
	Trigger(ctx context.Context) error
}

type StatusHandler struct {
	engine    Engine
	refresher Refresher
}

func NewStatusHandler(engine Engine, refresher Refresher) *StatusHandler {
	return &StatusHandler{engine: engine, refresher: refresher}
}

func (h *StatusHandler) Status(c *gin.Context) {
	res := httpdto.StatusResponse{
		Self:          httpdto.FromParticipant(h.engine.Self()),
		State:         h.engine.ConnectionState(),
		Conversations: len(h.engine.Conversations()),
	}
	if p, ok := h.engine.Active(); ok {
		dto := httpdto.FromParticipant(p)
		res.Active = &dto
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(res))
}

// Refresh reconciles history now. Manual refreshes share one rate budget.
func (h *StatusHandler) Refresh(c *gin.Context) {
	if err := h.refresher.Trigger(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromSummaries(h.engine.Conversations())))
}
