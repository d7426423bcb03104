// Package handler provides the local bridge's HTTP endpoints.
package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"collaboraid-sync/internal/chatsync"
	"collaboraid-sync/internal/domain"
	"collaboraid-sync/internal/transport/httpdto"
	collab_errors "collaboraid-sync/pkg/errors"
)

// Engine is the part of the sync engine the bridge drives.
type Engine interface {
	Self() domain.Participant
	ConnectionState() domain.ConnectionState
	Active() (domain.Participant, bool)
	Participant(id domain.UserID) (domain.Participant, bool)
	Conversations() []domain.ConversationSummary
	Conversation(id domain.UserID) (domain.Conversation, bool)
	Open(ctx context.Context, counterpart domain.Participant) (domain.Conversation, error)
	Send(ctx context.Context, counterpart domain.Participant, content string) (*chatsync.PendingMessage, error)
	Retry(ctx context.Context, clientID string) (*chatsync.PendingMessage, error)
	Failed(id domain.UserID) []domain.Message
}

type ConversationHandler struct {
	engine Engine
}

func NewConversationHandler(engine Engine) *ConversationHandler {
	return &ConversationHandler{engine: engine}
}

func (h *ConversationHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromSummaries(h.engine.Conversations())))
}

func (h *ConversationHandler) Get(c *gin.Context) {
	id, ok := counterpartParam(c)
	if !ok {
		return
	}
	conv, found := h.engine.Conversation(id)
	if !found {
		writeError(c, fmt.Errorf("%w: conversation with %s", collab_errors.ErrNotFound, id))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversation(conv)))
}

// Open activates the conversation. A failed history fetch still answers 200
// with the local view and the error attached.
func (h *ConversationHandler) Open(c *gin.Context) {
	id, ok := counterpartParam(c)
	if !ok {
		return
	}
	conv, err := h.engine.Open(c.Request.Context(), h.counterpart(id))
	if err != nil {
		if conv.Counterpart.ID == 0 {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, httpdto.NewPartialResponse(httpdto.FromConversation(conv), err.Error(), errorCode(err)))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversation(conv)))
}

func (h *ConversationHandler) Send(c *gin.Context) {
	id, ok := counterpartParam(c)
	if !ok {
		return
	}
	var req httpdto.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	pending, err := h.engine.Send(c.Request.Context(), h.counterpart(id), req.Content)
	h.writePending(c, pending, err)
}

func (h *ConversationHandler) Retry(c *gin.Context) {
	if _, ok := counterpartParam(c); !ok {
		return
	}
	pending, err := h.engine.Retry(c.Request.Context(), c.Param("clientId"))
	h.writePending(c, pending, err)
}

func (h *ConversationHandler) Failed(c *gin.Context) {
	id, ok := counterpartParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromMessages(h.engine.Failed(id))))
}

func (h *ConversationHandler) writePending(c *gin.Context, pending *chatsync.PendingMessage, err error) {
	switch {
	case pending == nil && err != nil:
		writeError(c, err)
	case pending == nil:
		// whitespace-only content
		c.Status(http.StatusNoContent)
	case err != nil:
		_ = c.Error(err)
		c.JSON(httpStatus(err), httpdto.NewFailureResponse(pendingView(pending), err.Error(), errorCode(err)))
	default:
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(pendingView(pending)))
	}
}

func (h *ConversationHandler) counterpart(id domain.UserID) domain.Participant {
	if p, ok := h.engine.Participant(id); ok {
		return p
	}
	return domain.Participant{ID: id}
}

func pendingView(p *chatsync.PendingMessage) httpdto.PendingView {
	return httpdto.PendingView{
		ClientID:    p.ClientID,
		Counterpart: p.Counterpart,
		Transport:   p.Transport,
		Status:      p.Status,
		Message:     httpdto.FromMessage(p.Message),
	}
}

func counterpartParam(c *gin.Context) (domain.UserID, bool) {
	id, err := domain.ParseUserID(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid counterpart id", "INVALID_REQUEST"))
		return 0, false
	}
	return id, true
}
