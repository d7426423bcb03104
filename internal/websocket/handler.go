package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collaboraid-sync/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// command is what a UI client sends to change its subscriptions.
type command struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

type Handler struct {
	hub    *Hub
	logger *logger.Logger
}

func NewHandler(hub *Hub, l *logger.Logger) *Handler {
	return &Handler{hub: hub, logger: logger.OrNop(l).Named("websocket")}
}

// Connect upgrades the request and subscribes the client to the channels in
// the comma separated ?channels= query, or to summaries and status when none
// are given.
func (h *Handler) Connect(c *gin.Context) {
	channels := []string{ChannelSummaries, ChannelStatus}
	if raw := c.Query("channels"); raw != "" {
		channels = channels[:0]
		for _, ch := range strings.Split(raw, ",") {
			ch = strings.TrimSpace(ch)
			if !CanSubscribe(ch) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel " + ch})
				return
			}
			channels = append(channels, ch)
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn)
	log := h.logger.With(zap.String("client_id", client.ID))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	for _, ch := range channels {
		h.hub.Subscribe(client, ch)
	}
	go client.WriteLoop(ctx)
	log.Debugf("client connected: %v", channels)

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil || !CanSubscribe(cmd.Channel) {
			log.Debugf("ignore client command %q", data)
			continue
		}
		switch cmd.Action {
		case "subscribe":
			h.hub.Subscribe(client, cmd.Channel)
		case "unsubscribe":
			h.hub.Unsubscribe(client, cmd.Channel)
		}
	}

	h.hub.Unregister(client)
	log.Debugf("client disconnected")
}
