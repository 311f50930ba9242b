package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/sse"
)

type SSEHandler struct {
	log *logger.Logger
	hub *sse.Hub
}

func NewSSEHandler(log *logger.Logger, hub *sse.Hub) *SSEHandler {
	return &SSEHandler{
		log: log.With("handler", "SSEHandler"),
		hub: hub,
	}
}

// GET /sse/stream?channels=document:lesson:abc,document:worksheet:xyz
//
// Channels are document channels in the form produced by
// sse.DocumentChannel. The connection stays open until the client
// disconnects.
func (h *SSEHandler) Stream(c *gin.Context) {
	client := h.hub.NewClient()

	for _, channel := range strings.Split(c.Query("channels"), ",") {
		h.hub.AddChannel(client, channel)
	}
	h.log.Info("SSE stream open", "clientID", client.ID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.hub.CloseClient(client)
	h.log.Info("SSE stream closed", "clientID", client.ID)
}
