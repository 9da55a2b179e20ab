package handler

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/awraqsoft/munaqasat/internal/activity"
	"github.com/awraqsoft/munaqasat/internal/sse"
)

// ActivityHandler serves the activity feed and its live event stream.
type ActivityHandler struct {
	logger *activity.Logger
	hub    *sse.Hub
}

func NewActivityHandler(logger *activity.Logger, hub *sse.Hub) *ActivityHandler {
	return &ActivityHandler{logger: logger, hub: hub}
}

// Feed GET /api/v1/activity?limit=
func (h *ActivityHandler) Feed(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	events, err := h.logger.Feed(c.Request.Context(), c.GetString("company_id"), limit)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": events})
}

// Prune POST /api/v1/activity/prune
func (h *ActivityHandler) Prune(c *gin.Context) {
	deleted, err := h.logger.Prune(c.Request.Context(), c.GetString("company_id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"deleted": deleted})
}

// Stream GET /api/v1/sse/events?token=xxx
func (h *ActivityHandler) Stream(c *gin.Context) {
	userID := c.GetString("user_id")
	clientID := fmt.Sprintf("%s_%d", userID, time.Now().UnixNano())

	client := &sse.Client{
		ID:      clientID,
		OwnerID: userID,
		Events:  make(chan sse.Event, 64),
	}
	h.hub.Register(client)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Writer.WriteString("event: connected\ndata: {\"client_id\":\"" + clientID + "\"}\n\n")
	c.Writer.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			h.hub.Unregister(clientID)
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			c.Writer.WriteString(fmt.Sprintf("event: %s\ndata: %s\n\n", event.EventType, event.Data))
			c.Writer.Flush()
		case <-heartbeat.C:
			c.Writer.WriteString(": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}
