package server

import (
	"io"
	"log/slog"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

const keepAliveInterval = 30 * time.Second

// handleEvents streams the caller's project and task events as SSE.
func (s *Server) handleEvents(c *gin.Context) {
	client := s.hub.Register(actor(c))
	defer s.hub.Unregister(client.ID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Render(-1, sse.Event{Event: "connected", Data: gin.H{"client_id": client.ID}})
	c.Writer.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			c.Render(-1, sse.Event{Event: "ping", Data: time.Now().UTC().Format(time.RFC3339)})
			return true
		case msg, ok := <-client.Messages:
			if !ok {
				return false
			}
			c.Render(-1, sse.Event{Id: msg.ID, Event: msg.Event, Data: msg.Data})
			return true
		}
	})
	s.logger.Debug("event stream closed", slog.String("client_id", client.ID))
}
