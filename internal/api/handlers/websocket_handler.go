package handlers

import (
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/assessment"
	"github.com/medaccred/backend/pkg/logger"
)

type WebSocketHandler struct {
	hub *assessment.ProgressHub
}

func NewWebSocketHandler(hub *assessment.ProgressHub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleProgress streams progress events for one assessment until the run
// reaches a terminal state or the client disconnects.
func (h *WebSocketHandler) HandleProgress(c *websocket.Conn) {
	assessmentID := c.Params("id")

	logger.Info("WebSocket progress stream opened", zap.String("assessment_id", assessmentID))

	events := h.hub.Subscribe(assessmentID)
	defer func() {
		h.hub.Unsubscribe(assessmentID, events)
		c.Close()
		logger.Info("WebSocket progress stream closed", zap.String("assessment_id", assessmentID))
	}()

	// Reader goroutine detects client disconnect; nothing inbound is
	// expected on this stream.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-events:
			if err := c.WriteJSON(event); err != nil {
				logger.Error("Failed to write progress event", zap.Error(err))
				return
			}
			if event.Status == "completed" || event.Status == "failed" {
				return
			}
		case <-done:
			return
		}
	}
}
