package handlers

import (
	"context"
	"os"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/veritas/backend/internal/detection"
	"github.com/veritas/backend/internal/video"
	"github.com/veritas/backend/pkg/logger"
)

// WebSocketHandler streams per-frame progress while a video is analyzed.
type WebSocketHandler struct {
	videos *VideoHandler
}

func NewWebSocketHandler(videos *VideoHandler) *WebSocketHandler {
	return &WebSocketHandler{
		videos: videos,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type string `json:"type"`
			videoRequest
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "analyze" {
			h.sendError(c, "unknown message type")
			continue
		}

		if err := h.analyze(c, msg.videoRequest); err != nil {
			logger.Warn("Failed to stream analysis", zap.Error(err))
			break
		}
	}
}

// analyze returns an error only when the connection itself is broken.
func (h *WebSocketHandler) analyze(c *websocket.Conn, req videoRequest) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path, opts, err := h.videos.fetch(ctx, req)
	if err != nil {
		return h.sendError(c, detection.Describe(detection.KindVideo, err))
	}
	defer os.Remove(path)

	var writeErr error
	progress := func(p video.Progress) {
		if writeErr != nil {
			return
		}
		writeErr = c.WriteJSON(map[string]interface{}{
			"type":  "progress",
			"index": p.Index,
			"pass":  p.Pass,
			"done":  p.Done,
			"total": p.Total,
			"score": p.Score,
		})
		if writeErr != nil {
			cancel()
		}
	}

	result, err := h.videos.detector.DetectVideo(ctx, path, opts, progress)
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		return h.sendError(c, detection.Describe(detection.KindVideo, err))
	}

	msg := videoResponse(result)
	msg["type"] = "complete"
	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
