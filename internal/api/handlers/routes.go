package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type Handlers struct {
	Claims    *ClaimHandler
	Images    *ImageHandler
	Videos    *VideoHandler
	WebSocket *WebSocketHandler
	Stats     *StatsHandler
}

// Register mounts every endpoint under api, normally the /api/v1 group.
func (h Handlers) Register(api fiber.Router) {
	api.Post("/claims/verify", h.Claims.Verify)
	api.Post("/claims/image", h.Claims.VerifyImage)

	api.Post("/images/analyze", h.Images.Analyze)
	api.Post("/videos/analyze", h.Videos.Analyze)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws/videos", websocket.New(h.WebSocket.HandleConnection))

	api.Get("/stats", h.Stats.GetStats)
	api.Get("/health", h.Stats.Health)
	api.Get("/ready", h.Stats.Ready)
}
