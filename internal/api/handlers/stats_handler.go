package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/veritas/backend/pkg/logger"
)

type TallySource interface {
	Counts(ctx context.Context) (map[string]map[string]int64, error)
	Ping(ctx context.Context) error
}

type StatsHandler struct {
	tallies TallySource
}

// NewStatsHandler accepts a nil source when tallies are disabled.
func NewStatsHandler(tallies TallySource) *StatsHandler {
	return &StatsHandler{
		tallies: tallies,
	}
}

func (h *StatsHandler) GetStats(c *fiber.Ctx) error {
	if h.tallies == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Usage statistics are disabled",
		})
	}

	counts, err := h.tallies.Counts(c.Context())
	if err != nil {
		logger.Error("Failed to read tallies", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to read usage statistics",
		})
	}

	return c.JSON(fiber.Map{
		"tallies": counts,
	})
}

func (h *StatsHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *StatsHandler) Ready(c *fiber.Ctx) error {
	if h.tallies != nil {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()
		if err := h.tallies.Ping(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  "redis unreachable",
			})
		}
	}
	return c.JSON(fiber.Map{
		"status": "ready",
	})
}
