package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/veritas/backend/internal/detection"
	"github.com/veritas/backend/pkg/apperr"
	"github.com/veritas/backend/pkg/logger"
)

// statusFor maps an analysis error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrUnsupportedInput):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, apperr.ErrEmptyInput):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrInvalidInput):
		return fiber.StatusBadRequest
	case apperr.IsExternal(err):
		return fiber.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, kind detection.Kind, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		logger.Error("Analysis request failed",
			zap.String("kind", string(kind)),
			zap.Any("request_id", c.Locals("request_id")),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": detection.Describe(kind, err),
	})
}
