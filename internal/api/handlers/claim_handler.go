package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/veritas/backend/internal/claim"
	"github.com/veritas/backend/internal/middleware/validation"
	"github.com/veritas/backend/internal/verify"
	"github.com/veritas/backend/pkg/logger"
)

type ClaimVerifier interface {
	Verify(ctx context.Context, claimText string) *verify.TextResult
	VerifyImageContext(ctx context.Context, imageURL string) *verify.TextResult
}

type ClaimHandler struct {
	verifier ClaimVerifier
}

func NewClaimHandler(verifier ClaimVerifier) *ClaimHandler {
	return &ClaimHandler{
		verifier: verifier,
	}
}

func (h *ClaimHandler) Verify(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	text := strings.TrimSpace(strings.ReplaceAll(req.Text, "\x00", ""))
	if text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Please enter some text to verify.",
		})
	}

	return c.JSON(textResponse(h.verifier.Verify(c.Context(), text)))
}

func (h *ClaimHandler) VerifyImage(c *fiber.Ctx) error {
	var req struct {
		ImageURL string `json:"image_url"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if !validation.IsValidURL(req.ImageURL) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "image_url must be an absolute http(s) URL",
		})
	}

	return c.JSON(textResponse(h.verifier.VerifyImageContext(c.Context(), strings.TrimSpace(req.ImageURL))))
}

type claimResponse struct {
	*verify.TextResult
	Details string `json:"details,omitempty"`
}

func textResponse(result *verify.TextResult) claimResponse {
	return claimResponse{
		TextResult: result,
		Details:    claim.FormatRecords(result.FactChecks),
	}
}
