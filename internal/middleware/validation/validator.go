package validation

import (
	"encoding/json"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxClaimLength      int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

type claimRequest struct {
	Text *string `json:"text"`
}

type urlRequest struct {
	URL      *string `json:"url"`
	ImageURL *string `json:"image_url"`
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxClaimLength == 0 {
		cfg.MaxClaimLength = 5000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json", "multipart/form-data"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" {
			allowed := false
			for _, allowedType := range cfg.AllowedContentTypes {
				if strings.Contains(contentType, allowedType) {
					allowed = true
					break
				}
			}
			if !allowed {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		if !strings.Contains(contentType, fiber.MIMEApplicationJSON) {
			return c.Next()
		}

		path := c.Path()

		if strings.HasSuffix(path, "/claims/verify") {
			var req claimRequest
			if err := json.Unmarshal(c.Body(), &req); err != nil {
				cfg.Logger.Debug("Rejected claim body", zap.String("ip", c.IP()), zap.Error(err))
				return badRequest(c, "Invalid JSON format")
			}
			if req.Text == nil || strings.TrimSpace(*req.Text) == "" {
				return badRequest(c, "Text is required and must be a non-empty string")
			}
			if utf8.RuneCountInString(*req.Text) > cfg.MaxClaimLength {
				return badRequest(c, "Text exceeds maximum length")
			}
			return c.Next()
		}

		if strings.HasSuffix(path, "/claims/image") || strings.HasSuffix(path, "/images/analyze") || strings.HasSuffix(path, "/videos/analyze") {
			var req urlRequest
			if err := json.Unmarshal(c.Body(), &req); err != nil {
				return badRequest(c, "Invalid JSON format")
			}
			target := req.URL
			if target == nil {
				target = req.ImageURL
			}
			if target == nil || *target == "" {
				return badRequest(c, "URL is required and must be a string")
			}
			if !IsValidURL(*target) {
				return badRequest(c, "Invalid URL format")
			}
		}

		return c.Next()
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

// IsValidURL accepts absolute http and https URLs only.
func IsValidURL(urlStr string) bool {
	u, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	if u.Host == "" {
		return false
	}

	return true
}
