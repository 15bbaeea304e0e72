package handlers

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/veritas/backend/internal/detection"
	"github.com/veritas/backend/internal/media"
	"github.com/veritas/backend/internal/video"
	"github.com/veritas/backend/pkg/apperr"
)

var (
	imageExtensions = []string{".jpg", ".jpeg", ".png"}
	videoExtensions = []string{".mp4", ".avi", ".mov", ".mkv"}
)

type MediaDetector interface {
	DetectImage(ctx context.Context, data []byte) (*detection.ImageResult, error)
	DetectVideo(ctx context.Context, path string, opts video.Options, progress video.ProgressFunc) (*detection.VideoResult, error)
}

type MediaFetcher interface {
	Download(ctx context.Context, rawURL string, kind media.Kind, maxBytes int64) (string, error)
	SaveUpload(r io.Reader, suffix string, maxBytes int64) (string, error)
}

type MediaLimits struct {
	MaxImageBytes int64
	MaxVideoBytes int64
}

type ImageHandler struct {
	detector MediaDetector
	fetcher  MediaFetcher
	limits   MediaLimits
}

func NewImageHandler(detector MediaDetector, fetcher MediaFetcher, limits MediaLimits) *ImageHandler {
	return &ImageHandler{
		detector: detector,
		fetcher:  fetcher,
		limits:   limits,
	}
}

func (h *ImageHandler) Analyze(c *fiber.Ctx) error {
	data, err := h.readImage(c)
	if err != nil {
		return respondError(c, detection.KindImage, err)
	}

	result, err := h.detector.DetectImage(c.Context(), data)
	if err != nil {
		return respondError(c, detection.KindImage, err)
	}

	return c.JSON(fiber.Map{
		"id":         uuid.NewString(),
		"verdict":    result.Verdict.Code(),
		"label":      result.Verdict.String(),
		"severity":   result.Verdict.Severity(),
		"fake_score": result.Score,
		"summary":    result.Summary(),
	})
}

func (h *ImageHandler) readImage(c *fiber.Ctx) ([]byte, error) {
	if isMultipart(c) {
		file, err := c.FormFile("file")
		if err != nil {
			return nil, apperr.Invalid("file is required")
		}
		if !hasExtension(file.Filename, imageExtensions) {
			return nil, apperr.Unsupported("accepted image types are %s", strings.Join(imageExtensions, ", "))
		}
		if h.limits.MaxImageBytes > 0 && file.Size > h.limits.MaxImageBytes {
			return nil, apperr.Invalid("image exceeds %d bytes", h.limits.MaxImageBytes)
		}

		f, err := file.Open()
		if err != nil {
			return nil, apperr.Invalid("cannot read upload: %v", err)
		}
		defer f.Close()

		return io.ReadAll(f)
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return nil, apperr.Invalid("invalid request body")
	}
	if req.URL == "" {
		return nil, apperr.Invalid("file or url is required")
	}

	path, err := h.fetcher.Download(c.Context(), req.URL, media.KindImage, h.limits.MaxImageBytes)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	return os.ReadFile(path)
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm)
}

func hasExtension(name string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}
