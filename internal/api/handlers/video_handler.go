package handlers

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/veritas/backend/internal/detection"
	"github.com/veritas/backend/internal/media"
	"github.com/veritas/backend/internal/video"
	"github.com/veritas/backend/pkg/apperr"
)

type StrideLimits struct {
	Default int
	Max     int
}

// Resolve applies the default stride and enforces [1, Max].
func (l StrideLimits) Resolve(requested *int) (int, error) {
	if requested == nil {
		return l.Default, nil
	}
	if *requested < 1 || *requested > l.Max {
		return 0, apperr.Invalid("stride must be between 1 and %d", l.Max)
	}
	return *requested, nil
}

type VideoHandler struct {
	detector MediaDetector
	fetcher  MediaFetcher
	limits   MediaLimits
	strides  StrideLimits
}

func NewVideoHandler(detector MediaDetector, fetcher MediaFetcher, limits MediaLimits, strides StrideLimits) *VideoHandler {
	return &VideoHandler{
		detector: detector,
		fetcher:  fetcher,
		limits:   limits,
		strides:  strides,
	}
}

type videoRequest struct {
	URL     string `json:"url"`
	Stride  *int   `json:"stride"`
	Reverse bool   `json:"reverse"`
}

func (h *VideoHandler) Analyze(c *fiber.Ctx) error {
	path, opts, err := h.prepare(c)
	if err != nil {
		return respondError(c, detection.KindVideo, err)
	}
	defer os.Remove(path)

	result, err := h.detector.DetectVideo(c.Context(), path, opts, nil)
	if err != nil {
		return respondError(c, detection.KindVideo, err)
	}

	return c.JSON(videoResponse(result))
}

func (h *VideoHandler) prepare(c *fiber.Ctx) (string, video.Options, error) {
	if isMultipart(c) {
		var stride *int
		if raw := strings.TrimSpace(c.FormValue("stride")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return "", video.Options{}, apperr.Invalid("stride must be an integer")
			}
			stride = &n
		}
		opts, err := h.options(stride, parseBool(c.FormValue("reverse")))
		if err != nil {
			return "", video.Options{}, err
		}

		file, err := c.FormFile("file")
		if err != nil {
			return "", video.Options{}, apperr.Invalid("file is required")
		}
		if !hasExtension(file.Filename, videoExtensions) {
			return "", video.Options{}, apperr.Unsupported("accepted video types are %s", strings.Join(videoExtensions, ", "))
		}

		f, err := file.Open()
		if err != nil {
			return "", video.Options{}, apperr.Invalid("cannot read upload: %v", err)
		}
		defer f.Close()

		path, err := h.fetcher.SaveUpload(f, strings.ToLower(filepath.Ext(file.Filename)), h.limits.MaxVideoBytes)
		if err != nil {
			return "", video.Options{}, err
		}
		return path, opts, nil
	}

	var req videoRequest
	if err := c.BodyParser(&req); err != nil {
		return "", video.Options{}, apperr.Invalid("invalid request body")
	}
	return h.fetch(c.Context(), req)
}

func (h *VideoHandler) fetch(ctx context.Context, req videoRequest) (string, video.Options, error) {
	opts, err := h.options(req.Stride, req.Reverse)
	if err != nil {
		return "", video.Options{}, err
	}
	if req.URL == "" {
		return "", video.Options{}, apperr.Invalid("file or url is required")
	}

	path, err := h.fetcher.Download(ctx, req.URL, media.KindVideo, h.limits.MaxVideoBytes)
	if err != nil {
		return "", video.Options{}, err
	}
	return path, opts, nil
}

func (h *VideoHandler) options(stride *int, reverse bool) (video.Options, error) {
	s, err := h.strides.Resolve(stride)
	if err != nil {
		return video.Options{}, err
	}
	return video.Options{Stride: s, Reverse: reverse}, nil
}

func videoResponse(result *detection.VideoResult) fiber.Map {
	return fiber.Map{
		"id":             uuid.NewString(),
		"verdict":        result.Verdict.Code(),
		"label":          result.Verdict.String(),
		"severity":       result.Verdict.Severity(),
		"mean_score":     result.Mean,
		"frames_checked": result.Count,
		"total_frames":   result.TotalFrames,
		"stride":         result.Stride,
		"reverse":        result.Reverse,
		"summary":        result.Summary(),
		"tip":            detection.VideoTip,
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
