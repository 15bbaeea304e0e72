package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/veritas/backend/internal/video"
	"github.com/veritas/backend/pkg/apperr"
	"github.com/veritas/backend/pkg/logger"
)

// Toolchain locates the ffmpeg and ffprobe binaries.
type Toolchain struct {
	FFmpegPath  string
	FFprobePath string
}

var DefaultToolchain = Toolchain{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"}

func NewToolchain(ffmpegPath, ffprobePath string) Toolchain {
	t := DefaultToolchain
	if ffmpegPath != "" {
		t.FFmpegPath = ffmpegPath
	}
	if ffprobePath != "" {
		t.FFprobePath = ffprobePath
	}
	return t
}

// CheckInstallation verifies that ffmpeg and ffprobe are installed and accessible.
func CheckInstallation() error {
	return DefaultToolchain.Check()
}

func (t Toolchain) Check() error {
	if err := exec.Command(t.FFmpegPath, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg is not installed or not in PATH: %w", err)
	}
	if err := exec.Command(t.FFprobePath, "-version").Run(); err != nil {
		return fmt.Errorf("ffprobe is not installed or not in PATH: %w", err)
	}
	return nil
}

// VideoFile is a video on disk that frames can be extracted from by index.
type VideoFile struct {
	path  string
	tools Toolchain
	info  video.StreamInfo
}

func OpenVideo(ctx context.Context, path string) (*VideoFile, error) {
	return DefaultToolchain.OpenVideo(ctx, path)
}

func (t Toolchain) OpenVideo(ctx context.Context, path string) (*VideoFile, error) {
	cmd := exec.CommandContext(ctx, t.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "format=duration:stream=r_frame_rate,avg_frame_rate,duration",
		"-of", "json",
		path,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.Unsupported("cannot read video: %s", firstLine(stderr.String(), err))
	}

	info, err := parseProbe(output)
	if err != nil {
		return nil, err
	}

	logger.Debug("Video probed",
		zap.String("path", path),
		zap.Float64("frame_rate", info.FrameRate),
		zap.Float64("duration", info.DurationSeconds),
	)

	return &VideoFile{path: path, tools: t, info: info}, nil
}

func (v *VideoFile) Info(_ context.Context) (video.StreamInfo, error) {
	return v.info, nil
}

// Frame decodes the frame at index as a JPEG by seeking to index/fps. A seek
// past the last video frame yields the final frame of the stream.
func (v *VideoFile) Frame(ctx context.Context, index int) ([]byte, error) {
	if v.info.FrameRate <= 0 {
		return nil, apperr.Unsupported("video has no frame rate")
	}
	timestamp := float64(index) / v.info.FrameRate

	output, err := v.extract(ctx, "-ss", strconv.FormatFloat(timestamp, 'f', 3, 64))
	if err != nil {
		return nil, fmt.Errorf("ffmpeg failed at %.3fs: %w", timestamp, err)
	}
	if len(output) > 0 {
		return output, nil
	}

	logger.Debug("Seek past end of video stream, using last frame",
		zap.String("path", v.path),
		zap.Int("index", index),
	)
	output, err = v.extract(ctx, "-sseof", "-1")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg failed reading tail frame: %w", err)
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("no frame at %.3fs", timestamp)
	}
	return output, nil
}

func (v *VideoFile) extract(ctx context.Context, seekFlag, seekValue string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, v.tools.FFmpegPath,
		"-v", "error",
		seekFlag, seekValue,
		"-i", v.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.New(firstLine(stderr.String(), err))
	}
	return output, nil
}

type probeOutput struct {
	Streams []struct {
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbe(data []byte) (video.StreamInfo, error) {
	var probe probeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return video.StreamInfo{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return video.StreamInfo{}, apperr.Unsupported("no video stream")
	}

	stream := probe.Streams[0]
	fps := parseFrameRate(stream.RFrameRate)
	if fps <= 0 {
		fps = parseFrameRate(stream.AvgFrameRate)
	}

	// The container duration covers audio too, which can outlast the video.
	duration, _ := strconv.ParseFloat(stream.Duration, 64)
	if duration <= 0 {
		duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	}

	return video.StreamInfo{FrameRate: fps, DurationSeconds: duration}, nil
}

// parseFrameRate reads ffprobe's "num/den" notation. Zero is returned for
// anything unparseable, including "0/0".
func parseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return sanitize(n)
	}

	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return sanitize(n / d)
}

func sanitize(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

func firstLine(stderr string, fallback error) string {
	line, _, _ := strings.Cut(strings.TrimSpace(stderr), "\n")
	if line == "" {
		return fallback.Error()
	}
	return line
}
