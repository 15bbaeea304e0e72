// Package detection runs deepfake detection over a single image or a sampled
// video and reports the verdict.
package detection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/veritas/backend/internal/classifier"
	"github.com/veritas/backend/internal/media"
	"github.com/veritas/backend/internal/metrics"
	"github.com/veritas/backend/internal/verdict"
	"github.com/veritas/backend/internal/video"
	"github.com/veritas/backend/pkg/apperr"
	"github.com/veritas/backend/pkg/logger"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindText  Kind = "text"
)

// VideoTip is shown after every video verdict.
const VideoTip = "💡 **Tip:** For better accuracy on suspicious videos, try setting frame interval to 1 and enabling reverse checking."

// Recorder receives one outcome per finished analysis.
type Recorder interface {
	RecordOutcome(ctx context.Context, kind, outcome string) error
}

// OpenFunc opens a video file as a frame source.
type OpenFunc func(ctx context.Context, path string) (video.FrameSource, error)

// ToolchainOpener opens videos through ffprobe and ffmpeg.
func ToolchainOpener(tools media.Toolchain) OpenFunc {
	return func(ctx context.Context, path string) (video.FrameSource, error) {
		vf, err := tools.OpenVideo(ctx, path)
		if err != nil {
			return nil, err
		}
		return vf, nil
	}
}

type Detector struct {
	scorer   classifier.Scorer
	analyzer *video.Analyzer
	open     OpenFunc
	recorder Recorder
}

// NewDetector builds a detector. recorder may be nil.
func NewDetector(scorer classifier.Scorer, open OpenFunc, recorder Recorder) *Detector {
	if open == nil {
		open = ToolchainOpener(media.DefaultToolchain)
	}
	return &Detector{
		scorer:   scorer,
		analyzer: video.NewAnalyzer(scorer),
		open:     open,
		recorder: recorder,
	}
}

type ImageResult struct {
	Verdict verdict.Verdict
	Score   float64
	Format  string
	Width   int
	Height  int
}

func (r *ImageResult) Summary() string {
	return fmt.Sprintf("%s (fake score: %.2f)", r.Verdict, r.Score)
}

type VideoResult struct {
	video.Analysis
}

func (r *VideoResult) Summary() string {
	return r.Result.String()
}

// DetectImage classifies one encoded image. Anything that is not a decodable
// JPEG, PNG, GIF or WebP fails with apperr.ErrUnsupportedInput.
func (d *Detector) DetectImage(ctx context.Context, data []byte) (*ImageResult, error) {
	start := time.Now()

	cfg, format, err := media.ImageConfig(data)
	if err != nil {
		d.record(ctx, KindImage, start, nil, err)
		return nil, err
	}

	score, err := d.scorer.Score(ctx, data)
	if err != nil {
		d.record(ctx, KindImage, start, nil, err)
		return nil, fmt.Errorf("failed to classify image: %w", err)
	}

	result := &ImageResult{
		Verdict: verdict.Classify(score),
		Score:   score,
		Format:  format,
		Width:   cfg.Width,
		Height:  cfg.Height,
	}

	d.record(ctx, KindImage, start, &scored{verdict: result.Verdict, score: score}, nil)

	logger.Info("Image analyzed",
		zap.String("verdict", result.Verdict.Code()),
		zap.Float64("fake_score", score),
		zap.String("format", format),
	)

	return result, nil
}

func (d *Detector) DetectImageFile(ctx context.Context, path string) (*ImageResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return d.DetectImage(ctx, data)
}

// DetectVideo samples frames from the video at path and aggregates their
// scores. A failed frame aborts the whole analysis.
func (d *Detector) DetectVideo(ctx context.Context, path string, opts video.Options, progress video.ProgressFunc) (*VideoResult, error) {
	start := time.Now()

	src, err := d.open(ctx, path)
	if err != nil {
		d.record(ctx, KindVideo, start, nil, err)
		return nil, err
	}

	counted := func(p video.Progress) {
		metrics.FramesScored.Inc()
		if progress != nil {
			progress(p)
		}
	}

	analysis, err := d.analyzer.Analyze(ctx, src, opts, counted)
	if err != nil {
		d.record(ctx, KindVideo, start, nil, err)
		return nil, err
	}

	d.record(ctx, KindVideo, start, &scored{verdict: analysis.Verdict, score: analysis.Mean}, nil)

	logger.Info("Video analyzed",
		zap.String("verdict", analysis.Verdict.Code()),
		zap.Float64("mean_score", analysis.Mean),
		zap.Int("frames_checked", analysis.Count),
		zap.Int("total_frames", analysis.TotalFrames),
		zap.Int("stride", analysis.Stride),
		zap.Bool("reverse", analysis.Reverse),
		zap.Duration("elapsed", analysis.Duration),
	)

	return &VideoResult{Analysis: *analysis}, nil
}

// Describe renders a detection failure the way it is shown to users.
func Describe(kind Kind, err error) string {
	if errors.Is(err, apperr.ErrEmptyInput) {
		return "Error: No frames checked"
	}
	switch kind {
	case KindVideo:
		return fmt.Sprintf("Error processing video: %s", err)
	default:
		return fmt.Sprintf("Error processing image: %s", err)
	}
}

type scored struct {
	verdict verdict.Verdict
	score   float64
}

func (d *Detector) record(ctx context.Context, kind Kind, start time.Time, result *scored, err error) {
	outcome := Outcome(err)
	if result != nil {
		outcome = result.verdict.Code()
		metrics.VerdictTotal.WithLabelValues(string(kind), outcome).Inc()
		metrics.FakeScore.WithLabelValues(string(kind)).Observe(result.score)
	}

	metrics.AnalysisTotal.WithLabelValues(string(kind), outcome).Inc()
	metrics.AnalysisDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Warn("Analysis failed", zap.String("kind", string(kind)), zap.Error(err))
	}

	Record(ctx, d.recorder, kind, outcome)
}

// Outcome names the tally bucket for a failed analysis.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrEmptyInput):
		return "empty"
	case errors.Is(err, apperr.ErrUnsupportedInput):
		return "unsupported"
	case errors.Is(err, apperr.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case apperr.IsExternal(err):
		return "external_error"
	default:
		return "error"
	}
}

// Record forwards an outcome to recorder, logging instead of failing.
func Record(ctx context.Context, recorder Recorder, kind Kind, outcome string) {
	if recorder == nil {
		return
	}
	if err := recorder.RecordOutcome(context.WithoutCancel(ctx), string(kind), outcome); err != nil {
		logger.Warn("Failed to record outcome", zap.String("kind", string(kind)), zap.Error(err))
	}
}
