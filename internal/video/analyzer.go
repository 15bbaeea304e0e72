package video

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veritas/backend/internal/classifier"
	"github.com/veritas/backend/pkg/apperr"
	"github.com/veritas/backend/pkg/logger"
)

// StreamInfo is the timing metadata needed to lay out a SampleSet.
type StreamInfo struct {
	FrameRate       float64
	DurationSeconds float64
}

// FrameSource decodes single frames out of a video. Implementations own any
// file handles; the analyzer only sees encoded frame bytes.
type FrameSource interface {
	Info(ctx context.Context) (StreamInfo, error)
	Frame(ctx context.Context, index int) ([]byte, error)
}

type Options struct {
	Stride  int
	Reverse bool
}

type Pass string

const (
	PassForward Pass = "forward"
	PassReverse Pass = "reverse"
)

type Progress struct {
	Index int
	Pass  Pass
	Done  int
	Total int
	Score float64
}

type ProgressFunc func(Progress)

type Analysis struct {
	Result
	TotalFrames int
	Stride      int
	Reverse     bool
	Duration    time.Duration
}

type Analyzer struct {
	scorer classifier.Scorer
}

func NewAnalyzer(scorer classifier.Scorer) *Analyzer {
	return &Analyzer{scorer: scorer}
}

// Analyze scores every sampled frame in order and aggregates the scores.
// Frames are classified one at a time; the reverse pass re-runs the
// classifier for each index instead of reusing forward scores.
func (a *Analyzer) Analyze(ctx context.Context, src FrameSource, opts Options, progress ProgressFunc) (*Analysis, error) {
	start := time.Now()

	info, err := src.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read video info: %w", err)
	}

	set, err := NewSampleSet(info.FrameRate, info.DurationSeconds, opts.Stride, opts.Reverse)
	if err != nil {
		return nil, apperr.Invalid("%w", err)
	}

	logger.Debug("Sampling video frames",
		zap.Float64("fps", info.FrameRate),
		zap.Float64("duration_sec", info.DurationSeconds),
		zap.Int("total_frames", set.TotalFrames()),
		zap.Int("stride", set.Stride()),
		zap.Bool("reverse", set.ReverseEnabled()),
		zap.Int("samples", set.Len()),
	)

	total := set.Len()
	forwardLen := set.ForwardLen()
	scores := make([]float64, 0, total)

	for index := range set.All() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := src.Frame(ctx, index)
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", index, err)
		}

		score, err := a.scorer.Score(ctx, frame)
		if err != nil {
			return nil, fmt.Errorf("failed to score frame %d: %w", index, err)
		}
		scores = append(scores, score)

		if progress != nil {
			pass := PassForward
			if len(scores) > forwardLen {
				pass = PassReverse
			}
			progress(Progress{
				Index: index,
				Pass:  pass,
				Done:  len(scores),
				Total: total,
				Score: score,
			})
		}
	}

	result, err := Aggregate(scores)
	if err != nil {
		return nil, err
	}

	return &Analysis{
		Result:      result,
		TotalFrames: set.TotalFrames(),
		Stride:      set.Stride(),
		Reverse:     set.ReverseEnabled(),
		Duration:    time.Since(start),
	}, nil
}
