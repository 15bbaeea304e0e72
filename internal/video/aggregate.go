package video

import (
	"fmt"

	"github.com/veritas/backend/internal/verdict"
	"github.com/veritas/backend/pkg/apperr"
)

type Result struct {
	Verdict verdict.Verdict
	Mean    float64
	Count   int
}

func (r Result) String() string {
	return fmt.Sprintf("%s (average fake score: %.2f, checked %d frames)", r.Verdict, r.Mean, r.Count)
}

// Aggregate averages the per-frame fake scores and classifies the mean.
// With no scores it returns apperr.ErrEmptyInput rather than a NaN mean.
func Aggregate(scores []float64) (Result, error) {
	if len(scores) == 0 {
		return Result{}, apperr.ErrEmptyInput
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))

	return Result{
		Verdict: verdict.Classify(mean),
		Mean:    mean,
		Count:   len(scores),
	}, nil
}
