package video

import (
	"errors"
	"math"
	"testing"

	"github.com/veritas/backend/internal/verdict"
	"github.com/veritas/backend/pkg/apperr"
)

func TestAggregate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		scores  []float64
		verdict verdict.Verdict
		mean    float64
		count   int
	}{
		{"real", []float64{0.1, 0.2, 0.3}, verdict.Real, 0.2, 3},
		{"fake forward and reverse", []float64{0.8, 0.8, 0.8, 0.8, 0.8, 0.8}, verdict.Fake, 0.8, 6},
		{"not sure", []float64{0.1, 0.9}, verdict.NotSure, 0.5, 2},
		{"single frame", []float64{0.7}, verdict.Fake, 0.7, 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Aggregate(tt.scores)
			if err != nil {
				t.Fatalf("Aggregate() error = %v", err)
			}
			if got.Verdict != tt.verdict {
				t.Fatalf("verdict = %s, want %s", got.Verdict, tt.verdict)
			}
			if math.Abs(got.Mean-tt.mean) > 1e-9 {
				t.Fatalf("mean = %v, want %v", got.Mean, tt.mean)
			}
			if got.Count != tt.count {
				t.Fatalf("count = %d, want %d", got.Count, tt.count)
			}
		})
	}
}

func TestAggregateEmpty(t *testing.T) {
	t.Parallel()
	got, err := Aggregate(nil)
	if !errors.Is(err, apperr.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if got != (Result{}) {
		t.Fatalf("expected zero result, got %+v", got)
	}
}

func TestResultString(t *testing.T) {
	t.Parallel()
	r := Result{Verdict: verdict.Fake, Mean: 0.8123, Count: 6}
	want := "Fake (average fake score: 0.81, checked 6 frames)"
	if r.String() != want {
		t.Fatalf("String() = %q, want %q", r.String(), want)
	}
}
