package detection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"testing"

	"github.com/veritas/backend/internal/verdict"
	"github.com/veritas/backend/internal/video"
	"github.com/veritas/backend/pkg/apperr"
)

type scoreFunc func(ctx context.Context, image []byte) (float64, error)

func (f scoreFunc) Score(ctx context.Context, image []byte) (float64, error) {
	return f(ctx, image)
}

func fixedScore(score float64) scoreFunc {
	return func(context.Context, []byte) (float64, error) { return score, nil }
}

type memorySource struct {
	info video.StreamInfo
}

func (m memorySource) Info(context.Context) (video.StreamInfo, error) { return m.info, nil }

func (m memorySource) Frame(_ context.Context, index int) ([]byte, error) {
	return []byte(fmt.Sprintf("frame-%d", index)), nil
}

func openMemory(info video.StreamInfo) OpenFunc {
	return func(context.Context, string) (video.FrameSource, error) {
		return memorySource{info: info}, nil
	}
}

type tally struct {
	outcomes []string
}

func (t *tally) RecordOutcome(_ context.Context, kind, outcome string) error {
	t.outcomes = append(t.outcomes, kind+"/"+outcome)
	return nil
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestDetectImage(t *testing.T) {
	tests := []struct {
		name    string
		score   float64
		want    verdict.Verdict
		summary string
	}{
		{name: "fake", score: 0.91, want: verdict.Fake, summary: "Fake (fake score: 0.91)"},
		{name: "real", score: 0.3, want: verdict.Real, summary: "Real (fake score: 0.30)"},
		{name: "unsure", score: 0.5, want: verdict.NotSure, summary: "Not sure (fake score: 0.50)"},
	}

	img := jpegBytes(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &tally{}
			d := NewDetector(fixedScore(tt.score), nil, rec)

			got, err := d.DetectImage(context.Background(), img)
			if err != nil {
				t.Fatalf("DetectImage: %v", err)
			}
			if got.Verdict != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got.Verdict)
			}
			if got.Summary() != tt.summary {
				t.Fatalf("expected %q, got %q", tt.summary, got.Summary())
			}
			if got.Format != "jpeg" || got.Width != 8 {
				t.Fatalf("unexpected image info %+v", got)
			}
			if len(rec.outcomes) != 1 || rec.outcomes[0] != "image/"+tt.want.Code() {
				t.Fatalf("unexpected tally %v", rec.outcomes)
			}
		})
	}
}

func TestDetectImageRejectsNonImage(t *testing.T) {
	called := false
	d := NewDetector(scoreFunc(func(context.Context, []byte) (float64, error) {
		called = true
		return 0, nil
	}), nil, nil)

	_, err := d.DetectImage(context.Background(), []byte("%PDF-1.4 not an image"))
	if !errors.Is(err, apperr.ErrUnsupportedInput) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if called {
		t.Fatalf("classifier should not be called for unsupported input")
	}
}

func TestDetectImageClassifierFailure(t *testing.T) {
	boom := apperr.External("classifier", errors.New("model is loading"))
	d := NewDetector(scoreFunc(func(context.Context, []byte) (float64, error) {
		return 0, boom
	}), nil, nil)

	_, err := d.DetectImage(context.Background(), jpegBytes(t))
	if !apperr.IsExternal(err) {
		t.Fatalf("expected external error, got %v", err)
	}
}

func TestDetectVideo(t *testing.T) {
	rec := &tally{}
	d := NewDetector(fixedScore(0.2), openMemory(video.StreamInfo{FrameRate: 10, DurationSeconds: 3}), rec)

	var seen int
	got, err := d.DetectVideo(context.Background(), "clip.mp4", video.Options{Stride: 5}, func(video.Progress) { seen++ })
	if err != nil {
		t.Fatalf("DetectVideo: %v", err)
	}
	if got.Count != 6 || seen != 6 {
		t.Fatalf("expected 6 frames, got count=%d progress=%d", got.Count, seen)
	}
	if want := "Real (average fake score: 0.20, checked 6 frames)"; got.Summary() != want {
		t.Fatalf("expected %q, got %q", want, got.Summary())
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != "video/real" {
		t.Fatalf("unexpected tally %v", rec.outcomes)
	}
}

func TestDetectVideoNoFrames(t *testing.T) {
	rec := &tally{}
	d := NewDetector(fixedScore(0.9), openMemory(video.StreamInfo{FrameRate: 0, DurationSeconds: 3}), rec)

	_, err := d.DetectVideo(context.Background(), "empty.mp4", video.Options{Stride: 30}, nil)
	if !errors.Is(err, apperr.ErrEmptyInput) {
		t.Fatalf("expected empty input, got %v", err)
	}
	if Describe(KindVideo, err) != "Error: No frames checked" {
		t.Fatalf("unexpected description %q", Describe(KindVideo, err))
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != "video/empty" {
		t.Fatalf("unexpected tally %v", rec.outcomes)
	}
}

func TestDescribe(t *testing.T) {
	err := errors.New("cannot identify image file")
	if got := Describe(KindImage, err); got != "Error processing image: cannot identify image file" {
		t.Fatalf("got %q", got)
	}
	if got := Describe(KindVideo, err); got != "Error processing video: cannot identify image file" {
		t.Fatalf("got %q", got)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{apperr.ErrEmptyInput, "empty"},
		{apperr.Unsupported("x"), "unsupported"},
		{apperr.Invalid("x"), "invalid"},
		{context.Canceled, "canceled"},
		{apperr.External("classifier", errors.New("x")), "external_error"},
		{errors.New("x"), "error"},
	}
	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
