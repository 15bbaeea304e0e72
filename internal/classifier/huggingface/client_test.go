package huggingface

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/veritas/backend/pkg/apperr"
	"github.com/veritas/backend/pkg/retry"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestClient(url string) *Client {
	return NewClient(Config{
		Endpoint: url,
		APIToken: "hf_test",
		Timeout:  2 * time.Second,
		Retry:    retry.Single(nil),
	})
}

func TestScoreExtractsFakeLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer hf_test" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "image/png" {
			t.Errorf("unexpected content type %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) != len(pngHeader) {
			t.Errorf("unexpected body length %d", len(body))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"label":"real","score":0.12},{"label":"fake","score":0.88}]`))
	}))
	defer srv.Close()

	score, err := newTestClient(srv.URL).Score(context.Background(), pngHeader)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score != 0.88 {
		t.Fatalf("expected 0.88, got %v", score)
	}
}

func TestScoreDefaultsToZeroWithoutFakeLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[{"label":"real","score":0.97}]]`))
	}))
	defer srv.Close()

	score, err := newTestClient(srv.URL).Score(context.Background(), pngHeader)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score != 0 {
		t.Fatalf("expected 0, got %v", score)
	}
}

func TestClassifyServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Model is currently loading","estimated_time":20}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Classify(context.Background(), pngHeader)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !apperr.IsExternal(err) {
		t.Fatalf("expected external service error, got %T", err)
	}
	if !strings.Contains(err.Error(), "Model is currently loading") {
		t.Fatalf("error should carry service message: %v", err)
	}
}

func TestClassifyEmptyImage(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:0").Classify(context.Background(), nil)
	if !errors.Is(err, apperr.ErrUnsupportedInput) {
		t.Fatalf("expected unsupported input, got %v", err)
	}
}

func TestParsePredictionsRejectsGarbage(t *testing.T) {
	if _, err := parsePredictions([]byte(`{"oops":true}`)); err == nil {
		t.Fatalf("expected parse error")
	}
}
