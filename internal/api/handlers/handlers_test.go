package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/veritas/backend/internal/detection"
	"github.com/veritas/backend/internal/media"
	"github.com/veritas/backend/internal/verdict"
	"github.com/veritas/backend/internal/verify"
	"github.com/veritas/backend/internal/video"
	"github.com/veritas/backend/pkg/apperr"
)

type fakeVerifier struct {
	lastClaim string
	lastImage string
}

func (f *fakeVerifier) Verify(_ context.Context, claimText string) *verify.TextResult {
	f.lastClaim = claimText
	return &verify.TextResult{Claim: claimText, Analysis: "Fake.", NoData: true, Info: verify.NoDataMessage}
}

func (f *fakeVerifier) VerifyImageContext(_ context.Context, imageURL string) *verify.TextResult {
	f.lastImage = imageURL
	return &verify.TextResult{Claim: "Verify this image context.", Analysis: "Not sure."}
}

type fakeDetector struct {
	imageErr  error
	videoErr  error
	lastOpts  video.Options
	lastPath  string
	lastImage []byte
}

func (f *fakeDetector) DetectImage(_ context.Context, data []byte) (*detection.ImageResult, error) {
	f.lastImage = data
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return &detection.ImageResult{Verdict: verdict.Fake, Score: 0.93}, nil
}

func (f *fakeDetector) DetectVideo(_ context.Context, path string, opts video.Options, _ video.ProgressFunc) (*detection.VideoResult, error) {
	f.lastPath = path
	f.lastOpts = opts
	if f.videoErr != nil {
		return nil, f.videoErr
	}
	return &detection.VideoResult{Analysis: video.Analysis{
		Result:      video.Result{Verdict: verdict.NotSure, Mean: 0.5, Count: 4},
		TotalFrames: 90,
		Stride:      opts.Stride,
		Reverse:     opts.Reverse,
	}}, nil
}

type fakeFetcher struct {
	dir     string
	content []byte
	err     error
	lastURL string
}

func (f *fakeFetcher) Download(_ context.Context, rawURL string, _ media.Kind, _ int64) (string, error) {
	f.lastURL = rawURL
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(f.dir, "download.bin")
	return path, os.WriteFile(path, f.content, 0o600)
}

func (f *fakeFetcher) SaveUpload(r io.Reader, suffix string, _ int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	path := filepath.Join(f.dir, "upload"+suffix)
	return path, os.WriteFile(path, data, 0o600)
}

type fakeTallies struct {
	counts map[string]map[string]int64
}

func (f *fakeTallies) Counts(context.Context) (map[string]map[string]int64, error) {
	return f.counts, nil
}

func (f *fakeTallies) Ping(context.Context) error { return nil }

type fixture struct {
	app      *fiber.App
	verifier *fakeVerifier
	detector *fakeDetector
	fetcher  *fakeFetcher
}

func newFixture(t *testing.T, tallies TallySource) *fixture {
	t.Helper()
	f := &fixture{
		verifier: &fakeVerifier{},
		detector: &fakeDetector{},
		fetcher:  &fakeFetcher{dir: t.TempDir(), content: []byte("media")},
	}

	limits := MediaLimits{MaxImageBytes: 1 << 20, MaxVideoBytes: 1 << 20}
	videos := NewVideoHandler(f.detector, f.fetcher, limits, StrideLimits{Default: 30, Max: 60})

	f.app = fiber.New()
	Handlers{
		Claims:    NewClaimHandler(f.verifier),
		Images:    NewImageHandler(f.detector, f.fetcher, limits),
		Videos:    videos,
		WebSocket: NewWebSocketHandler(videos),
		Stats:     NewStatsHandler(tallies),
	}.Register(f.app.Group("/api/v1"))
	return f
}

func doJSON(t *testing.T, app *fiber.App, path string, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return do(t, app, req)
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func multipartRequest(t *testing.T, path, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestVerifyClaim(t *testing.T) {
	f := newFixture(t, nil)

	status, body := doJSON(t, f.app, "/api/v1/claims/verify", `{"text":"  The earth is flat  "}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if f.verifier.lastClaim != "The earth is flat" {
		t.Fatalf("claim should be trimmed, got %q", f.verifier.lastClaim)
	}
	if body["analysis"] != "Fake." || body["no_data"] != true || body["info"] != verify.NoDataMessage {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestVerifyClaimRequiresText(t *testing.T) {
	f := newFixture(t, nil)

	status, body := doJSON(t, f.app, "/api/v1/claims/verify", `{"text":""}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if body["error"] != "Please enter some text to verify." {
		t.Fatalf("unexpected error %v", body["error"])
	}
}

func TestVerifyImageContext(t *testing.T) {
	f := newFixture(t, nil)

	status, _ := doJSON(t, f.app, "/api/v1/claims/image", `{"image_url":"https://img.example/x.png"}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if f.verifier.lastImage != "https://img.example/x.png" {
		t.Fatalf("unexpected image url %q", f.verifier.lastImage)
	}

	status, _ = doJSON(t, f.app, "/api/v1/claims/image", `{"image_url":"not a url"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for bad url, got %d", status)
	}
}

func TestAnalyzeImageUpload(t *testing.T) {
	f := newFixture(t, nil)

	status, body := do(t, f.app, multipartRequest(t, "/api/v1/images/analyze", "face.PNG", []byte("png-bytes"), nil))
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if string(f.detector.lastImage) != "png-bytes" {
		t.Fatalf("detector got %q", f.detector.lastImage)
	}
	if body["verdict"] != "fake" || body["label"] != "Fake" || body["severity"] != "error" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["summary"] != "Fake (fake score: 0.93)" {
		t.Fatalf("unexpected summary %v", body["summary"])
	}
	if body["id"] == "" {
		t.Fatalf("expected id")
	}
}

func TestAnalyzeImageRejectsExtension(t *testing.T) {
	f := newFixture(t, nil)

	status, body := do(t, f.app, multipartRequest(t, "/api/v1/images/analyze", "doc.pdf", []byte("%PDF"), nil))
	if status != fiber.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", status)
	}
	if !strings.HasPrefix(body["error"].(string), "Error processing image: ") {
		t.Fatalf("unexpected error %v", body["error"])
	}
}

func TestAnalyzeImageByURL(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.content = []byte("remote-image")

	status, _ := doJSON(t, f.app, "/api/v1/images/analyze", `{"url":"https://example.com/a.jpg"}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if string(f.detector.lastImage) != "remote-image" {
		t.Fatalf("detector got %q", f.detector.lastImage)
	}
}

func TestAnalyzeImageErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unsupported", apperr.Unsupported("cannot decode image"), fiber.StatusUnsupportedMediaType},
		{"external", apperr.External("classifier", errors.New("503")), fiber.StatusBadGateway},
		{"internal", errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.detector.imageErr = tt.err

			status, body := do(t, f.app, multipartRequest(t, "/api/v1/images/analyze", "a.jpg", []byte("x"), nil))
			if status != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, status)
			}
			if body["error"] == "" {
				t.Fatalf("error body should be descriptive")
			}
		})
	}
}

func TestAnalyzeVideoUpload(t *testing.T) {
	f := newFixture(t, nil)

	req := multipartRequest(t, "/api/v1/videos/analyze", "clip.mp4", []byte("mp4"), map[string]string{"stride": "5", "reverse": "true"})
	status, body := do(t, f.app, req)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if f.detector.lastOpts != (video.Options{Stride: 5, Reverse: true}) {
		t.Fatalf("unexpected options %+v", f.detector.lastOpts)
	}
	if !strings.HasSuffix(f.detector.lastPath, ".mp4") {
		t.Fatalf("upload suffix should be kept, got %s", f.detector.lastPath)
	}
	if _, err := os.Stat(f.detector.lastPath); !os.IsNotExist(err) {
		t.Fatalf("temp file should be removed after analysis")
	}
	if body["summary"] != "Not sure (average fake score: 0.50, checked 4 frames)" {
		t.Fatalf("unexpected summary %v", body["summary"])
	}
	if body["tip"] != detection.VideoTip {
		t.Fatalf("missing tip")
	}
}

func TestAnalyzeVideoStride(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		stride int
	}{
		{"default", `{"url":"https://example.com/v.mp4"}`, fiber.StatusOK, 30},
		{"explicit", `{"url":"https://example.com/v.mp4","stride":1}`, fiber.StatusOK, 1},
		{"max", `{"url":"https://example.com/v.mp4","stride":60}`, fiber.StatusOK, 60},
		{"zero", `{"url":"https://example.com/v.mp4","stride":0}`, fiber.StatusBadRequest, 0},
		{"too large", `{"url":"https://example.com/v.mp4","stride":61}`, fiber.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			status, body := doJSON(t, f.app, "/api/v1/videos/analyze", tt.body)
			if status != tt.status {
				t.Fatalf("expected %d, got %d: %v", tt.status, status, body)
			}
			if tt.status == fiber.StatusOK && f.detector.lastOpts.Stride != tt.stride {
				t.Fatalf("expected stride %d, got %d", tt.stride, f.detector.lastOpts.Stride)
			}
		})
	}
}

func TestAnalyzeVideoNoFrames(t *testing.T) {
	f := newFixture(t, nil)
	f.detector.videoErr = apperr.ErrEmptyInput

	status, body := doJSON(t, f.app, "/api/v1/videos/analyze", `{"url":"https://example.com/v.mp4"}`)
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	if body["error"] != "Error: No frames checked" {
		t.Fatalf("unexpected error %v", body["error"])
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	if status, _ := do(t, f.app, req); status != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503 without redis, got %d", status)
	}

	f = newFixture(t, &fakeTallies{counts: map[string]map[string]int64{"image": {"fake": 3}}})
	req = httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	status, body := do(t, f.app, req)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	tallies := body["tallies"].(map[string]interface{})
	if tallies["image"].(map[string]interface{})["fake"] != float64(3) {
		t.Fatalf("unexpected tallies %v", tallies)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	for _, path := range []string{"/api/v1/health", "/api/v1/ready"} {
		status, _ := do(t, f.app, httptest.NewRequest(http.MethodGet, path, nil))
		if status != fiber.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, status)
		}
	}
}
