package validation

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{MaxClaimLength: 20}))
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	app.Post("/api/v1/claims/verify", ok)
	app.Post("/api/v1/claims/image", ok)
	app.Post("/api/v1/videos/analyze", ok)
	return app
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		contentType string
		body        string
		wantStatus  int
	}{
		{"valid claim", "/api/v1/claims/verify", "application/json", `{"text":"the sky is green"}`, 200},
		{"empty claim", "/api/v1/claims/verify", "application/json", `{"text":"   "}`, 400},
		{"missing claim", "/api/v1/claims/verify", "application/json", `{}`, 400},
		{"claim too long", "/api/v1/claims/verify", "application/json", `{"text":"` + strings.Repeat("x", 21) + `"}`, 400},
		{"claim mentioning markup", "/api/v1/claims/verify", "application/json", `{"text":"<script>x"}`, 200},
		{"bad json", "/api/v1/claims/verify", "application/json", `{`, 400},
		{"image url ok", "/api/v1/claims/image", "application/json", `{"image_url":"https://a.b/c.jpg"}`, 200},
		{"image url bad scheme", "/api/v1/claims/image", "application/json", `{"image_url":"file:///etc/passwd"}`, 400},
		{"video url ok", "/api/v1/videos/analyze", "application/json", `{"url":"http://a.b/v.mp4","stride":5}`, 200},
		{"video url missing", "/api/v1/videos/analyze", "application/json", `{"stride":5}`, 400},
		{"multipart passes", "/api/v1/videos/analyze", "multipart/form-data; boundary=x", "--x--", 200},
		{"wrong content type", "/api/v1/claims/verify", "text/plain", "hello", 415},
	}

	app := newApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				body, _ := io.ReadAll(resp.Body)
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, resp.StatusCode, body)
			}
		})
	}
}

func TestMiddlewareKeepsClaimTextVerbatim(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{}))
	app.Post("/api/v1/claims/verify", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	claims := []string{
		`{"text":"Viral post says clicking javascript: links drains your bank account"}`,
		`{"text":"Claim: the <script> of the moon landing was written by Kubrick"}`,
		`{"text":"Buttons with onclick= handlers can read your passwords"}`,
	}
	for _, body := range claims {
		req := httptest.NewRequest("POST", "/api/v1/claims/verify", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Errorf("claim %s rejected with %d", body, resp.StatusCode)
		}
	}
}

func TestIsValidURL(t *testing.T) {
	for in, want := range map[string]bool{
		"https://example.com/x": true,
		"http://example.com":    true,
		"example.com":           false,
		"javascript:alert(1)":   false,
		"https://":              false,
	} {
		if got := IsValidURL(in); got != want {
			t.Errorf("IsValidURL(%q) = %v, want %v", in, got, want)
		}
	}
}
