package ratelimit

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestAllowPerKey(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1, Burst: 2})
	defer rl.Stop()

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatalf("burst of 2 should be allowed")
	}
	if rl.Allow("a") {
		t.Fatalf("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Fatalf("other keys have their own bucket")
	}
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1, Burst: 1})
	defer rl.Stop()

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	statuses := make([]int, 0, 3)
	for _, user := range []string{"u1", "u1", "u2"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-User-ID", user)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		statuses = append(statuses, resp.StatusCode)
	}

	want := []int{fiber.StatusOK, fiber.StatusTooManyRequests, fiber.StatusOK}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("request %d: expected %d, got %d", i, want[i], statuses[i])
		}
	}
}
