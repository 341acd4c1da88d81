package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/transfer-api/transfer_api/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *int, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	logger := logging.Discard()
	calls := 0
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(usernameLocal, c.Get("X-Test-User"))
		return c.Next()
	})
	app.Use(Idempotency(cache, time.Minute, logger))
	app.Post("/resource", func(c *fiber.Ctx) error {
		calls++
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": calls})
	})
	app.Post("/fails", func(c *fiber.Ctx) error {
		calls++
		return fiber.NewError(fiber.StatusBadRequest, "nope")
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, &calls, cleanup
}

func send(t *testing.T, app *fiber.App, path, user, key string) (int, string) {
	t.Helper()
	return sendBody(t, app, path, user, key, "{}")
}

func sendBody(t *testing.T, app *fiber.App, path, user, key, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-Test-User", user)
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(payload)
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	send(t, app, "/resource", "alice", "")
	send(t, app, "/resource", "alice", "")
	if *calls != 2 {
		t.Fatalf("expected handler to run twice, got %d", *calls)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	status, payload := send(t, app, "/resource", "alice", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	// Second request should return the cached response without invoking handler again.
	status2, cachedPayload := send(t, app, "/resource", "alice", "abc123")
	if status2 != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status2)
	}
	if cachedPayload != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cachedPayload)
	}
	if *calls != 1 {
		t.Fatalf("expected a single handler call, got %d", *calls)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cachedPayload), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	send(t, app, "/resource", "alice", "shared")
	_, body := send(t, app, "/resource", "bob", "shared")
	if *calls != 2 {
		t.Fatalf("expected bob's request to run, got %d calls", *calls)
	}
	if !strings.Contains(body, `"call":2`) {
		t.Fatalf("bob received alice's response: %s", body)
	}
}

func TestIdempotencyDoesNotCacheFailures(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		if status, _ := send(t, app, "/fails", "alice", "k"); status != fiber.StatusBadRequest {
			t.Fatalf("expected 400 got %d", status)
		}
	}
	if *calls != 2 {
		t.Fatalf("expected failed request to be retried, got %d calls", *calls)
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	if status, _ := sendBody(t, app, "/resource", "alice", "k-body", `{"value":10}`); status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}
	status, body := sendBody(t, app, "/resource", "alice", "k-body", `{"value":11}`)
	if status != fiber.StatusConflict {
		t.Fatalf("expected 409 for a different body, got %d: %s", status, body)
	}
	if *calls != 1 {
		t.Fatalf("handler must not run for a conflicting body, got %d calls", *calls)
	}

	if status, _ := sendBody(t, app, "/resource", "alice", "k-body", `{"value":10}`); status != fiber.StatusCreated {
		t.Fatalf("expected the original body to still replay, got %d", status)
	}
}
