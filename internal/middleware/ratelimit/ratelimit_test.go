package ratelimit

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }

func newTestLimiter(t *testing.T, perMinute int) (*RateLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := New(Config{MaxRequestsPerMinute: perMinute})
	rl.now = clock.now
	t.Cleanup(rl.Stop)
	return rl, clock
}

func TestAllow_ExhaustsAndRefills(t *testing.T) {
	rl, clock := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "buckets are per client")

	clock.t = clock.t.Add(20 * time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	clock.t = clock.t.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"))
	}
	assert.False(t, rl.Allow("10.0.0.1"), "refill is capped at the bucket size")
}

func TestEvictIdle(t *testing.T) {
	rl, clock := newTestLimiter(t, 10)

	rl.Allow("a")
	clock.t = clock.t.Add(5 * time.Minute)
	rl.Allow("b")
	clock.t = clock.t.Add(6 * time.Minute)

	rl.evictIdle(10 * time.Minute)

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	assert.NotContains(t, rl.buckets, "a")
	assert.Contains(t, rl.buckets, "b")
}

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)

	app := fiber.New()
	app.Get("/", rl.Middleware(), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "61", resp.Header.Get(fiber.HeaderRetryAfter))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body struct {
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "rate_limited", body.Error.Kind)
}

func TestStopIsIdempotent(t *testing.T) {
	rl := New(Config{})
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
