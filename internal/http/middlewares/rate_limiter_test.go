package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRecorder struct{ routes []string }

func (r *recordingRecorder) RateLimitHit(route string) { r.routes = append(r.routes, route) }

type brokenCounter struct{}

func (brokenCounter) Hit(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("redis: connection refused")
}

func limitedRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/login", rl.RateLimiterMiddleware(KeyByIP), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func hit(r http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = ip + ":40000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	rec := &recordingRecorder{}
	r := limitedRouter(NewRateLimiter(NewMemoryCounter(), 2, time.Minute, rec, nil))

	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)

	w := hit(r, "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, []string{"/login"}, rec.routes)

	// other clients have their own window
	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.2").Code)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	r := limitedRouter(NewRateLimiter(brokenCounter{}, 1, time.Minute, nil, nil))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)
	}
}

func TestMemoryCounter_WindowResets(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemoryCounter()
	m.now = func() time.Time { return now }

	n, reset, err := m.Hit(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, reset)

	n, _, _ = m.Hit(context.Background(), "k", time.Minute)
	assert.Equal(t, int64(2), n)

	now = now.Add(61 * time.Second)
	n, _, _ = m.Hit(context.Background(), "k", time.Minute)
	assert.Equal(t, int64(1), n)
}

func TestMemoryCounter_SweepsExpiredBuckets(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemoryCounter()
	m.now = func() time.Time { return now }

	ctx := context.Background()
	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		_, _, err := m.Hit(ctx, ip, time.Minute)
		require.NoError(t, err)
	}
	assert.Len(t, m.clients, 3)

	now = now.Add(2 * time.Minute)
	_, _, err := m.Hit(ctx, "10.0.0.4", time.Minute)
	require.NoError(t, err)

	assert.Len(t, m.clients, 1)
	assert.Contains(t, m.clients, "10.0.0.4")
}

func TestRateLimiter_KeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(NewMemoryCounter(), 1, time.Minute, nil, nil)

	r := gin.New()
	r.GET("/users", func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			c.Set(ctxUserIDKey, id)
		}
	}, rl.RateLimiterMiddleware(KeyByUserOrIP), func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		req.RemoteAddr = "10.0.0.1:40000"
		if userID != "" {
			req.Header.Set("X-Test-User", userID)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	// same address, separate budgets per user
	assert.Equal(t, http.StatusOK, get("admin-1"))
	assert.Equal(t, http.StatusOK, get("admin-2"))
	assert.Equal(t, http.StatusTooManyRequests, get("admin-1"))

	// anonymous callers fall back to the address
	assert.Equal(t, http.StatusOK, get(""))
	assert.Equal(t, http.StatusTooManyRequests, get(""))
}
