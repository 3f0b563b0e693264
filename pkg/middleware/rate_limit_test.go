package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/cloudidm/onboard/internal/sessions"
)

func TestRateLimitMiddleware_AllowsUnderLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(10, 2)) // generous rate
	r.GET("/ok", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	req := httptest.NewRequest("GET", "/ok", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	req2 := httptest.NewRequest("GET", "/ok", nil)
	req2.RemoteAddr = "10.0.0.1:1234"
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, http.StatusOK, w2.Code)
}

func TestRateLimitMiddleware_BlocksWhenExceeded(t *testing.T) {
	r := gin.New()
	// very low rate to force rejections
	r.Use(RateLimitMiddleware(0.5, 1))
	r.GET("/limited", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	serve := func() *httptest.ResponseRecorder {
		rq := httptest.NewRequest("GET", "/limited", nil)
		rq.RemoteAddr = "10.0.0.2:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, rq)
		return w
	}

	// first request -> allowed
	require.Equal(t, http.StatusOK, serve().Code)

	// immediate second request -> should be rate-limited
	w2 := serve()
	require.Equal(t, http.StatusTooManyRequests, w2.Code)
	require.Equal(t, "1", w2.Header().Get("Retry-After"))

	// wait long enough to replenish one token and it should be allowed
	time.Sleep(2100 * time.Millisecond)
	require.Equal(t, http.StatusOK, serve().Code)
}

func TestRateLimitMiddleware_UsesSessionUserWhenPresent(t *testing.T) {
	r := gin.New()
	// middleware that injects the session before the rate limiter
	r.Use(func(c *gin.Context) {
		c.Set("session", &sessions.Session{ID: "s1", Username: "limited-admin"})
		c.Next()
	})
	r.Use(RateLimitMiddleware(0.5, 1))
	r.GET("/u", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	serve := func(addr string) *httptest.ResponseRecorder {
		rq := httptest.NewRequest("GET", "/u", nil)
		rq.RemoteAddr = addr
		w := httptest.NewRecorder()
		r.ServeHTTP(w, rq)
		return w
	}

	// first request allowed
	require.Equal(t, http.StatusOK, serve("10.0.0.3:1234").Code)

	// immediate second request is rejected for the same user even though
	// it arrives from a different address
	require.Equal(t, http.StatusTooManyRequests, serve("10.0.0.4:1234").Code)
}
