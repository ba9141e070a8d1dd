package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/guildmind/server/internal/errors"
)

func TestRateLimiter(t *testing.T) {
	t.Run("burst then deny", func(t *testing.T) {
		rl := NewRateLimiter(1, 3)
		for i := 0; i < 3; i++ {
			assert.True(t, rl.Allow("a"), "request %d", i)
		}
		assert.False(t, rl.Allow("a"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		rl := NewRateLimiter(1, 1)
		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		assert.True(t, rl.Allow("b"))
	})

	t.Run("defaults", func(t *testing.T) {
		rl := NewRateLimiter(0, 0)
		assert.Equal(t, DefaultBurst, rl.burst)
		assert.Equal(t, time.Second/DefaultRequestsPerSecond, rl.every)
	})

	t.Run("wait honors context", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 1)
		require.NoError(t, rl.Wait(context.Background(), "a"))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.Error(t, rl.Wait(ctx, "a"))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	e := echo.New()
	handler := RateLimit(NewRateLimiter(1, 1), nil)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	call := func() error {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		return handler(e.NewContext(req, httptest.NewRecorder()))
	}

	require.NoError(t, call())
	err := call()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRateLimitExceeded))
}
