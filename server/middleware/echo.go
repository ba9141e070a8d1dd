package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/hrygo/guildmind/server/internal/errors"
)

// KeyFunc derives the rate-limit key of a request.
type KeyFunc func(c echo.Context) string

// ClientIP keys requests by the client address.
func ClientIP(c echo.Context) string {
	return c.RealIP()
}

// RateLimit rejects requests over the per-key limit with RATE_LIMIT_EXCEEDED.
// A nil keyFunc keys by client IP.
func RateLimit(rl *RateLimiter, keyFunc KeyFunc) echo.MiddlewareFunc {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := keyFunc(c)
			if !rl.Allow(key) {
				return errors.RateLimitExceeded("too many requests").WithContext("key", key)
			}
			return next(c)
		}
	}
}
