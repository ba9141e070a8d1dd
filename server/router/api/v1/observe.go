package v1

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/guildmind/server/internal/observability"
)

// observe attaches a request context and records per-operation metrics.
func (s *APIV1Service) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		operation := req.Method + " " + c.Path()
		requestID := req.Header.Get(echo.HeaderXRequestID)
		if requestID == "" {
			requestID = c.Response().Header().Get(echo.HeaderXRequestID)
		}
		reqCtx := observability.NewRequestContext(s.Logger, requestID, operation)
		reqCtx.SetScope(c.QueryParam("user_id"), c.QueryParam("guild_id"))
		c.Response().Header().Set(echo.HeaderXRequestID, reqCtx.RequestID)
		c.SetRequest(req.WithContext(observability.WithRequestContext(req.Context(), reqCtx)))

		err := next(c)

		status := c.Response().Status
		if err != nil {
			status = statusOf(err)
		}
		duration := reqCtx.Duration()
		s.Metrics.Record(operation, duration, status >= 400)
		reqCtx.Info("request served",
			slog.Int(observability.LogFieldStatus, status),
			slog.Int64(observability.LogFieldDuration, duration.Milliseconds()),
		)
		return err
	}
}

// scope records the target user and guild on the request logger once the body is bound.
func scope(c echo.Context, userID, guildID string) {
	if reqCtx, ok := observability.FromContext(c.Request().Context()); ok {
		reqCtx.SetScope(userID, guildID)
	}
}
