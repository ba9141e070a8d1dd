package v1

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/guildmind/plugin/ai/memory"
	"github.com/hrygo/guildmind/plugin/ai/narrative"
	"github.com/hrygo/guildmind/plugin/ai/session"
	"github.com/hrygo/guildmind/server/internal/errors"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// classify maps service errors onto API error codes.
func classify(err error) *errors.MemoryError {
	var memErr *errors.MemoryError
	if stderrors.As(err, &memErr) {
		return memErr
	}
	var httpErr *echo.HTTPError
	if stderrors.As(err, &httpErr) {
		return &errors.MemoryError{Code: codeForStatus(httpErr.Code), Message: http.StatusText(httpErr.Code), Cause: err}
	}
	switch {
	case stderrors.Is(err, memory.ErrInvalidScope), stderrors.Is(err, narrative.ErrMemoryTooShort):
		return errors.Wrap(err, errors.ErrCodeInvalidArgument, "invalid argument")
	case stderrors.Is(err, session.ErrSessionNotFound):
		return errors.Wrap(err, errors.ErrCodeNotFound, "session not found")
	case stderrors.Is(err, session.ErrSessionNotOpen):
		return errors.Conflict("session is not open", err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.Timeout("request timed out", err)
	}
	return errors.StoreUnavailable("storage operation failed", err)
}

func codeForStatus(status int) errors.ErrorCode {
	switch status {
	case http.StatusBadRequest:
		return errors.ErrCodeInvalidArgument
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return errors.ErrCodeNotFound
	case http.StatusTooManyRequests:
		return errors.ErrCodeRateLimitExceeded
	}
	return errors.ErrCodeInternal
}

// statusOf returns the HTTP status err will be rendered with.
func statusOf(err error) int {
	var httpErr *echo.HTTPError
	if stderrors.As(err, &httpErr) {
		return httpErr.Code
	}
	return classify(err).Code.HTTPStatus()
}

// HTTPErrorHandler renders errors as ErrorResponse.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	memErr := classify(err)
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "code", memErr.Code, "error", err)
	}
	message := memErr.Message
	if memErr.Code == errors.ErrCodeInvalidArgument && memErr.Cause != nil {
		message = memErr.Cause.Error()
	}
	if err := c.JSON(status, ErrorResponse{Code: memErr.Code, Message: message}); err != nil {
		slog.Warn("failed to write error response", "error", err)
	}
}

func badRequest(msg string) error {
	return errors.InvalidArgument(msg)
}
