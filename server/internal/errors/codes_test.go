package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryError(t *testing.T) {
	cause := errors.New("connection refused")
	err := StoreUnavailable("list profiles", cause).WithContext("driver", "postgres")

	assert.Equal(t, "[STORE_UNAVAILABLE] list profiles: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "postgres", err.Context["driver"])

	wrapped := fmt.Errorf("sweep: %w", err)
	assert.True(t, IsCode(wrapped, ErrCodeStoreUnavailable))
	assert.False(t, IsCode(wrapped, ErrCodeTimeout))
	assert.Equal(t, ErrCodeStoreUnavailable, GetCodeFromError(wrapped, ErrCodeInternal))
	assert.Equal(t, ErrCodeInternal, GetCodeFromError(cause, ErrCodeInternal))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeInvalidArgument, http.StatusBadRequest},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeConflict, http.StatusConflict},
		{ErrCodeRateLimitExceeded, http.StatusTooManyRequests},
		{ErrCodeTimeout, http.StatusGatewayTimeout},
		{ErrorCode("UNKNOWN"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}
