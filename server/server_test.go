package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/guildmind/internal/profile"
	apiv1 "github.com/hrygo/guildmind/server/router/api/v1"
)

func TestServer(t *testing.T) {
	p := &profile.Profile{Mode: "dev", Driver: "sqlite", Version: "test", HTTPRequestsPerSec: 1, HTTPBurst: 2}
	s := NewServer(p, &apiv1.APIV1Service{})

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.1.1.1:5000"
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec := get("/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","driver":"sqlite","version":"test"}`, rec.Body.String())

	rec = get("/api/v1/memory/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get("/healthz")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
}
