package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/guildmind/internal/profile"
	"github.com/hrygo/guildmind/server/middleware"
	apiv1 "github.com/hrygo/guildmind/server/router/api/v1"
)

// Server is the HTTP surface of the memory service.
type Server struct {
	Profile *profile.Profile

	echoServer *echo.Echo
	api        *apiv1.APIV1Service
}

// NewServer wires api into an echo instance with recovery, rate limiting
// and a health endpoint.
func NewServer(p *profile.Profile, api *apiv1.APIV1Service) *Server {
	e := echo.New()
	e.Debug = p.IsDev()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apiv1.HTTPErrorHandler
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RateLimit(middleware.NewRateLimiter(p.HTTPRequestsPerSec, p.HTTPBurst), nil))

	s := &Server{Profile: p, echoServer: e, api: api}
	e.GET("/healthz", s.healthz)
	api.RegisterRoutes(e)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start listens on the profile address and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", address)
	}
	s.echoServer.Listener = listener
	slog.Info("http server started", "address", address)

	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	return nil
}

// Shutdown stops accepting requests and drains in-flight ones.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}
	slog.Info("server stopped properly")
}

// HealthResponse reports liveness and the store driver in use.
type HealthResponse struct {
	Status  string `json:"status"`
	Driver  string `json:"driver"`
	Version string `json:"version,omitempty"`
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Driver:  s.Profile.Driver,
		Version: s.Profile.Version,
	})
}
