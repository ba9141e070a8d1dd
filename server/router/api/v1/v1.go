package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/guildmind/plugin/ai/maintenance"
	"github.com/hrygo/guildmind/plugin/ai/memory"
	"github.com/hrygo/guildmind/plugin/ai/narrative"
	"github.com/hrygo/guildmind/plugin/ai/session"
	"github.com/hrygo/guildmind/server/internal/observability"
	"github.com/hrygo/guildmind/store"
)

// APIV1Service exposes the memory operations over JSON.
type APIV1Service struct {
	Store      *store.Store
	Memory     *memory.Service
	Narratives *narrative.Service
	Sessions   session.SessionService
	Sweeper    *maintenance.Sweeper
	Scheduler  *maintenance.Scheduler
	Metrics    *observability.Metrics
	Logger     *slog.Logger
	DecayDays  int
	PruneBelow float64
	StartedAt  time.Time
}

// RegisterRoutes mounts the API under /api/v1.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	if s.Metrics == nil {
		s.Metrics = observability.NewMetrics()
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}

	g := e.Group("/api/v1", s.observe)
	g.GET("/system/metrics/overview", s.GetMetricsOverview)

	m := g.Group("/memory")
	m.GET("/envelope", s.GetEnvelope)
	m.GET("/envelope/format", s.FormatEnvelope)
	m.POST("/invalidate", s.InvalidateCache)
	m.PUT("/profile", s.UpsertProfile)
	m.DELETE("/profile", s.PurgeProfile)

	m.POST("/facts/extract", s.ExtractFacts)
	m.POST("/facts", s.AddFact)
	m.POST("/facts/reinforce", s.ReinforceFact)
	m.POST("/patterns/analyze", s.AnalyzePatterns)
	m.POST("/patterns/apply", s.ApplyProfileUpdates)

	m.POST("/narratives", s.AddSharedNarrative)
	m.GET("/narratives", s.GetSharedNarratives)
	m.DELETE("/narratives", s.DeleteSharedNarrative)

	m.POST("/sessions", s.OpenSession)
	m.GET("/sessions/:id", s.GetSession)
	m.POST("/sessions/:id/messages", s.AppendMessage)
	m.POST("/sessions/:id/close", s.CloseSession)

	m.POST("/maintenance/run", s.RunMaintenance)
	m.GET("/maintenance/last", s.GetLastMaintenance)
}

// successResponse is returned by writes that report a plain outcome.
type successResponse struct {
	Success bool `json:"success"`
}

func ok(c echo.Context, success bool) error {
	return c.JSON(http.StatusOK, successResponse{Success: success})
}
