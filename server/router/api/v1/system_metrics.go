package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/guildmind/server/internal/observability"
)

// MetricsOverviewResponse represents the overview response of request metrics.
type MetricsOverviewResponse struct {
	TotalRequests int64                             `json:"total_requests"`
	SuccessRate   float64                           `json:"success_rate"`
	ErrorCount    int64                             `json:"error_count"`
	Uptime        string                            `json:"uptime"`
	Operations    []observability.OperationSnapshot `json:"operations"`
}

// GetMetricsOverview returns the request metrics since process start.
// GET /api/v1/system/metrics/overview
func (s *APIV1Service) GetMetricsOverview(c echo.Context) error {
	snapshot := s.Metrics.Snapshot()
	var uptime string
	if !s.StartedAt.IsZero() {
		uptime = time.Since(s.StartedAt).Truncate(time.Second).String()
	}
	return c.JSON(http.StatusOK, MetricsOverviewResponse{
		TotalRequests: snapshot.RequestTotal,
		SuccessRate:   snapshot.SuccessRate(),
		ErrorCount:    snapshot.RequestFailed,
		Uptime:        uptime,
		Operations:    snapshot.Operations,
	})
}
