package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/guildmind/plugin/ai/decay"
	"github.com/hrygo/guildmind/plugin/ai/maintenance"
	"github.com/hrygo/guildmind/server/internal/errors"
)

// RunMaintenanceRequest overrides the sweep thresholds. Omitted fields use the
// server's configuration.
type RunMaintenanceRequest struct {
	DecayDays      *int     `json:"decay_days"`
	PruneThreshold *float64 `json:"prune_threshold"`
}

// RunMaintenance runs one sweep synchronously and returns its report.
// POST /api/v1/memory/maintenance/run
func (s *APIV1Service) RunMaintenance(c echo.Context) error {
	if s.Sweeper == nil {
		return errors.NotFound("maintenance is not enabled")
	}
	var req RunMaintenanceRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	decayDays := s.DecayDays
	if decayDays <= 0 {
		decayDays = decay.DefaultDecayDays
	}
	if req.DecayDays != nil {
		decayDays = *req.DecayDays
	}
	pruneThreshold := s.PruneBelow
	if pruneThreshold <= 0 {
		pruneThreshold = maintenance.DefaultPruneThreshold
	}
	if req.PruneThreshold != nil {
		pruneThreshold = *req.PruneThreshold
	}
	if decayDays <= 0 || pruneThreshold < 0 || pruneThreshold > 1 {
		return badRequest("decay_days must be positive and prune_threshold within [0, 1]")
	}
	report := s.Sweeper.RunMaintenance(c.Request().Context(), decayDays, pruneThreshold)
	return c.JSON(http.StatusOK, report)
}

// GetLastMaintenance returns the report of the last scheduled sweep.
// GET /api/v1/memory/maintenance/last
func (s *APIV1Service) GetLastMaintenance(c echo.Context) error {
	if s.Scheduler == nil {
		return errors.NotFound("scheduler is not running")
	}
	report := s.Scheduler.LastReport()
	if report == nil {
		return errors.NotFound("no sweep has completed yet")
	}
	return c.JSON(http.StatusOK, report)
}
