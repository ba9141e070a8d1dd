package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/hrygo/guildmind/plugin/ai/decay"
	"github.com/hrygo/guildmind/plugin/ai/timeout"
)

// DefaultSpec runs the sweep daily at 03:00 (seconds field first).
const DefaultSpec = "0 0 3 * * *"

// SchedulerConfig configures the periodic sweep.
type SchedulerConfig struct {
	Spec           string
	DecayDays      int
	PruneThreshold float64
	// RunTimeout bounds a single sweep (default: 1h).
	RunTimeout time.Duration
}

// Scheduler runs the sweep on a cron schedule. Overlapping runs are skipped.
type Scheduler struct {
	sweeper *Sweeper
	config  SchedulerConfig

	mu      sync.Mutex
	cron    *cron.Cron
	running bool

	inFlight atomic.Bool
	last     atomic.Pointer[Report]
}

// NewScheduler creates a scheduler for sweeper.
func NewScheduler(sweeper *Sweeper, config SchedulerConfig) *Scheduler {
	if config.Spec == "" {
		config.Spec = DefaultSpec
	}
	if config.DecayDays <= 0 {
		config.DecayDays = decay.DefaultDecayDays
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = timeout.MaintenanceRunTimeout
	}
	return &Scheduler{sweeper: sweeper, config: config}
}

// Start registers the sweep and starts the cron loop. It is non-blocking;
// the loop stops on Stop or when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(s.config.Spec, func() { s.RunOnce(ctx) }); err != nil {
		return errors.Wrapf(err, "invalid maintenance schedule %q", s.config.Spec)
	}
	c.Start()
	s.cron = c
	s.running = true

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	slog.Info("maintenance scheduler started",
		"spec", s.config.Spec,
		"decay_days", s.config.DecayDays,
		"prune_threshold", s.config.PruneThreshold,
	)
	return nil
}

// Stop stops the cron loop and waits briefly for a running sweep.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c := s.cron
	s.running = false
	s.mu.Unlock()

	select {
	case <-c.Stop().Done():
	case <-time.After(timeout.SchedulerStopTimeout):
		slog.Warn("maintenance scheduler stop timed out waiting for running sweep")
	}
	slog.Info("maintenance scheduler stopped")
}

// RunOnce runs a sweep now. It returns nil without running when another
// sweep is still in flight.
func (s *Scheduler) RunOnce(ctx context.Context) *Report {
	if !s.inFlight.CompareAndSwap(false, true) {
		slog.Warn("maintenance sweep skipped: previous run still in progress")
		return nil
	}
	defer s.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	report := s.sweeper.RunMaintenance(ctx, s.config.DecayDays, s.config.PruneThreshold)
	s.last.Store(report)
	return report
}

// LastReport returns the report of the most recent sweep, or nil.
func (s *Scheduler) LastReport() *Report {
	return s.last.Load()
}

// IsRunning returns whether the cron loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
