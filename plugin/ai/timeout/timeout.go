// Package timeout defines centralized timeout constants for memory operations.
package timeout

import "time"

const (
	// LLMCallTimeout bounds one extraction or analysis call.
	LLMCallTimeout = 30 * time.Second

	// EnrichmentTimeout bounds the whole background enrichment of one closed session.
	EnrichmentTimeout = 2 * time.Minute

	// MaintenanceRunTimeout bounds a single scheduled sweep.
	MaintenanceRunTimeout = time.Hour

	// SchedulerStopTimeout is how long Stop waits for a running sweep.
	SchedulerStopTimeout = 5 * time.Second

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	MaxTruncateLength = 200
)
