package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics aggregates request counts and latencies per memory operation.
type Metrics struct {
	mu         sync.Mutex
	operations map[string]*operationMetrics

	requestTotal  atomic.Int64
	requestFailed atomic.Int64
}

type operationMetrics struct {
	count         atomic.Int64
	errors        atomic.Int64
	totalDuration atomic.Int64 // milliseconds
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{operations: make(map[string]*operationMetrics)}
}

// Record records one finished request.
func (m *Metrics) Record(operation string, duration time.Duration, failed bool) {
	m.requestTotal.Add(1)
	om := m.operation(operation)
	om.count.Add(1)
	om.totalDuration.Add(duration.Milliseconds())
	if failed {
		m.requestFailed.Add(1)
		om.errors.Add(1)
	}
}

func (m *Metrics) operation(name string) *operationMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	om, ok := m.operations[name]
	if !ok {
		om = &operationMetrics{}
		m.operations[name] = om
	}
	return om
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	names := make([]string, 0, len(m.operations))
	for name := range m.operations {
		names = append(names, name)
	}
	ops := make(map[string]*operationMetrics, len(m.operations))
	for name, om := range m.operations {
		ops[name] = om
	}
	m.mu.Unlock()
	sort.Strings(names)

	snapshot := &MetricsSnapshot{
		RequestTotal:  m.requestTotal.Load(),
		RequestFailed: m.requestFailed.Load(),
		Operations:    make([]OperationSnapshot, 0, len(names)),
	}
	for _, name := range names {
		om := ops[name]
		count := om.count.Load()
		var avg int64
		if count > 0 {
			avg = om.totalDuration.Load() / count
		}
		snapshot.Operations = append(snapshot.Operations, OperationSnapshot{
			Operation:    name,
			Count:        count,
			Errors:       om.errors.Load(),
			AvgLatencyMs: avg,
		})
	}
	return snapshot
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	RequestTotal  int64               `json:"request_total"`
	RequestFailed int64               `json:"request_failed"`
	Operations    []OperationSnapshot `json:"operations"`
}

// OperationSnapshot holds the metrics of one operation.
type OperationSnapshot struct {
	Operation    string `json:"operation"`
	Count        int64  `json:"count"`
	Errors       int64  `json:"errors"`
	AvgLatencyMs int64  `json:"avg_latency_ms"`
}

// SuccessRate returns the success rate as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.RequestTotal == 0 {
		return 100.0
	}
	return float64(s.RequestTotal-s.RequestFailed) / float64(s.RequestTotal) * 100.0
}
