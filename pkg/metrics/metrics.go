// Package metrics exposes Prometheus collectors for the session core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for ledger operations.
const (
	OutcomeOK                = "ok"
	OutcomeInsufficientFunds = "insufficient_funds"
	OutcomeConflict          = "conflict"
	OutcomeInvalidTransition = "invalid_transition"
	OutcomeInvalid           = "invalid"
	OutcomeError             = "error"
)

// Metrics bundles the collectors.
type Metrics struct {
	operations    *prometheus.CounterVec
	lockWait      prometheus.Histogram
	locksEvicted  prometheus.Counter
	sessionResets *prometheus.CounterVec
	tools         *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration, which keeps tests independent of the default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabkeeper_ledger_operations_total",
				Help: "Atomic ledger operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		lockWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tabkeeper_session_lock_wait_seconds",
				Help:    "Time spent waiting for a session lock",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
		),
		locksEvicted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tabkeeper_session_locks_evicted_total",
				Help: "Idle session locks removed by sweeps",
			},
		),
		sessionResets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabkeeper_session_resets_total",
				Help: "Session documents reset, by reason",
			},
			[]string{"reason"},
		),
		tools: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabkeeper_tool_invocations_total",
				Help: "Tool invocations by tool and result kind",
			},
			[]string{"tool", "kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.lockWait, m.locksEvicted, m.sessionResets, m.tools)
	}
	return m
}

// ObserveOperation counts one ledger operation.
func (m *Metrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// ObserveLockWait records how long a lock acquisition blocked.
func (m *Metrics) ObserveLockWait(seconds float64) {
	if m == nil {
		return
	}
	m.lockWait.Observe(seconds)
}

// LocksEvicted adds n swept locks.
func (m *Metrics) LocksEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.locksEvicted.Add(float64(n))
}

// SessionReset counts a reset.
func (m *Metrics) SessionReset(reason string) {
	if m == nil {
		return
	}
	m.sessionResets.WithLabelValues(reason).Inc()
}

// ObserveTool counts a tool invocation.
func (m *Metrics) ObserveTool(tool, kind string) {
	if m == nil {
		return
	}
	m.tools.WithLabelValues(tool, kind).Inc()
}

// RegistrySize registers a gauge reporting the number of live session locks.
func RegistrySize(reg prometheus.Registerer, size func() int) {
	if reg == nil {
		return
	}
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "tabkeeper_session_locks",
			Help: "Session locks currently held in the registry",
		},
		func() float64 { return float64(size()) },
	))
}
