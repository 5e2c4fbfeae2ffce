package mobiauth

import "sync/atomic"

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID uint16

const (
	// MetricChallengeIssued counts OTP challenges created and dispatched.
	MetricChallengeIssued MetricID = iota
	// MetricOTPVerifySuccess counts successful OTP verifications.
	MetricOTPVerifySuccess
	// MetricOTPVerifyFailure counts failed OTP verifications.
	MetricOTPVerifyFailure
	// MetricLoginSuccess counts completed logins (token issued).
	MetricLoginSuccess
	// MetricLoginFailure counts rejected logins in either phase.
	MetricLoginFailure
	// MetricSessionCreated counts sessions persisted.
	MetricSessionCreated
	// MetricSessionRevoked counts sessions revoked by any path.
	MetricSessionRevoked
	// MetricLogout counts logout calls that revoked a session.
	MetricLogout
	// MetricLogoutAll counts logout-all sweeps.
	MetricLogoutAll
	// MetricTokenRejected counts tokens rejected by Validate.
	MetricTokenRejected
	// MetricEnforcementAttempted counts enforcement tasks processed by
	// the worker pool.
	MetricEnforcementAttempted
	// MetricEnforcementRevoked counts sibling sessions revoked by
	// single-session enforcement.
	MetricEnforcementRevoked
	// MetricEnforcementFailed counts sibling revocations that failed and
	// were swallowed.
	MetricEnforcementFailed
	// MetricEnforcementDropped counts enforcement tasks dropped because the
	// queue was full.
	MetricEnforcementDropped

	metricIDCount
)

// Metrics holds lock-free atomic counters. When disabled, all operations
// are no-ops.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics creates a [Metrics] instance configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Get returns the current value of a counter.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || !m.enabled || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot deep-copies every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, metricIDCount),
	}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
