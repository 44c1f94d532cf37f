// Package health tracks market-data feed quality and records DATA_HEALTH
// audit events for operator review.
package health

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-agent/internal/audit"
)

// Feed statuses.
const (
	StatusOK      = "OK"
	StatusWarning = "WARNING"
	StatusError   = "ERROR"
)

// Monitor watches candle fetch outcomes. A configurable run of consecutive
// failures marks the feed unhealthy.
type Monitor struct {
	mu           sync.Mutex
	ledger       *audit.Ledger
	logger       zerolog.Logger
	maxFailures  int
	failures     int
	lastSuccess  time.Time
	lastCandleAt time.Time
}

// NewMonitor builds a monitor; maxFailures <= 0 defaults to 3.
func NewMonitor(ledger *audit.Ledger, maxFailures int, logger zerolog.Logger) *Monitor {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &Monitor{
		ledger:      ledger,
		logger:      logger.With().Str("component", "health").Logger(),
		maxFailures: maxFailures,
	}
}

// RecordSuccess notes a good fetch and resets the failure run.
func (m *Monitor) RecordSuccess(provider string, lastCandle time.Time, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = 0
	m.lastSuccess = time.Now().UTC()
	m.lastCandleAt = lastCandle

	staleness := m.lastSuccess.Sub(lastCandle).Minutes()
	status := StatusOK
	if staleness > 60 {
		status = StatusWarning
	}
	m.record(provider, status, staleness, latency, "")
}

// RecordFailure notes a failed fetch. The tick that observed it is skipped;
// state is otherwise unchanged.
func (m *Monitor) RecordFailure(provider string, latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++

	m.logger.Warn().Err(err).Int("consecutive", m.failures).Msg("data fetch failed")
	note := ""
	if err != nil {
		note = err.Error()
	}
	staleness := 0.0
	if !m.lastCandleAt.IsZero() {
		staleness = time.Now().UTC().Sub(m.lastCandleAt).Minutes()
	}
	m.record(provider, StatusError, staleness, latency, note)
}

// Healthy reports whether the failure run is under the threshold.
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures < m.maxFailures
}

// Status returns a snapshot for the API surface.
func (m *Monitor) Status() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]interface{}{
		"healthy":              m.failures < m.maxFailures,
		"consecutive_failures": m.failures,
	}
	if !m.lastSuccess.IsZero() {
		out["last_success"] = m.lastSuccess.Format(time.RFC3339)
	}
	if !m.lastCandleAt.IsZero() {
		out["last_candle_time"] = m.lastCandleAt.Format(time.RFC3339)
	}
	return out
}

// record writes the DATA_HEALTH audit event. Caller holds mu.
func (m *Monitor) record(provider, status string, minutesStale float64, latency time.Duration, notes string) {
	if m.ledger == nil {
		return
	}
	payload := map[string]interface{}{
		"provider":      provider,
		"status":        status,
		"minutes_stale": minutesStale,
		"latency_ms":    latency.Milliseconds(),
	}
	if !m.lastCandleAt.IsZero() {
		payload["last_candle_time"] = m.lastCandleAt.Format(time.RFC3339)
	}
	if notes != "" {
		payload["notes"] = notes
	}
	if _, err := m.ledger.Append(audit.EventDataHealth, payload); err != nil {
		m.logger.Error().Err(err).Msg("audit append failed")
	}
}
