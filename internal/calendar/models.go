// Package calendar implements the economic-calendar event risk gate. It
// classifies an instant against cached scheduled events into trading statuses
// that the decision pipeline and sequencer treat as hard gates.
package calendar

import "time"

// Impact tiers for scheduled economic events.
const (
	ImpactLow    = "LOW"
	ImpactMedium = "MEDIUM"
	ImpactHigh   = "HIGH"
)

// Trading statuses produced by an assessment.
const (
	StatusAllowTrading = "ALLOW_TRADING"
	StatusCaution      = "CAUTION"
	StatusStandDown    = "STAND_DOWN"
)

// EconomicEvent is one scheduled calendar entry. Immutable once fetched.
type EconomicEvent struct {
	EventID  string    `json:"event_id"`
	TimeUTC  time.Time `json:"time_utc"`
	Currency string    `json:"currency"`
	Title    string    `json:"title"`
	Impact   string    `json:"impact"`
	Source   string    `json:"source,omitempty"`
}

// Assessment is the result of classifying one instant. It is derived fresh on
// every call and only ever persisted through the audit ledger.
type Assessment struct {
	Status            string         `json:"status"`
	Reason            string         `json:"reason"`
	MatchedEvent      *EconomicEvent `json:"matched_event,omitempty"`
	NextHighEventTime *time.Time     `json:"next_high_event_time,omitempty"`
	MinutesToEvent    *int           `json:"minutes_to_event,omitempty"`
}

// Blocked reports whether the assessment forbids opening new positions.
func (a Assessment) Blocked() bool { return a.Status == StatusStandDown }
