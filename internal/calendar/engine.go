package calendar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"forex-agent/internal/audit"
)

// Window defines an impact tier's gating window around event time.
type Window struct {
	Impacts     []string `json:"impact_levels"`
	PreMinutes  int      `json:"pre_minutes"`
	PostMinutes int      `json:"post_minutes"`
}

func (w Window) contains(impact string) bool {
	for _, i := range w.Impacts {
		if i == impact {
			return true
		}
	}
	return false
}

// Config holds event gate configuration.
type Config struct {
	Enabled                bool                `json:"enabled"`
	CurrenciesByInstrument map[string][]string `json:"currencies_by_instrument"`
	StandDown              Window              `json:"stand_down"`
	Caution                Window              `json:"caution"`
}

// DefaultConfig mirrors the production gate defaults: HIGH-impact events force
// a stand-down from 60 minutes before to 30 minutes after, MEDIUM-impact
// events mark caution from 30 minutes before to 15 minutes after.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		CurrenciesByInstrument: map[string][]string{
			"EUR_USD": {"EUR", "USD"},
		},
		StandDown: Window{Impacts: []string{ImpactHigh}, PreMinutes: 60, PostMinutes: 30},
		Caution:   Window{Impacts: []string{ImpactMedium}, PreMinutes: 30, PostMinutes: 15},
	}
}

// Engine is the event-risk gate. It keeps a per-instance cache of calendar
// events and classifies instants against the configured windows.
type Engine struct {
	cfg      Config
	provider Provider
	ledger   *audit.Ledger
	logger   zerolog.Logger

	cache     []EconomicEvent
	lastFetch time.Time

	// ForceStatus pins the result for verification harnesses only. It is
	// never reachable from production configuration.
	ForceStatus string
}

// NewEngine builds an event-risk gate. The ledger may be nil in unit tests.
func NewEngine(cfg Config, provider Provider, ledger *audit.Ledger, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		provider: provider,
		ledger:   ledger,
		logger:   logger.With().Str("component", "EventRiskGate").Logger(),
	}
}

// Enabled reports whether the gate is active.
func (e *Engine) Enabled() bool { return e.cfg.Enabled }

// Fetched reports whether the cache has ever been filled.
func (e *Engine) Fetched() bool { return !e.lastFetch.IsZero() }

// Prefetch replaces the event cache with the provider's events for the range.
// Idempotent: calling again with the same range yields the same cache.
func (e *Engine) Prefetch(ctx context.Context, start, end time.Time, instrument string) error {
	if !e.cfg.Enabled {
		return nil
	}

	currencies := e.currenciesFor(instrument)
	events, err := e.provider.GetEvents(ctx, start, end, currencies)
	if err != nil {
		return fmt.Errorf("calendar: prefetch: %w", err)
	}

	e.cache = events
	e.lastFetch = time.Now().UTC()
	e.logEvent(audit.EventEventsFetch, map[string]interface{}{
		"count":       len(events),
		"range_start": start.UTC().Format(time.RFC3339),
		"range_end":   end.UTC().Format(time.RFC3339),
		"currencies":  currencies,
	})
	return nil
}

// Assess classifies now against the cached calendar. First matching stand-down
// event wins; caution is only reported when no stand-down window is active.
// Window boundaries are inclusive on both sides.
func (e *Engine) Assess(now time.Time, instrument string) Assessment {
	if e.ForceStatus != "" {
		return Assessment{
			Status: e.ForceStatus,
			Reason: fmt.Sprintf("FORCED STATUS (%s)", e.ForceStatus),
		}
	}

	if !e.cfg.Enabled {
		return Assessment{Status: StatusAllowTrading, Reason: "Events filter disabled"}
	}

	currencies := e.currenciesFor(instrument)
	wanted := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		wanted[c] = true
	}

	relevant := make([]EconomicEvent, 0, len(e.cache))
	for _, ev := range e.cache {
		if wanted[ev.Currency] {
			relevant = append(relevant, ev)
		}
	}
	sort.Slice(relevant, func(i, j int) bool { return relevant[i].TimeUTC.Before(relevant[j].TimeUTC) })

	assessment := Assessment{Status: StatusAllowTrading, Reason: "No upcoming high-impact events"}

	for i := range relevant {
		ev := relevant[i]
		diffMins := ev.TimeUTC.Sub(now).Minutes()

		if e.cfg.StandDown.contains(ev.Impact) {
			if diffMins >= -float64(e.cfg.StandDown.PostMinutes) && diffMins <= float64(e.cfg.StandDown.PreMinutes) {
				assessment = Assessment{
					Status:       StatusStandDown,
					Reason:       fmt.Sprintf("Event stand-down: %s (%s)", ev.Title, ev.Impact),
					MatchedEvent: &ev,
				}
				break
			}
			if diffMins > 0 && (assessment.NextHighEventTime == nil || ev.TimeUTC.Before(*assessment.NextHighEventTime)) {
				t := ev.TimeUTC
				mins := int(diffMins)
				assessment.NextHighEventTime = &t
				assessment.MinutesToEvent = &mins
			}
		}

		if assessment.Status != StatusStandDown && e.cfg.Caution.contains(ev.Impact) {
			if diffMins >= -float64(e.cfg.Caution.PostMinutes) && diffMins <= float64(e.cfg.Caution.PreMinutes) {
				assessment.Status = StatusCaution
				assessment.Reason = fmt.Sprintf("Event caution: %s (%s)", ev.Title, ev.Impact)
				assessment.MatchedEvent = &ev
			}
		}
	}

	e.logAssessment(now, instrument, assessment)
	return assessment
}

func (e *Engine) currenciesFor(instrument string) []string {
	if c, ok := e.cfg.CurrenciesByInstrument[instrument]; ok {
		return c
	}
	return []string{"USD", "EUR"}
}

func (e *Engine) logAssessment(now time.Time, instrument string, a Assessment) {
	payload := map[string]interface{}{
		"status":     a.Status,
		"reason":     a.Reason,
		"instrument": instrument,
		"at":         now.UTC().Format(time.RFC3339),
	}
	if a.MatchedEvent != nil {
		payload["matched_event"] = a.MatchedEvent.EventID
	}
	if a.MinutesToEvent != nil {
		payload["minutes_to_event"] = *a.MinutesToEvent
	}
	e.logEvent(audit.EventEventRisk, payload)
}

func (e *Engine) logEvent(eventType string, payload map[string]interface{}) {
	if e.ledger == nil {
		return
	}
	if _, err := e.ledger.Append(eventType, payload); err != nil {
		e.logger.Error().Err(err).Str("event_type", eventType).Msg("audit append failed")
	}
}
