package calendar

import (
	"context"
	"fmt"
	"time"
)

// MockProvider generates a deterministic synthetic calendar: a HIGH-impact USD
// release every Wednesday at 13:30 UTC and a MEDIUM-impact EUR release every
// Tuesday at 09:00 UTC. Used for backtests and local runs without a live feed.
type MockProvider struct{}

// NewMockProvider returns a synthetic calendar provider.
func NewMockProvider() *MockProvider { return &MockProvider{} }

// GetEvents returns the synthetic events inside [start, end] whose currency is
// in the requested set.
func (p *MockProvider) GetEvents(_ context.Context, start, end time.Time, currencies []string) ([]EconomicEvent, error) {
	wanted := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		wanted[c] = true
	}

	var events []EconomicEvent
	for day := start.Truncate(24 * time.Hour); !day.After(end); day = day.Add(24 * time.Hour) {
		switch day.Weekday() {
		case time.Wednesday:
			if wanted["USD"] {
				events = append(events, EconomicEvent{
					EventID:  fmt.Sprintf("usd_cpi_%s", day.Format("20060102")),
					TimeUTC:  time.Date(day.Year(), day.Month(), day.Day(), 13, 30, 0, 0, time.UTC),
					Currency: "USD",
					Title:    "Consumer Price Index (CPI) m/m",
					Impact:   ImpactHigh,
					Source:   "mock",
				})
			}
		case time.Tuesday:
			if wanted["EUR"] {
				events = append(events, EconomicEvent{
					EventID:  fmt.Sprintf("eur_gdp_%s", day.Format("20060102")),
					TimeUTC:  time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, time.UTC),
					Currency: "EUR",
					Title:    "GDP Flash Estimate q/q",
					Impact:   ImpactMedium,
					Source:   "mock",
				})
			}
		}
	}

	filtered := events[:0]
	for _, ev := range events {
		if !ev.TimeUTC.Before(start) && !ev.TimeUTC.After(end) {
			filtered = append(filtered, ev)
		}
	}
	return filtered, nil
}
