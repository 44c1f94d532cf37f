package calendar

import (
	"context"
	"time"
)

// Provider supplies scheduled economic events for a time range and currency
// set. Variants are selected by configuration at construction time.
type Provider interface {
	GetEvents(ctx context.Context, start, end time.Time, currencies []string) ([]EconomicEvent, error)
}
