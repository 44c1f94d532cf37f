package market

import (
	"context"
	"time"
)

// Provider is the data source abstraction shared by live and simulated runs.
// Variants are chosen by configuration at construction time, never by runtime
// type inspection.
type Provider interface {
	// FetchCandles returns the most recent lookback candles for the
	// instrument at the given granularity, oldest first.
	FetchCandles(ctx context.Context, instrument, granularity string, lookback int) ([]Candle, error)

	// FetchSpread returns the current bid/ask spread in price units.
	FetchSpread(ctx context.Context, instrument string) (float64, error)

	// CurrentTime returns the provider's notion of now (simulated or real).
	CurrentTime() time.Time
}
