package market

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// MockProvider generates deterministic synthetic random-walk candles. Used for
// local runs and tests where no upstream feed is configured.
type MockProvider struct {
	seed   int64
	spread float64
	now    func() time.Time
}

// NewMockProvider returns a synthetic provider with a fixed 1.5-pip spread.
func NewMockProvider(seed int64) *MockProvider {
	return &MockProvider{seed: seed, spread: 0.00015, now: time.Now}
}

// WithClock overrides the simulated clock.
func (p *MockProvider) WithClock(now func() time.Time) *MockProvider {
	p.now = now
	return p
}

// CurrentTime returns the simulated now.
func (p *MockProvider) CurrentTime() time.Time { return p.now().UTC() }

// FetchSpread returns the fixed synthetic spread.
func (p *MockProvider) FetchSpread(_ context.Context, _ string) (float64, error) {
	return p.spread, nil
}

// FetchCandles generates lookback candles ending at the current simulated
// time, as a seeded geometric random walk starting at 1.10.
func (p *MockProvider) FetchCandles(_ context.Context, _ string, granularity string, lookback int) ([]Candle, error) {
	step := granularityDuration(granularity)
	end := p.CurrentTime().Truncate(step)
	rng := rand.New(rand.NewSource(p.seed))

	price := 1.10
	candles := make([]Candle, 0, lookback)
	prevClose := price
	for i := 0; i < lookback; i++ {
		ts := end.Add(-time.Duration(lookback-1-i) * step)
		price *= math.Exp(rng.NormFloat64() * 0.001)
		open := prevClose
		close := price
		high := math.Max(open, close) * 1.0005
		low := math.Min(open, close) * 0.9995
		candles = append(candles, Candle{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    float64(1000 + rng.Intn(9000)),
		})
		prevClose = close
	}
	return candles, nil
}

func granularityDuration(granularity string) time.Duration {
	switch granularity {
	case "M15":
		return 15 * time.Minute
	case "H1":
		return time.Hour
	case "H4", "":
		return 4 * time.Hour
	case "D":
		return 24 * time.Hour
	default:
		return 4 * time.Hour
	}
}
