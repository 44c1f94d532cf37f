// Package market defines the market data surface the core consumes: candles,
// precomputed feature snapshots, and the pluggable data provider variants.
package market

import (
	"errors"
	"time"
)

// ErrDataUnavailable signals that candles or features could not be obtained.
// A tick that hits it is skipped and logged; no state changes.
var ErrDataUnavailable = errors.New("market: data unavailable")

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Volatility regime labels carried on feature snapshots.
const (
	RegimeNormal   = "NORMAL"
	RegimeVolatile = "VOLATILE"
)

// FeatureSnapshot is a per-bar view of price plus precomputed indicator
// values. The core never computes indicators itself; it consumes snapshots
// produced by the indicator collaborator (see ComputeFeatures for the
// reference implementation).
type FeatureSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Close     float64   `json:"close"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	SMA50     float64   `json:"sma_50"`
	SMA200    float64   `json:"sma_200"`
	RSI       float64   `json:"rsi"`
	ATR       float64   `json:"atr"`
	Regime    string    `json:"regime"`
}

// Ready reports whether the snapshot has enough indicator history to act on.
func (s FeatureSnapshot) Ready() bool {
	return s.SMA50 > 0 && s.SMA200 > 0 && s.ATR > 0
}
