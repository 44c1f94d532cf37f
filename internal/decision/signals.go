package decision

import (
	"forex-agent/internal/market"
	"forex-agent/internal/trading"
)

// Signal directions. Hold means the generator has no directional view.
const (
	SignalBuy  = trading.DirectionBuy
	SignalSell = trading.DirectionSell
	SignalHold = "HOLD"
)

// Signal is one generator's raw output for a bar.
type Signal struct {
	Name       string  `json:"name"`
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// trendSignal reads the slow/fast moving-average arrangement.
func trendSignal(f market.FeatureSnapshot) Signal {
	if !f.Ready() {
		return Signal{Name: "trend", Direction: SignalHold, Reason: "insufficient data"}
	}
	switch {
	case f.SMA50 > f.SMA200 && f.Close > f.SMA50:
		return Signal{Name: "trend", Direction: SignalBuy, Confidence: 0.8, Reason: "close > sma50 > sma200"}
	case f.SMA50 < f.SMA200 && f.Close < f.SMA50:
		return Signal{Name: "trend", Direction: SignalSell, Confidence: 0.8, Reason: "close < sma50 < sma200"}
	default:
		return Signal{Name: "trend", Direction: SignalHold, Reason: "neutral trend"}
	}
}

// momentumSignal flags RSI extremes.
func momentumSignal(f market.FeatureSnapshot) Signal {
	if !f.Ready() {
		return Signal{Name: "momentum", Direction: SignalHold, Reason: "insufficient data"}
	}
	switch {
	case f.RSI < 30:
		return Signal{Name: "momentum", Direction: SignalBuy, Confidence: 0.7, Reason: "oversold"}
	case f.RSI > 70:
		return Signal{Name: "momentum", Direction: SignalSell, Confidence: 0.7, Reason: "overbought"}
	default:
		return Signal{Name: "momentum", Direction: SignalHold, Confidence: 0.5, Reason: "rsi neutral"}
	}
}

// volatilitySignal is a pure filter; it never takes a direction.
func volatilitySignal(f market.FeatureSnapshot) Signal {
	if !f.Ready() {
		return Signal{Name: "volatility", Direction: SignalHold, Reason: "insufficient data"}
	}
	if f.Regime == market.RegimeVolatile {
		return Signal{Name: "volatility", Direction: SignalHold, Reason: "high volatility regime"}
	}
	return Signal{Name: "volatility", Direction: SignalHold, Confidence: 1.0, Reason: "normal volatility"}
}
