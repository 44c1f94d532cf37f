package market

import "math"

// Indicator periods used by the feature pass. These match the signal rules in
// the decision pipeline (SMA50/SMA200 trend, 14-period RSI and ATR).
const (
	smaFastPeriod   = 50
	smaSlowPeriod   = 200
	rsiPeriod       = 14
	atrPeriod       = 14
	atrRegimePeriod = 50
	regimeThreshold = 1.5
)

// ComputeFeatures derives a feature snapshot per candle: simple moving
// averages, RSI, ATR, and a volatility regime label (ATR above 1.5x its own
// 50-bar average marks the bar VOLATILE). Snapshots before the warmup window
// carry zero indicator values and report Ready() == false.
func ComputeFeatures(candles []Candle) []FeatureSnapshot {
	n := len(candles)
	snapshots := make([]FeatureSnapshot, n)

	closes := make([]float64, n)
	trs := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		if i == 0 {
			trs[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		trs[i] = math.Max(c.High-c.Low,
			math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}

	atrs := rollingMean(trs, atrPeriod)
	atrMeans := rollingMean(atrs, atrRegimePeriod)
	sma50 := rollingMean(closes, smaFastPeriod)
	sma200 := rollingMean(closes, smaSlowPeriod)
	rsis := computeRSI(closes, rsiPeriod)

	for i, c := range candles {
		snap := FeatureSnapshot{
			Timestamp: c.Timestamp,
			Close:     c.Close,
			High:      c.High,
			Low:       c.Low,
			SMA50:     sma50[i],
			SMA200:    sma200[i],
			RSI:       rsis[i],
			ATR:       atrs[i],
			Regime:    RegimeNormal,
		}
		if atrMeans[i] > 0 && atrs[i]/atrMeans[i] > regimeThreshold {
			snap.Regime = RegimeVolatile
		}
		snapshots[i] = snap
	}
	return snapshots
}

// rollingMean returns the trailing window mean per index, zero before the
// window is full.
func rollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// computeRSI returns the simple-average RSI per index, zero before warmup.
func computeRSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) <= period {
		return out
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	avgGains := rollingMean(gains, period)
	avgLosses := rollingMean(losses, period)
	for i := period; i < len(closes); i++ {
		if avgLosses[i] == 0 {
			out[i] = 100
			continue
		}
		rs := avgGains[i] / avgLosses[i]
		out[i] = 100 - (100 / (1 + rs))
	}
	return out
}
