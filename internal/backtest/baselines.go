package backtest

import (
	"time"

	"github.com/google/uuid"

	"forex-agent/internal/market"
	"forex-agent/internal/risk"
	"forex-agent/internal/trading"
)

// baselineSize is the fixed lot size both comparison strategies trade.
const baselineSize = 0.1

// Exit reason recorded when a crossover closes the opposite side.
const exitReversal = "REVERSAL"

// noTradeBaseline holds every bar: a flat curve at the initial balance. Any
// run whose net profit is negative underperforms doing nothing.
func noTradeBaseline(initial float64, candles []market.Candle) []EquityPoint {
	curve := make([]EquityPoint, 0, len(candles))
	for _, c := range candles {
		curve = append(curve, EquityPoint{
			Timestamp: c.Timestamp.UTC().Format(time.RFC3339),
			Equity:    initial,
		})
	}
	return curve
}

// maCrossoverBaseline trades a plain SMA50/SMA200 crossover at a fixed 0.1
// lot. The fast average crossing above the slow goes long, crossing below
// goes short; each cross closes the open side and reverses. Fills happen at
// the signal bar's open with no spread, stop, or sizing model, and equity
// moves only when a trade closes.
func maCrossoverBaseline(instrument string, initial float64, candles []market.Candle) ([]trading.Record, []EquityPoint) {
	features := market.ComputeFeatures(candles)
	equity := initial
	trades := []trading.Record{}
	var curve []EquityPoint
	var open *trading.Position

	closeTrade := func(price float64, at time.Time, reason string) {
		diff := price - open.EntryPrice
		if open.Direction == trading.DirectionSell {
			diff = -diff
		}
		pnl := diff * open.Size * risk.NotionalPerLot
		equity += pnl
		trades = append(trades, trading.Record{
			Position:   *open,
			ExitTime:   at,
			ExitPrice:  price,
			ExitReason: reason,
			PnL:        pnl,
		})
		open = nil
	}
	openTrade := func(direction string, price float64, at time.Time) {
		open = &trading.Position{
			ID:         uuid.NewString(),
			Symbol:     instrument,
			Direction:  direction,
			EntryTime:  at,
			EntryPrice: price,
			Size:       baselineSize,
		}
	}

	for i := 1; i < len(candles); i++ {
		cur, prev := features[i], features[i-1]
		if cur.SMA200 > 0 && prev.SMA200 > 0 {
			crossUp := cur.SMA50 > cur.SMA200 && prev.SMA50 <= prev.SMA200
			crossDown := cur.SMA50 < cur.SMA200 && prev.SMA50 >= prev.SMA200

			if crossUp {
				if open != nil && open.Direction == trading.DirectionSell {
					closeTrade(candles[i].Open, candles[i].Timestamp, exitReversal)
				}
				if open == nil {
					openTrade(trading.DirectionBuy, candles[i].Open, candles[i].Timestamp)
				}
			} else if crossDown {
				if open != nil && open.Direction == trading.DirectionBuy {
					closeTrade(candles[i].Open, candles[i].Timestamp, exitReversal)
				}
				if open == nil {
					openTrade(trading.DirectionSell, candles[i].Open, candles[i].Timestamp)
				}
			}
		}
		curve = append(curve, EquityPoint{
			Timestamp: candles[i].Timestamp.UTC().Format(time.RFC3339),
			Equity:    equity,
		})
	}

	if open != nil {
		closeTrade(candles[len(candles)-1].Close, candles[len(candles)-1].Timestamp, trading.ExitEndOfRun)
		curve[len(curve)-1].Equity = equity
	}
	return trades, curve
}
