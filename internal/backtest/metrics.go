package backtest

import (
	"math"

	"forex-agent/internal/trading"
)

// EquityPoint is one sample of the account equity curve.
type EquityPoint struct {
	Timestamp string  `json:"timestamp"`
	Equity    float64 `json:"equity"`
}

// Metrics summarizes a completed run.
type Metrics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalProfit   float64 `json:"total_profit"`
	TotalLoss     float64 `json:"total_loss"`
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
	NetProfit     float64 `json:"net_profit"`
	ROI           float64 `json:"roi"`
	ProfitFactor  float64 `json:"profit_factor"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
}

// ComputeMetrics derives summary statistics from the trade list and equity
// curve. Percentages are expressed 0-100.
func ComputeMetrics(initialBalance float64, trades []trading.Record, curve []EquityPoint) Metrics {
	var m Metrics
	m.TotalTrades = len(trades)

	for _, tr := range trades {
		if tr.PnL > 0 {
			m.WinningTrades++
			m.TotalProfit += tr.PnL
		} else {
			m.LosingTrades++
			m.TotalLoss += math.Abs(tr.PnL)
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	}
	if m.WinningTrades > 0 {
		m.AverageWin = m.TotalProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = m.TotalLoss / float64(m.LosingTrades)
	}

	final := initialBalance
	if len(curve) > 0 {
		final = curve[len(curve)-1].Equity
	}
	m.NetProfit = final - initialBalance
	if initialBalance > 0 {
		m.ROI = m.NetProfit / initialBalance * 100
	}
	if m.TotalLoss > 0 {
		m.ProfitFactor = m.TotalProfit / m.TotalLoss
	}
	m.MaxDrawdown = maxDrawdown(curve)
	m.SharpeRatio = sharpeRatio(initialBalance, trades)
	return m
}

func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	var worst float64
	peak := curve[0].Equity
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Equity) / peak * 100; dd > worst {
			worst = dd
		}
	}
	return worst
}

// sharpeRatio is the per-trade return mean over its standard deviation, with
// a zero risk-free rate.
func sharpeRatio(initialBalance float64, trades []trading.Record) float64 {
	if len(trades) == 0 || initialBalance <= 0 {
		return 0
	}
	returns := make([]float64, len(trades))
	var total float64
	for i, tr := range trades {
		returns[i] = tr.PnL / initialBalance * 100
		total += returns[i]
	}
	mean := total / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std == 0 {
		return 0
	}
	return mean / std
}
