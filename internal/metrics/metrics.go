// Package metrics exposes Prometheus instrumentation for the trading loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal counts completed sequencer passes.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forex_agent_ticks_total",
		Help: "Completed per-bar sequencer passes.",
	})

	// TickErrorsTotal counts abandoned ticks.
	TickErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forex_agent_tick_errors_total",
		Help: "Ticks abandoned due to data or pipeline errors.",
	})

	// DecisionsTotal counts pipeline outcomes by kind.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forex_agent_decisions_total",
		Help: "Decision pipeline outcomes.",
	}, []string{"outcome"})

	// TradesTotal counts closed trades by exit reason.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forex_agent_trades_total",
		Help: "Closed trades by exit reason.",
	}, []string{"reason"})

	// GateBlocksTotal counts stand-down blocks, including prevented leaks.
	GateBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forex_agent_gate_blocks_total",
		Help: "Entries blocked by the event-risk gate.",
	}, []string{"kind"})

	// Equity is the current account equity.
	Equity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forex_agent_equity",
		Help: "Current account equity.",
	})

	// OpenPositions is the current open-position count.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forex_agent_open_positions",
		Help: "Currently open positions.",
	})

	// DataFetchSeconds observes market data fetch latency.
	DataFetchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forex_agent_data_fetch_seconds",
		Help:    "Market data fetch latency.",
		Buckets: prometheus.DefBuckets,
	})
)
