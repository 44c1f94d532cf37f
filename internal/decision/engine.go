// Package decision turns per-bar feature snapshots into trade proposals,
// gated by economic-calendar and news risk.
package decision

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"forex-agent/internal/audit"
	"forex-agent/internal/calendar"
	"forex-agent/internal/market"
	"forex-agent/internal/trading"
)

// Decision outcomes.
const (
	OutcomeNoTrade   = "NO_TRADE"
	OutcomeTrade     = "TRADE"
	OutcomeStandDown = "STAND_DOWN"
)

// Stop and target placement in ATR multiples.
const (
	stopATRMultiple   = 2.0
	targetATRMultiple = 3.0
)

// Decision is the pipeline's per-bar verdict. Proposal is non-nil only when
// Outcome is TRADE.
type Decision struct {
	Outcome  string            `json:"outcome"`
	Reason   string            `json:"reason"`
	Proposal *trading.Proposal `json:"proposal,omitempty"`
}

// Engine sequences the event-risk gate, the news gate, and the signal
// generators. A nil gate disables calendar checks; a nil ledger disables
// audit records. Both are only acceptable in tests.
type Engine struct {
	gate   *calendar.Engine
	news   NewsGate
	ledger *audit.Ledger
	logger zerolog.Logger
}

// NewEngine wires the pipeline. A nil news gate falls back to AllowAllNews.
func NewEngine(gate *calendar.Engine, news NewsGate, ledger *audit.Ledger, logger zerolog.Logger) *Engine {
	if news == nil {
		news = AllowAllNews{}
	}
	return &Engine{
		gate:   gate,
		news:   news,
		ledger: ledger,
		logger: logger.With().Str("component", "decision").Logger(),
	}
}

// Decide evaluates one bar. During a stand-down window it returns before any
// signal is generated or logged.
func (e *Engine) Decide(f market.FeatureSnapshot, instrument string, now time.Time) Decision {
	if e.gate != nil {
		assessment := e.gate.Assess(now, instrument)
		if assessment.Status == calendar.StatusStandDown {
			e.logger.Warn().Str("reason", assessment.Reason).Msg("stand-down, skipping signal generation")
			return Decision{Outcome: OutcomeStandDown, Reason: "event stand-down: " + assessment.Reason}
		}
	}

	if !e.news.CanTrade() {
		return Decision{Outcome: OutcomeStandDown, Reason: "news event risk"}
	}

	trend := trendSignal(f)
	momentum := momentumSignal(f)
	vol := volatilitySignal(f)
	e.recordSignals(trend, momentum, vol)

	if vol.Reason == "high volatility regime" {
		return Decision{Outcome: OutcomeNoTrade, Reason: "volatility filter: " + vol.Reason}
	}
	if !f.Ready() {
		return Decision{Outcome: OutcomeNoTrade, Reason: "insufficient data"}
	}

	switch trend.Direction {
	case SignalBuy:
		if momentum.Direction == SignalSell {
			break
		}
		return Decision{
			Outcome:  OutcomeTrade,
			Reason:   "signals aligned BUY",
			Proposal: e.proposal(f, instrument, now, trading.DirectionBuy, trend, momentum),
		}
	case SignalSell:
		if momentum.Direction == SignalBuy {
			break
		}
		return Decision{
			Outcome:  OutcomeTrade,
			Reason:   "signals aligned SELL",
			Proposal: e.proposal(f, instrument, now, trading.DirectionSell, trend, momentum),
		}
	}
	return Decision{Outcome: OutcomeNoTrade, Reason: "signals mixed"}
}

func (e *Engine) proposal(f market.FeatureSnapshot, instrument string, now time.Time, direction string, trend, momentum Signal) *trading.Proposal {
	var stop, target float64
	if direction == trading.DirectionBuy {
		stop = f.Close - stopATRMultiple*f.ATR
		target = f.Close + targetATRMultiple*f.ATR
	} else {
		stop = f.Close + stopATRMultiple*f.ATR
		target = f.Close - targetATRMultiple*f.ATR
	}
	return &trading.Proposal{
		ID:         trading.NewProposalID(),
		Timestamp:  now,
		Symbol:     instrument,
		Direction:  direction,
		EntryPrice: f.Close,
		StopLoss:   stop,
		TakeProfit: target,
		Confidence: trend.Confidence,
		Reasoning:  fmt.Sprintf("trend %s + momentum %s", trend.Direction, momentum.Direction),
	}
}

func (e *Engine) recordSignals(trend, momentum, vol Signal) {
	if e.ledger == nil {
		return
	}
	payload := map[string]interface{}{
		"trend":      signalPayload(trend),
		"momentum":   signalPayload(momentum),
		"volatility": signalPayload(vol),
	}
	if _, err := e.ledger.Append(audit.EventSignalsGenerated, payload); err != nil {
		e.logger.Error().Err(err).Msg("audit append failed")
	}
}

func signalPayload(s Signal) map[string]interface{} {
	return map[string]interface{}{
		"name":       s.Name,
		"direction":  s.Direction,
		"confidence": s.Confidence,
		"reason":     s.Reason,
	}
}
