// Package execution fills approved proposals against a simulated paper
// account and owns the open-position book.
package execution

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"forex-agent/internal/audit"
	"forex-agent/internal/calendar"
	"forex-agent/internal/market"
	"forex-agent/internal/risk"
	"forex-agent/internal/trading"
)

// slippageBps is the adverse-fill assumption applied to every entry.
const slippageBps = 2.0

var (
	// ErrGateLeak is returned when the final stand-down re-check blocks a
	// fill that upstream gating approved.
	ErrGateLeak = errors.New("execution: stand-down active at fill time")

	// ErrInvalidProposal is returned for proposals missing a positive
	// stop-loss or entry price.
	ErrInvalidProposal = errors.New("execution: invalid proposal")
)

// Engine simulates fills with half-spread plus slippage applied against the
// entrant, and persists the resulting positions.
type Engine struct {
	provider market.Provider
	store    *Store
	ledger   *audit.Ledger
	logger   zerolog.Logger
}

// NewEngine wires a paper execution engine. The ledger may be nil in tests.
func NewEngine(provider market.Provider, store *Store, ledger *audit.Ledger, logger zerolog.Logger) *Engine {
	return &Engine{
		provider: provider,
		store:    store,
		ledger:   ledger,
		logger:   logger.With().Str("component", "execution").Logger(),
	}
}

// Execute fills an approved proposal. eventStatus is the gate status at the
// moment of the fill; a stand-down here means upstream gating leaked and the
// entry is refused. The stop-loss check repeats the risk manager's rule on
// purpose: the fill path is the last line of defense.
func (e *Engine) Execute(ctx context.Context, p trading.Proposal, v risk.Verdict, eventStatus string) (*trading.Position, error) {
	if eventStatus == calendar.StatusStandDown {
		e.logger.Error().Str("symbol", p.Symbol).Msg("execution blocked: stand-down at fill time")
		e.record(audit.EventGateLeakPrevented, map[string]interface{}{
			"proposal_id": p.ID,
			"symbol":      p.Symbol,
			"reason":      "hard gating in execution engine",
		})
		return nil, ErrGateLeak
	}

	if p.StopLoss <= 0 || p.EntryPrice <= 0 {
		e.logger.Error().Str("symbol", p.Symbol).Msg("execution blocked: missing stop loss")
		e.record(audit.EventMissingStopLossBlock, map[string]interface{}{
			"proposal_id": p.ID,
			"symbol":      p.Symbol,
		})
		return nil, ErrInvalidProposal
	}

	spread, err := e.provider.FetchSpread(ctx, p.Symbol)
	if err != nil {
		return nil, err
	}
	fill, slippage := FillPrice(p.Direction, p.EntryPrice, spread)

	pos := trading.Position{
		ID:         uuid.NewString(),
		ProposalID: p.ID,
		Symbol:     p.Symbol,
		Direction:  p.Direction,
		EntryTime:  e.provider.CurrentTime(),
		EntryPrice: fill,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Size:       v.Size,
		RiskPct:    v.RiskPct,
		Slippage:   slippage,
	}

	if err := e.store.Add(pos); err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("direction", pos.Direction).
		Str("symbol", pos.Symbol).
		Float64("fill_price", pos.EntryPrice).
		Float64("stop_loss", pos.StopLoss).
		Msg("trade executed")
	e.record(audit.EventTradeExecuted, map[string]interface{}{
		"position_id": pos.ID,
		"proposal_id": pos.ProposalID,
		"symbol":      pos.Symbol,
		"direction":   pos.Direction,
		"fill_price":  pos.EntryPrice,
		"stop_loss":   pos.StopLoss,
		"take_profit": pos.TakeProfit,
		"size":        pos.Size,
		"risk_pct":    pos.RiskPct,
		"slippage":    pos.Slippage,
	})
	return &pos, nil
}

// Close removes the position from the book, computes realized P&L from pip
// distance, and appends the terminal record.
func (e *Engine) Close(id string, exitTime time.Time, exitPrice float64, reason string) (*trading.Record, error) {
	pos, err := e.store.Remove(id)
	if err != nil {
		return nil, err
	}

	rec := &trading.Record{
		Position:   *pos,
		ExitTime:   exitTime,
		ExitPrice:  exitPrice,
		ExitReason: reason,
		PnL:        PnL(*pos, exitPrice),
	}

	e.logger.Info().
		Str("symbol", pos.Symbol).
		Str("reason", reason).
		Float64("exit_price", exitPrice).
		Float64("pnl", rec.PnL).
		Msg("trade closed")
	e.record(audit.EventTradeClosed, map[string]interface{}{
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"exit_price":  exitPrice,
		"reason":      reason,
		"pnl":         rec.PnL,
	})
	return rec, nil
}

// UpdateStop applies a protective-stop change and logs it.
func (e *Engine) UpdateStop(upd risk.StopUpdate) error {
	if err := e.store.UpdateStop(upd.PositionID, upd.NewStop); err != nil {
		return err
	}
	e.record(audit.EventStopLossUpdate, map[string]interface{}{
		"position_id": upd.PositionID,
		"old_stop":    upd.OldStop,
		"new_stop":    upd.NewStop,
		"reason":      upd.Reason,
	})
	return nil
}

// OpenPositions returns the current book.
func (e *Engine) OpenPositions() ([]trading.Position, error) {
	return e.store.Load()
}

// FillPrice derives the simulated fill from the quoted entry: half the
// spread plus a fixed basis-point slippage, both against the entrant.
func FillPrice(direction string, entry, spread float64) (fill, slippage float64) {
	slippage = entry * slippageBps / 10000.0
	if strings.EqualFold(direction, trading.DirectionBuy) {
		return entry + spread/2 + slippage, slippage
	}
	return entry - spread/2 - slippage, slippage
}

// PnL converts price distance into account currency via pip distance, size
// in lots, and the standard lot notional.
func PnL(pos trading.Position, exitPrice float64) float64 {
	mult := float64(risk.PipMultiplier(pos.Symbol))
	var pips float64
	if strings.EqualFold(pos.Direction, trading.DirectionBuy) {
		pips = (exitPrice - pos.EntryPrice) * mult
	} else {
		pips = (pos.EntryPrice - exitPrice) * mult
	}
	return pips * pos.Size * (risk.NotionalPerLot / mult)
}

func (e *Engine) record(eventType string, payload map[string]interface{}) {
	if e.ledger == nil {
		return
	}
	if _, err := e.ledger.Append(eventType, payload); err != nil {
		e.logger.Error().Err(err).Msg("audit append failed")
	}
}
