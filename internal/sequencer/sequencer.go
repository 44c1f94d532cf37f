// Package sequencer drives the per-bar trading loop shared by live and
// backtest runs: manage the open position, gate, decide, risk-check, and
// stage entries for the next bar's open.
package sequencer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"forex-agent/internal/audit"
	"forex-agent/internal/calendar"
	"forex-agent/internal/decision"
	"forex-agent/internal/execution"
	"forex-agent/internal/market"
	"forex-agent/internal/risk"
	"forex-agent/internal/trading"
)

// pendingEntry is a decision waiting for the next bar's open to fill.
type pendingEntry struct {
	proposal trading.Proposal
	verdict  risk.Verdict
}

// StepResult reports what one bar changed.
type StepResult struct {
	Outcome       string
	Opened        *trading.Position
	Closed        *trading.Record
	StopMoved     *risk.StopUpdate
	Blocked       bool
	LeakPrevented bool
}

// Sequencer owns one instrument's position lifecycle. Live and backtest runs
// use the same instance type; only the injected provider differs. It is
// single-threaded per tick and must not be stepped concurrently.
type Sequencer struct {
	instrument string
	gate       *calendar.Engine
	decider    *decision.Engine
	riskMgr    *risk.Manager
	posMgr     *risk.PositionManager
	exec       *execution.Engine
	ledger     *audit.Ledger
	logger     zerolog.Logger

	pending *pendingEntry
	open    *trading.Position
}

// New wires a sequencer. The open-position slot starts from whatever the
// execution book already holds, so a restarted live process resumes managing
// its position.
func New(instrument string, gate *calendar.Engine, decider *decision.Engine, riskMgr *risk.Manager, posMgr *risk.PositionManager, exec *execution.Engine, ledger *audit.Ledger, logger zerolog.Logger) (*Sequencer, error) {
	s := &Sequencer{
		instrument: instrument,
		gate:       gate,
		decider:    decider,
		riskMgr:    riskMgr,
		posMgr:     posMgr,
		exec:       exec,
		ledger:     ledger,
		logger:     logger.With().Str("component", "sequencer").Logger(),
	}
	positions, err := exec.OpenPositions()
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].Symbol == instrument {
			s.open = &positions[i]
			break
		}
	}
	return s, nil
}

// Open returns the currently open position, or nil.
func (s *Sequencer) Open() *trading.Position { return s.open }

// Equity returns current account equity.
func (s *Sequencer) Equity() float64 { return s.riskMgr.Equity() }

// Step runs one full state-machine pass for a bar. The feature snapshot must
// describe the same bar. An error abandons the tick; ledger entries already
// written stand, in-memory position state is unchanged beyond what was
// durably recorded.
func (s *Sequencer) Step(ctx context.Context, bar market.Candle, features market.FeatureSnapshot) (StepResult, error) {
	var res StepResult

	// A decision from the previous bar fills at this bar's open, but only
	// after the gate is re-checked for this bar's time. A stand-down here
	// means the window opened between decision and fill.
	if s.pending != nil {
		entry := *s.pending
		s.pending = nil

		assessment := s.gate.Assess(bar.Timestamp, s.instrument)
		if assessment.Status == calendar.StatusStandDown {
			s.logger.Warn().Str("proposal_id", entry.proposal.ID).Msg("entry aborted: stand-down at fill bar")
			s.record(audit.EventGateLeakPrevented, map[string]interface{}{
				"proposal_id": entry.proposal.ID,
				"symbol":      entry.proposal.Symbol,
				"reason":      assessment.Reason,
				"at":          bar.Timestamp.UTC().Format(time.RFC3339),
			})
			res.Blocked = true
			res.LeakPrevented = true
		} else if s.open == nil {
			entry.proposal.EntryPrice = bar.Open
			pos, err := s.exec.Execute(ctx, entry.proposal, entry.verdict, assessment.Status)
			if err != nil && !errors.Is(err, execution.ErrGateLeak) && !errors.Is(err, execution.ErrInvalidProposal) {
				return res, err
			}
			if pos != nil {
				s.open = pos
				res.Opened = pos
			}
		}
	}

	if s.open != nil {
		closed, moved, err := s.manageOpen(bar)
		if err != nil {
			return res, err
		}
		res.Closed = closed
		res.StopMoved = moved
		res.Outcome = "MANAGE_OPEN"
		return res, nil
	}

	// Flat: hard gate before any decision work.
	assessment := s.gate.Assess(bar.Timestamp, s.instrument)
	if assessment.Status == calendar.StatusStandDown {
		s.record(audit.EventStandDownBlock, map[string]interface{}{
			"instrument": s.instrument,
			"reason":     assessment.Reason,
		})
		res.Outcome = decision.OutcomeStandDown
		res.Blocked = true
		return res, nil
	}

	d := s.decider.Decide(features, s.instrument, bar.Timestamp)
	res.Outcome = d.Outcome
	if d.Outcome != decision.OutcomeTrade || d.Proposal == nil {
		return res, nil
	}

	positions, err := s.exec.OpenPositions()
	if err != nil {
		return res, err
	}
	s.riskMgr.Sync(positions)

	verdict := s.riskMgr.Check(bar.Timestamp, *d.Proposal)
	if !verdict.Approved {
		return res, nil
	}
	s.pending = &pendingEntry{proposal: *d.Proposal, verdict: verdict}
	return res, nil
}

// manageOpen resolves exits against the bar's range, checking the stop
// before the target so that a bar spanning both levels always resolves as
// the worse outcome. Only when no exit fires does the position manager move
// the protective stop.
func (s *Sequencer) manageOpen(bar market.Candle) (*trading.Record, *risk.StopUpdate, error) {
	pos := *s.open
	long := pos.Direction == trading.DirectionBuy

	exitPrice, reason := 0.0, ""
	if long {
		switch {
		case bar.Low <= pos.StopLoss:
			exitPrice, reason = pos.StopLoss, trading.ExitStopLoss
		case pos.TakeProfit > 0 && bar.High >= pos.TakeProfit:
			exitPrice, reason = pos.TakeProfit, trading.ExitTakeProfit
		}
	} else {
		switch {
		case bar.High >= pos.StopLoss:
			exitPrice, reason = pos.StopLoss, trading.ExitStopLoss
		case pos.TakeProfit > 0 && bar.Low <= pos.TakeProfit:
			exitPrice, reason = pos.TakeProfit, trading.ExitTakeProfit
		}
	}

	if reason != "" {
		rec, err := s.exec.Close(pos.ID, bar.Timestamp, exitPrice, reason)
		if err != nil {
			return nil, nil, err
		}
		s.open = nil
		s.riskMgr.RecordClose(bar.Timestamp, rec.PnL)
		return rec, nil, nil
	}

	if upd := s.posMgr.Evaluate(pos, bar.Close); upd != nil {
		if err := s.exec.UpdateStop(*upd); err != nil {
			return nil, nil, err
		}
		s.open.StopLoss = upd.NewStop
		return nil, upd, nil
	}
	return nil, nil, nil
}

// CloseAll force-closes the open position at the given price, used at the
// end of a backtest run.
func (s *Sequencer) CloseAll(bar market.Candle) (*trading.Record, error) {
	if s.open == nil {
		return nil, nil
	}
	rec, err := s.exec.Close(s.open.ID, bar.Timestamp, bar.Close, trading.ExitEndOfRun)
	if err != nil {
		return nil, err
	}
	s.open = nil
	s.riskMgr.RecordClose(bar.Timestamp, rec.PnL)
	return rec, nil
}

func (s *Sequencer) record(eventType string, payload map[string]interface{}) {
	if s.ledger == nil {
		return
	}
	if _, err := s.ledger.Append(eventType, payload); err != nil {
		s.logger.Error().Err(err).Msg("audit append failed")
	}
}
