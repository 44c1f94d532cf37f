package decision

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forex-agent/internal/audit"
	"forex-agent/internal/calendar"
	"forex-agent/internal/market"
	"forex-agent/internal/trading"
)

func snapshot(close, sma50, sma200, rsi, atr float64, regime string) market.FeatureSnapshot {
	return market.FeatureSnapshot{
		Timestamp: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Close:     close,
		High:      close + 0.001,
		Low:       close - 0.001,
		SMA50:     sma50,
		SMA200:    sma200,
		RSI:       rsi,
		ATR:       atr,
		Regime:    regime,
	}
}

func TestDecideAlignedBuy(t *testing.T) {
	e := NewEngine(nil, nil, nil, zerolog.Nop())
	f := snapshot(1.1050, 1.1020, 1.0980, 55, 0.0010, market.RegimeNormal)

	d := e.Decide(f, "EUR_USD", f.Timestamp)
	if d.Outcome != OutcomeTrade {
		t.Fatalf("outcome = %s (%s), want TRADE", d.Outcome, d.Reason)
	}
	p := d.Proposal
	if p == nil || p.Direction != trading.DirectionBuy {
		t.Fatalf("proposal = %+v", p)
	}
	if want := 1.1050 - 0.0020; math.Abs(p.StopLoss-want) > 1e-9 {
		t.Fatalf("stop = %v, want %v", p.StopLoss, want)
	}
	if want := 1.1050 + 0.0030; math.Abs(p.TakeProfit-want) > 1e-9 {
		t.Fatalf("target = %v, want %v", p.TakeProfit, want)
	}
}

func TestDecideMomentumVeto(t *testing.T) {
	e := NewEngine(nil, nil, nil, zerolog.Nop())

	// Uptrend but overbought: momentum directly opposes the trend.
	f := snapshot(1.1050, 1.1020, 1.0980, 75, 0.0010, market.RegimeNormal)
	if d := e.Decide(f, "EUR_USD", f.Timestamp); d.Outcome != OutcomeNoTrade {
		t.Fatalf("outcome = %s, want NO_TRADE", d.Outcome)
	}

	// Downtrend and overbought: momentum agrees, trade stands.
	f = snapshot(1.0900, 1.0950, 1.1000, 75, 0.0010, market.RegimeNormal)
	d := e.Decide(f, "EUR_USD", f.Timestamp)
	if d.Outcome != OutcomeTrade || d.Proposal.Direction != trading.DirectionSell {
		t.Fatalf("decision = %+v", d)
	}
}

func TestDecideVolatilityFilter(t *testing.T) {
	e := NewEngine(nil, nil, nil, zerolog.Nop())
	f := snapshot(1.1050, 1.1020, 1.0980, 55, 0.0010, market.RegimeVolatile)

	d := e.Decide(f, "EUR_USD", f.Timestamp)
	if d.Outcome != OutcomeNoTrade || d.Proposal != nil {
		t.Fatalf("decision = %+v", d)
	}
}

// During a stand-down window the pipeline must return before computing
// signals: the ledger may contain the gate's own EVENT_RISK record but never
// a SIGNALS_GENERATED one.
func TestDecideStandDownSkipsSignals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	ledger, err := audit.Open(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	gate := calendar.NewEngine(calendar.DefaultConfig(), calendar.NewMockProvider(), ledger, zerolog.Nop())
	gate.ForceStatus = calendar.StatusStandDown

	e := NewEngine(gate, nil, ledger, zerolog.Nop())
	f := snapshot(1.1050, 1.1020, 1.0980, 55, 0.0010, market.RegimeNormal)

	d := e.Decide(f, "EUR_USD", f.Timestamp)
	if d.Outcome != OutcomeStandDown {
		t.Fatalf("outcome = %s, want STAND_DOWN", d.Outcome)
	}

	events, err := audit.ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range events {
		if ev.EventType == audit.EventSignalsGenerated {
			t.Fatal("signals were generated during stand-down")
		}
	}
}

func TestDecideLogsOneSignalsRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	ledger, err := audit.Open(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	e := NewEngine(nil, nil, ledger, zerolog.Nop())
	f := snapshot(1.1050, 1.1020, 1.0980, 55, 0.0010, market.RegimeNormal)
	e.Decide(f, "EUR_USD", f.Timestamp)

	events, err := audit.ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	var n int
	for _, ev := range events {
		if ev.EventType == audit.EventSignalsGenerated {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("SIGNALS_GENERATED records = %d, want 1", n)
	}
}

type vetoNews struct{}

func (vetoNews) CanTrade() bool { return false }

func TestDecideNewsVeto(t *testing.T) {
	e := NewEngine(nil, vetoNews{}, nil, zerolog.Nop())
	f := snapshot(1.1050, 1.1020, 1.0980, 55, 0.0010, market.RegimeNormal)

	if d := e.Decide(f, "EUR_USD", f.Timestamp); d.Outcome != OutcomeStandDown {
		t.Fatalf("outcome = %s, want STAND_DOWN", d.Outcome)
	}
}
