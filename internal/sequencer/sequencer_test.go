package sequencer

import (
	"context"
	"math"
	"path/filepath"
	"testing"
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

type stubProvider struct {
	spread float64
	now    time.Time
}

func (s *stubProvider) FetchCandles(ctx context.Context, instrument, granularity string, lookback int) ([]market.Candle, error) {
	return nil, nil
}
func (s *stubProvider) FetchSpread(ctx context.Context, instrument string) (float64, error) {
	return s.spread, nil
}
func (s *stubProvider) CurrentTime() time.Time { return s.now }

type fixture struct {
	seq       *Sequencer
	gate      *calendar.Engine
	auditPath string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.ndjson")
	ledger, err := audit.Open(auditPath, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	gate := calendar.NewEngine(calendar.DefaultConfig(), calendar.NewMockProvider(), ledger, zerolog.Nop())
	decider := decision.NewEngine(gate, nil, ledger, zerolog.Nop())
	riskMgr := risk.NewManager(risk.DefaultConfig(), 10000, ledger, zerolog.Nop())
	posMgr := risk.NewPositionManager(20, 30, 15, zerolog.Nop())
	prov := &stubProvider{spread: 0.0002, now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	store := execution.NewStore(filepath.Join(dir, "positions.json"))
	exec := execution.NewEngine(prov, store, ledger, zerolog.Nop())

	seq, err := New("EUR_USD", gate, decider, riskMgr, posMgr, exec, ledger, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{seq: seq, gate: gate, auditPath: auditPath}
}

// buySnapshot aligns the trend and momentum signals long with a 25 pip ATR,
// placing the stop 50 pips and the target 75 pips from a 1.1000 close.
func buySnapshot(ts time.Time) market.FeatureSnapshot {
	return market.FeatureSnapshot{
		Timestamp: ts,
		Close:     1.1000,
		High:      1.1010,
		Low:       1.0990,
		SMA50:     1.0980,
		SMA200:    1.0950,
		RSI:       55,
		ATR:       0.0025,
		Regime:    market.RegimeNormal,
	}
}

func bar(ts time.Time, o, h, l, c float64) market.Candle {
	return market.Candle{Timestamp: ts, Open: o, High: h, Low: l, Close: c}
}

func (f *fixture) countEvents(t *testing.T, eventType string) int {
	t.Helper()
	events, err := audit.ReadAll(f.auditPath)
	if err != nil {
		t.Fatal(err)
	}
	var n int
	for _, ev := range events {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

func TestEntryFillsNextBarOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	// Decision bar: no fill yet, proposal staged.
	res, err := f.seq.Step(ctx, bar(t0, 1.0995, 1.1005, 1.0990, 1.1000), buySnapshot(t0))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != decision.OutcomeTrade || res.Opened != nil {
		t.Fatalf("decision bar result = %+v", res)
	}
	if f.seq.Open() != nil {
		t.Fatal("position opened on the decision bar")
	}

	// Next bar: fill at its open plus half spread plus 2bps slippage.
	t1 := t0.Add(15 * time.Minute)
	res, err = f.seq.Step(ctx, bar(t1, 1.1002, 1.1012, 1.0998, 1.1008), buySnapshot(t1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Opened == nil {
		t.Fatal("no fill on the bar after the decision")
	}
	want := 1.1002 + 0.0001 + 1.1002*2.0/10000.0
	if math.Abs(res.Opened.EntryPrice-want) > 1e-9 {
		t.Fatalf("fill = %v, want %v", res.Opened.EntryPrice, want)
	}
}

// A bar spanning both the stop and the target must resolve as a stop-loss
// exit: the tie always breaks to the worse outcome.
func TestConservativeExitStopBeatsTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	if _, err := f.seq.Step(ctx, bar(t0, 1.0995, 1.1005, 1.0990, 1.1000), buySnapshot(t0)); err != nil {
		t.Fatal(err)
	}
	t1 := t0.Add(15 * time.Minute)
	res, err := f.seq.Step(ctx, bar(t1, 1.1000, 1.1005, 1.0995, 1.1002), buySnapshot(t1))
	if err != nil {
		t.Fatal(err)
	}
	pos := res.Opened
	if pos == nil {
		t.Fatal("no fill")
	}
	if math.Abs(pos.StopLoss-1.0950) > 1e-9 || math.Abs(pos.TakeProfit-1.1075) > 1e-9 {
		t.Fatalf("levels = stop %v target %v", pos.StopLoss, pos.TakeProfit)
	}

	// One bar sweeps from below the stop to above the target.
	t2 := t1.Add(15 * time.Minute)
	res, err = f.seq.Step(ctx, bar(t2, 1.1002, 1.1200, 1.0940, 1.1150), buySnapshot(t2))
	if err != nil {
		t.Fatal(err)
	}
	if res.Closed == nil {
		t.Fatal("no exit on the sweep bar")
	}
	if res.Closed.ExitReason != trading.ExitStopLoss {
		t.Fatalf("exit reason = %s, want STOP_LOSS", res.Closed.ExitReason)
	}
	if math.Abs(res.Closed.ExitPrice-1.0950) > 1e-9 {
		t.Fatalf("exit price = %v, want 1.0950", res.Closed.ExitPrice)
	}
	if f.seq.Open() != nil {
		t.Fatal("position still open after exit")
	}
}

// An entry decided on a clear bar must not fill if the next bar falls inside
// a stand-down window.
func TestGateLeakPrevented(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	if _, err := f.seq.Step(ctx, bar(t0, 1.0995, 1.1005, 1.0990, 1.1000), buySnapshot(t0)); err != nil {
		t.Fatal(err)
	}

	// The window opens between the decision bar and the fill bar.
	f.gate.ForceStatus = calendar.StatusStandDown
	t1 := t0.Add(15 * time.Minute)
	res, err := f.seq.Step(ctx, bar(t1, 1.1002, 1.1012, 1.0998, 1.1008), buySnapshot(t1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Opened != nil || f.seq.Open() != nil {
		t.Fatal("position filled inside a stand-down window")
	}
	if !res.Blocked || !res.LeakPrevented {
		t.Fatalf("blocked = %v, leak prevented = %v", res.Blocked, res.LeakPrevented)
	}
	if n := f.countEvents(t, audit.EventGateLeakPrevented); n != 1 {
		t.Fatalf("gate-leak records = %d, want 1", n)
	}
	if n := f.countEvents(t, audit.EventTradeExecuted); n != 0 {
		t.Fatalf("trade executed records = %d, want 0", n)
	}

	// The dropped entry does not linger: a later clear bar starts from a
	// fresh decision, not the stale proposal.
	f.gate.ForceStatus = ""
	t2 := t1.Add(15 * time.Minute)
	res, err = f.seq.Step(ctx, bar(t2, 1.1005, 1.1015, 1.1000, 1.1010), buySnapshot(t2))
	if err != nil {
		t.Fatal(err)
	}
	if res.Opened != nil {
		t.Fatal("stale proposal filled after the window cleared")
	}
}

// A stop moved by the position manager must surface on the step result so
// observers see the adjustment, not just the ledger.
func TestStopMoveSurfacesOnStepResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	if _, err := f.seq.Step(ctx, bar(t0, 1.0995, 1.1005, 1.0990, 1.1000), buySnapshot(t0)); err != nil {
		t.Fatal(err)
	}
	t1 := t0.Add(15 * time.Minute)
	res, err := f.seq.Step(ctx, bar(t1, 1.1002, 1.1012, 1.0998, 1.1008), buySnapshot(t1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Opened == nil {
		t.Fatal("no fill")
	}

	// Close 40 pips up without touching stop or target.
	t2 := t1.Add(15 * time.Minute)
	res, err = f.seq.Step(ctx, bar(t2, 1.1010, 1.1045, 1.1005, 1.1040), buySnapshot(t2))
	if err != nil {
		t.Fatal(err)
	}
	if res.Closed != nil {
		t.Fatalf("unexpected exit: %+v", res.Closed)
	}
	if res.StopMoved == nil {
		t.Fatal("stop move not reported")
	}
	if res.StopMoved.Reason != "trailing" {
		t.Fatalf("reason = %q, want trailing", res.StopMoved.Reason)
	}
	if math.Abs(res.StopMoved.NewStop-(1.1040-0.0015)) > 1e-9 {
		t.Fatalf("new stop = %v", res.StopMoved.NewStop)
	}
	if f.seq.Open().StopLoss != res.StopMoved.NewStop {
		t.Fatal("open position stop not updated")
	}
}

func TestStandDownBlocksDecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	f.gate.ForceStatus = calendar.StatusStandDown
	res, err := f.seq.Step(ctx, bar(t0, 1.0995, 1.1005, 1.0990, 1.1000), buySnapshot(t0))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != decision.OutcomeStandDown || !res.Blocked {
		t.Fatalf("result = %+v", res)
	}
	if n := f.countEvents(t, audit.EventStandDownBlock); n != 1 {
		t.Fatalf("stand-down block records = %d, want 1", n)
	}
	if n := f.countEvents(t, audit.EventSignalsGenerated); n != 0 {
		t.Fatalf("signals generated during stand-down: %d records", n)
	}
}

func TestEquityUpdatesOnlyOnClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	if _, err := f.seq.Step(ctx, bar(t0, 1.0995, 1.1005, 1.0990, 1.1000), buySnapshot(t0)); err != nil {
		t.Fatal(err)
	}
	t1 := t0.Add(15 * time.Minute)
	res, err := f.seq.Step(ctx, bar(t1, 1.1000, 1.1005, 1.0995, 1.1002), buySnapshot(t1))
	if err != nil {
		t.Fatal(err)
	}
	pos := res.Opened
	if pos == nil {
		t.Fatal("no fill")
	}
	if f.seq.Equity() != 10000 {
		t.Fatalf("equity moved intrabar: %v", f.seq.Equity())
	}

	// Stop out: 50 pips plus entry costs against 0.40 lots.
	t2 := t1.Add(15 * time.Minute)
	res, err = f.seq.Step(ctx, bar(t2, 1.1000, 1.1005, 1.0940, 1.0950), buySnapshot(t2))
	if err != nil {
		t.Fatal(err)
	}
	if res.Closed == nil {
		t.Fatal("no exit")
	}
	wantPnL := (1.0950 - pos.EntryPrice) * 10000 * pos.Size * 10
	if math.Abs(res.Closed.PnL-wantPnL) > 1e-6 {
		t.Fatalf("pnl = %v, want %v", res.Closed.PnL, wantPnL)
	}
	if math.Abs(f.seq.Equity()-(10000+wantPnL)) > 1e-6 {
		t.Fatalf("equity = %v, want %v", f.seq.Equity(), 10000+wantPnL)
	}
}
