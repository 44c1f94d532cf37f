package risk

import (
	"testing"

	"github.com/rs/zerolog"

	"forex-agent/internal/trading"
)

func TestPipMultiplier(t *testing.T) {
	if got := PipMultiplier("USD_JPY"); got != 100 {
		t.Fatalf("USD_JPY multiplier = %d, want 100", got)
	}
	if got := PipMultiplier("eur_jpy"); got != 100 {
		t.Fatalf("eur_jpy multiplier = %d, want 100", got)
	}
	if got := PipMultiplier("EUR_USD"); got != 10000 {
		t.Fatalf("EUR_USD multiplier = %d, want 10000", got)
	}
}

func TestEvaluateBreakEven(t *testing.T) {
	pm := NewPositionManager(20, 30, 15, zerolog.Nop())
	pos := trading.Position{
		ID:         "p1",
		Symbol:     "EUR_USD",
		Direction:  trading.DirectionBuy,
		EntryPrice: 1.1000,
		StopLoss:   1.0950,
	}

	// One pip short of activation: no change.
	if upd := pm.Evaluate(pos, 1.1019); upd != nil {
		t.Fatalf("premature update: %+v", upd)
	}

	// Exactly at break-even activation, below trailing activation: stop
	// moves to entry and no further.
	upd := pm.Evaluate(pos, 1.1020)
	if upd == nil {
		t.Fatal("expected break-even update")
	}
	if upd.Reason != "break_even" || upd.NewStop != 1.1000 {
		t.Fatalf("update = %+v", upd)
	}

	// With the stop already at entry and trailing armed, the candidate
	// 15 pips back is above entry and the stop advances to it.
	pos.StopLoss = 1.1000
	upd = pm.Evaluate(pos, 1.1040)
	if upd == nil || upd.Reason != "trailing" {
		t.Fatalf("update = %+v", upd)
	}
	if upd.NewStop < pos.EntryPrice {
		t.Fatalf("stop retreated below entry: %v", upd.NewStop)
	}
}

// Both rules can arm in a single evaluation; the stop must land on the more
// favorable candidate, not stall at break-even for a bar.
func TestEvaluateTrailingBeatsBreakEvenSameCall(t *testing.T) {
	pm := NewPositionManager(20, 30, 15, zerolog.Nop())

	t.Run("long", func(t *testing.T) {
		pos := trading.Position{
			ID:         "p1",
			Symbol:     "EUR_USD",
			Direction:  trading.DirectionBuy,
			EntryPrice: 1.1000,
			StopLoss:   1.0950,
		}
		// 50 pips in profit: break-even candidate is 1.1000, trailing
		// candidate is 1.1035. The trailing stop wins.
		upd := pm.Evaluate(pos, 1.1050)
		if upd == nil || upd.Reason != "trailing" {
			t.Fatalf("update = %+v", upd)
		}
		if want := 1.1050 - 0.0015; !closeEnough(upd.NewStop, want) {
			t.Fatalf("new stop = %v, want %v", upd.NewStop, want)
		}
	})

	t.Run("short", func(t *testing.T) {
		pos := trading.Position{
			ID:         "p2",
			Symbol:     "EUR_USD",
			Direction:  trading.DirectionSell,
			EntryPrice: 1.1000,
			StopLoss:   1.1050,
		}
		upd := pm.Evaluate(pos, 1.0950)
		if upd == nil || upd.Reason != "trailing" {
			t.Fatalf("update = %+v", upd)
		}
		if want := 1.0950 + 0.0015; !closeEnough(upd.NewStop, want) {
			t.Fatalf("new stop = %v, want %v", upd.NewStop, want)
		}
	})

	t.Run("break-even only between thresholds", func(t *testing.T) {
		pos := trading.Position{
			ID:         "p3",
			Symbol:     "EUR_USD",
			Direction:  trading.DirectionBuy,
			EntryPrice: 1.1000,
			StopLoss:   1.0950,
		}
		// 25 pips in profit arms break-even but not trailing.
		upd := pm.Evaluate(pos, 1.1025)
		if upd == nil || upd.Reason != "break_even" || upd.NewStop != 1.1000 {
			t.Fatalf("update = %+v", upd)
		}
	})
}

func TestEvaluateTrailing(t *testing.T) {
	pm := NewPositionManager(20, 30, 15, zerolog.Nop())

	t.Run("long", func(t *testing.T) {
		pos := trading.Position{
			ID:         "p1",
			Symbol:     "EUR_USD",
			Direction:  trading.DirectionBuy,
			EntryPrice: 1.1000,
			StopLoss:   1.1000,
		}
		upd := pm.Evaluate(pos, 1.1050)
		if upd == nil || upd.Reason != "trailing" {
			t.Fatalf("update = %+v", upd)
		}
		if want := 1.1050 - 0.0015; !closeEnough(upd.NewStop, want) {
			t.Fatalf("new stop = %v, want %v", upd.NewStop, want)
		}
	})

	t.Run("short", func(t *testing.T) {
		pos := trading.Position{
			ID:         "p2",
			Symbol:     "USD_JPY",
			Direction:  trading.DirectionSell,
			EntryPrice: 150.00,
			StopLoss:   150.00,
		}
		// 80 pips in profit on a JPY pair; trail 15 pips above price.
		upd := pm.Evaluate(pos, 149.20)
		if upd == nil || upd.Reason != "trailing" {
			t.Fatalf("update = %+v", upd)
		}
		if want := 149.20 + 0.15; !closeEnough(upd.NewStop, want) {
			t.Fatalf("new stop = %v, want %v", upd.NewStop, want)
		}
	})

	t.Run("no less favorable move", func(t *testing.T) {
		pos := trading.Position{
			ID:         "p3",
			Symbol:     "EUR_USD",
			Direction:  trading.DirectionBuy,
			EntryPrice: 1.1000,
			StopLoss:   1.1040,
		}
		// Price pulled back: candidate 1.1035 is below the current stop.
		if upd := pm.Evaluate(pos, 1.1050); upd != nil {
			t.Fatalf("stop loosened: %+v", upd)
		}
	})
}

func closeEnough(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
