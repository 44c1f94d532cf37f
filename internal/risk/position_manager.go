package risk

import (
	"strings"

	"github.com/rs/zerolog"

	"forex-agent/internal/trading"
)

// NotionalPerLot is the unit size of one standard forex lot.
const NotionalPerLot = 100000.0

// PipMultiplier returns the price-to-pip conversion factor for an
// instrument: 100 for JPY crosses, 10000 otherwise.
func PipMultiplier(symbol string) int {
	if strings.Contains(strings.ToUpper(symbol), "JPY") {
		return 100
	}
	return 10000
}

// StopUpdate describes a protective-stop change proposed by the position
// manager. Reason is either "break_even" or "trailing".
type StopUpdate struct {
	PositionID string  `json:"position_id"`
	OldStop    float64 `json:"old_stop"`
	NewStop    float64 `json:"new_stop"`
	Reason     string  `json:"reason"`
}

// PositionManager moves stops on open positions: to break-even once a trade
// is far enough in profit, trailing behind price once it is further still.
// The two rules arm independently, and when both produce a candidate in the
// same call the more favorable stop wins. Stops only ever move in the
// position's favor.
type PositionManager struct {
	breakEvenPips    float64
	trailingArmPips  float64
	trailingDistPips float64
	logger           zerolog.Logger
}

// NewPositionManager configures the break-even activation threshold, the
// trailing activation threshold, and the trailing distance, all in pips.
func NewPositionManager(breakEvenPips, trailingArmPips, trailingDistPips float64, logger zerolog.Logger) *PositionManager {
	return &PositionManager{
		breakEvenPips:    breakEvenPips,
		trailingArmPips:  trailingArmPips,
		trailingDistPips: trailingDistPips,
		logger:           logger.With().Str("component", "position_manager").Logger(),
	}
}

// Evaluate returns a stop update for the position at the current price, or
// nil when no change is warranted. It never proposes a stop less favorable
// than the current one.
func (pm *PositionManager) Evaluate(pos trading.Position, price float64) *StopUpdate {
	pipSize := 1.0 / float64(PipMultiplier(pos.Symbol))
	long := strings.EqualFold(pos.Direction, trading.DirectionBuy)

	var profitPips float64
	if long {
		profitPips = (price - pos.EntryPrice) / pipSize
	} else {
		profitPips = (pos.EntryPrice - price) / pipSize
	}

	var best float64
	var reason string

	// Tolerance absorbs float rounding when price sits exactly on an
	// activation threshold.
	if profitPips+1e-6 >= pm.breakEvenPips {
		if (long && pos.StopLoss < pos.EntryPrice) || (!long && pos.StopLoss > pos.EntryPrice) {
			best, reason = pos.EntryPrice, "break_even"
		}
	}

	if profitPips+1e-6 >= pm.trailingArmPips {
		dist := pm.trailingDistPips * pipSize
		if long {
			if candidate := price - dist; candidate > pos.StopLoss && (reason == "" || candidate > best) {
				best, reason = candidate, "trailing"
			}
		} else {
			if candidate := price + dist; candidate < pos.StopLoss && (reason == "" || candidate < best) {
				best, reason = candidate, "trailing"
			}
		}
	}

	if reason == "" {
		return nil
	}
	return pm.update(pos, best, reason)
}

func (pm *PositionManager) update(pos trading.Position, newStop float64, reason string) *StopUpdate {
	pm.logger.Debug().
		Str("position_id", pos.ID).
		Float64("old_stop", pos.StopLoss).
		Float64("new_stop", newStop).
		Str("reason", reason).
		Msg("stop update")
	return &StopUpdate{
		PositionID: pos.ID,
		OldStop:    pos.StopLoss,
		NewStop:    newStop,
		Reason:     reason,
	}
}
