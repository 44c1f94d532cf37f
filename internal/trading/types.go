// Package trading holds the domain types shared across the decision, risk,
// execution, and sequencing packages.
package trading

import (
	"time"

	"github.com/google/uuid"
)

// Trade directions.
const (
	DirectionBuy  = "BUY"
	DirectionSell = "SELL"
)

// Exit reasons recorded on closed trades.
const (
	ExitStopLoss   = "STOP_LOSS"
	ExitTakeProfit = "TAKE_PROFIT"
	ExitEndOfRun   = "END_OF_RUN"
)

// Proposal is a fully specified trade candidate produced by the decision
// pipeline. It is immutable and consumed exactly once by the risk check and
// the fill path. A zero TakeProfit means no target is set; StopLoss is
// mandatory and must be positive.
type Proposal struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Symbol           string    `json:"symbol"`
	Direction        string    `json:"direction"`
	EntryPrice       float64   `json:"entry_price"`
	StopLoss         float64   `json:"stop_loss"`
	TakeProfit       float64   `json:"take_profit,omitempty"`
	Confidence       float64   `json:"confidence"`
	Reasoning        string    `json:"reasoning"`
	SuggestedRiskPct float64   `json:"suggested_risk_pct"`
}

// NewProposalID returns a fresh proposal identifier.
func NewProposalID() string { return uuid.NewString() }

// Position is an open trade. It is owned by the sequencer/position-manager
// pair while open and mutated only through stop-loss updates.
type Position struct {
	ID         string    `json:"id"`
	ProposalID string    `json:"proposal_id"`
	Symbol     string    `json:"symbol"`
	Direction  string    `json:"direction"`
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	Size       float64   `json:"size"`
	RiskPct    float64   `json:"risk_pct"`
	Slippage   float64   `json:"slippage_incurred,omitempty"`
}

// Record is the terminal entry appended to trade history when a position
// closes. The Position it derives from ceases to exist at that point.
type Record struct {
	Position
	ExitTime   time.Time `json:"exit_time"`
	ExitPrice  float64   `json:"exit_price"`
	ExitReason string    `json:"exit_reason"`
	PnL        float64   `json:"pnl"`
}
