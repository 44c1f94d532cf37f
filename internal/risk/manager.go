// Package risk enforces the account-level admission rules every trade
// proposal must clear before execution, and manages protective stops on
// open positions.
package risk

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-agent/internal/audit"
	"forex-agent/internal/trading"
)

// Config carries the account risk limits. Percentages are fractions of
// current equity (0.02 = 2%).
type Config struct {
	MaxOpenPositions    int                 `json:"max_open_positions"`
	MaxRiskPerTrade     float64             `json:"max_risk_per_trade"`
	MaxTotalRisk        float64             `json:"max_total_risk"`
	MaxDailyLoss        float64             `json:"max_daily_loss"`
	MaxCorrelatedRisk   float64             `json:"max_correlated_risk"`
	CorrelationGroups   map[string][]string `json:"correlation_groups,omitempty"`
	BreakEvenActivation float64             `json:"break_even_activation_pips"`
	TrailingActivation  float64             `json:"trailing_activation_pips"`
	TrailingDistance    float64             `json:"trailing_distance_pips"`
}

// DefaultConfig mirrors the limits the agent ships with.
func DefaultConfig() Config {
	return Config{
		MaxOpenPositions:    3,
		MaxRiskPerTrade:     0.02,
		MaxTotalRisk:        0.06,
		MaxDailyLoss:        0.03,
		MaxCorrelatedRisk:   0.03,
		BreakEvenActivation: 20,
		TrailingActivation:  30,
		TrailingDistance:    15,
	}
}

// Verdict is the outcome of a risk check.
type Verdict struct {
	Approved bool    `json:"approved"`
	Reason   string  `json:"reason,omitempty"`
	Size     float64 `json:"size"`
	RiskPct  float64 `json:"risk_pct"`
}

// Manager holds the mutable account risk state. All methods are safe for
// concurrent use.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	index    *CorrelationIndex
	ledger   *audit.Ledger
	logger   zerolog.Logger
	equity   float64
	dailyPnL float64
	dailyDay string
	open     []trading.Position
}

// NewManager starts the account at the given equity. A nil ledger disables
// audit records, which is only acceptable in tests.
func NewManager(cfg Config, equity float64, ledger *audit.Ledger, logger zerolog.Logger) *Manager {
	groups := cfg.CorrelationGroups
	if len(groups) == 0 {
		groups = DefaultGroups()
	}
	return &Manager{
		cfg:    cfg,
		index:  NewCorrelationIndex(groups),
		ledger: ledger,
		logger: logger.With().Str("component", "risk").Logger(),
		equity: equity,
	}
}

// Equity returns current account equity.
func (m *Manager) Equity() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.equity
}

// DailyPnL returns realized profit and loss for the current UTC day.
func (m *Manager) DailyPnL() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dailyPnL
}

// Sync replaces the manager's view of open positions with a full snapshot.
// The execution layer owns position state; the manager never mutates it.
func (m *Manager) Sync(positions []trading.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = make([]trading.Position, len(positions))
	copy(m.open, positions)
}

// RecordClose applies a realized result to equity and the daily tally.
func (m *Manager) RecordClose(now time.Time, pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(now)
	m.equity += pnl
	m.dailyPnL += pnl
}

// rollover resets the daily tally on a UTC date change. Caller holds mu.
func (m *Manager) rollover(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if day != m.dailyDay {
		m.dailyDay = day
		m.dailyPnL = 0
	}
}

// Check runs the admission rules against a proposal in a fixed order,
// stopping at the first failure. Every outcome is written to the ledger.
func (m *Manager) Check(now time.Time, p trading.Proposal) Verdict {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(now)

	v := m.evaluate(p)
	if v.Approved {
		m.logger.Info().Str("proposal_id", p.ID).Float64("size", v.Size).Msg("proposal approved")
		m.record(audit.EventRiskApproved, p, v)
	} else {
		m.logger.Warn().Str("proposal_id", p.ID).Str("reason", v.Reason).Msg("proposal rejected")
		m.record(audit.EventRiskRejected, p, v)
	}
	return v
}

func (m *Manager) evaluate(p trading.Proposal) Verdict {
	if p.EntryPrice <= 0 {
		return Verdict{Reason: "invalid_entry_price"}
	}
	stopDist := stopDistance(p.Direction, p.EntryPrice, p.StopLoss)
	if p.StopLoss <= 0 || stopDist <= 0 {
		return Verdict{Reason: "invalid_stop_loss"}
	}

	if len(m.open) >= m.cfg.MaxOpenPositions {
		return Verdict{Reason: fmt.Sprintf("max_positions_reached:%d", m.cfg.MaxOpenPositions)}
	}

	if m.dailyPnL <= -m.cfg.MaxDailyLoss*m.equity {
		return Verdict{Reason: "daily_loss_limit_reached"}
	}

	riskPct := p.SuggestedRiskPct
	if riskPct <= 0 || riskPct > m.cfg.MaxRiskPerTrade {
		riskPct = m.cfg.MaxRiskPerTrade
	}

	total := riskPct
	for _, pos := range m.open {
		total += pos.RiskPct
	}
	if total > m.cfg.MaxTotalRisk+1e-12 {
		return Verdict{Reason: fmt.Sprintf("total_risk_exceeded:%.4f", total)}
	}

	for _, group := range m.index.GroupsFor(p.Symbol) {
		exposure := riskPct
		for _, pos := range m.open {
			if m.inGroup(pos.Symbol, group) {
				exposure += pos.RiskPct
			}
		}
		if exposure > m.cfg.MaxCorrelatedRisk+1e-12 {
			return Verdict{Reason: fmt.Sprintf("correlated_risk_exceeded:%s:%.4f", group, exposure)}
		}
	}

	size := m.positionSize(riskPct, stopDist, p.Symbol)
	return Verdict{Approved: true, Size: size, RiskPct: riskPct}
}

func (m *Manager) inGroup(symbol, group string) bool {
	want := normalizeSymbol(symbol)
	for _, member := range m.index.Members(group) {
		if member == want {
			return true
		}
	}
	return false
}

// positionSize converts the approved risk fraction into lots so that the
// stop distance loses exactly riskPct of equity. Caller holds mu.
func (m *Manager) positionSize(riskPct, stopDist float64, symbol string) float64 {
	pips := stopDist * float64(PipMultiplier(symbol))
	if pips <= 0 {
		return 0
	}
	valuePerPipPerLot := NotionalPerLot / float64(PipMultiplier(symbol))
	size := (riskPct * m.equity) / (pips * valuePerPipPerLot)
	return math.Round(size*100) / 100
}

func (m *Manager) record(eventType string, p trading.Proposal, v Verdict) {
	if m.ledger == nil {
		return
	}
	payload := map[string]interface{}{
		"proposal_id": p.ID,
		"symbol":      p.Symbol,
		"direction":   p.Direction,
		"entry_price": p.EntryPrice,
		"stop_loss":   p.StopLoss,
		"risk_pct":    v.RiskPct,
		"size":        v.Size,
	}
	if v.Reason != "" {
		payload["reason"] = v.Reason
	}
	if _, err := m.ledger.Append(eventType, payload); err != nil {
		m.logger.Error().Err(err).Msg("audit append failed")
	}
}

func stopDistance(direction string, entry, stop float64) float64 {
	if strings.EqualFold(direction, trading.DirectionBuy) {
		return entry - stop
	}
	return stop - entry
}
