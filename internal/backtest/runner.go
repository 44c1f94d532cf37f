// Package backtest replays historical candles through the same sequencer the
// live agent runs, with a per-run audit ledger and output directory.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"forex-agent/internal/audit"
	"forex-agent/internal/calendar"
	"forex-agent/internal/decision"
	"forex-agent/internal/execution"
	"forex-agent/internal/market"
	"forex-agent/internal/risk"
	"forex-agent/internal/sequencer"
	"forex-agent/internal/trading"
)

// Config holds backtest parameters. Spread is quoted in pips and converted
// with the instrument's pip size.
type Config struct {
	Instrument     string          `json:"instrument"`
	Granularity    string          `json:"granularity"`
	InitialBalance float64         `json:"initial_balance"`
	Lookback       int             `json:"lookback_candles"`
	SpreadPips     float64         `json:"spread_pips"`
	UseEventFilter bool            `json:"use_event_filter"`
	OutputDir      string          `json:"output_dir"`
	Risk           risk.Config     `json:"risk"`
	Calendar       calendar.Config `json:"calendar"`
}

// DefaultConfig is the stock EUR_USD M15 run.
func DefaultConfig() Config {
	return Config{
		Instrument:     "EUR_USD",
		Granularity:    "M15",
		InitialBalance: 10000,
		Lookback:       200,
		SpreadPips:     1.2,
		UseEventFilter: true,
		OutputDir:      "logs/backtests",
		Risk:           risk.DefaultConfig(),
		Calendar:       calendar.DefaultConfig(),
	}
}

// Result is a completed run with its artifacts on disk. Baselines carries
// the comparison strategies replayed over the same candles, keyed
// "no_trade" and "ma_crossover".
type Result struct {
	RunID       string             `json:"run_id"`
	OutputDir   string             `json:"-"`
	AuditPath   string             `json:"-"`
	Trades      []trading.Record   `json:"trades"`
	EquityCurve []EquityPoint      `json:"equity_curve"`
	Metrics     Metrics            `json:"metrics"`
	Baselines   map[string]Metrics `json:"baselines"`
}

// simProvider feeds the execution engine the simulated clock and spread
// while the runner advances it bar by bar.
type simProvider struct {
	candles []market.Candle
	idx     int
	spread  float64
}

func (p *simProvider) FetchCandles(ctx context.Context, instrument, granularity string, lookback int) ([]market.Candle, error) {
	lo := p.idx + 1 - lookback
	if lo < 0 {
		lo = 0
	}
	return p.candles[lo : p.idx+1], nil
}

func (p *simProvider) FetchSpread(ctx context.Context, instrument string) (float64, error) {
	return p.spread, nil
}

func (p *simProvider) CurrentTime() time.Time { return p.candles[p.idx].Timestamp }

// Runner replays candle history through a freshly built pipeline per run.
type Runner struct {
	cfg      Config
	provider calendar.Provider
	logger   zerolog.Logger
}

// NewRunner wires a runner. calProvider supplies economic events for the
// replayed range; a nil provider falls back to the deterministic mock.
func NewRunner(cfg Config, calProvider calendar.Provider, logger zerolog.Logger) *Runner {
	if calProvider == nil {
		calProvider = calendar.NewMockProvider()
	}
	return &Runner{
		cfg:      cfg,
		provider: calProvider,
		logger:   logger.With().Str("component", "backtest").Logger(),
	}
}

// Run replays the candles. Each run gets its own directory holding the audit
// ledger, the position book, and the JSON artifacts.
func (r *Runner) Run(ctx context.Context, candles []market.Candle) (*Result, error) {
	if len(candles) <= r.cfg.Lookback {
		return nil, fmt.Errorf("backtest: need more than %d candles, got %d", r.cfg.Lookback, len(candles))
	}

	runID := "run_" + time.Now().UTC().Format("20060102_150405")
	outDir := filepath.Join(r.cfg.OutputDir, runID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("backtest: create output dir: %w", err)
	}

	auditPath := filepath.Join(outDir, "audit.ndjson")
	ledger, err := audit.Open(auditPath, r.logger)
	if err != nil {
		return nil, err
	}

	calCfg := r.cfg.Calendar
	calCfg.Enabled = calCfg.Enabled && r.cfg.UseEventFilter
	gate := calendar.NewEngine(calCfg, r.provider, ledger, r.logger)
	if calCfg.Enabled {
		start := candles[0].Timestamp
		end := candles[len(candles)-1].Timestamp
		if err := gate.Prefetch(ctx, start, end, r.cfg.Instrument); err != nil {
			return nil, err
		}
	}

	pipSize := 1.0 / float64(risk.PipMultiplier(r.cfg.Instrument))
	prov := &simProvider{candles: candles, spread: r.cfg.SpreadPips * pipSize}
	store := execution.NewStore(filepath.Join(outDir, "positions.json"))
	exec := execution.NewEngine(prov, store, ledger, r.logger)
	decider := decision.NewEngine(gate, nil, ledger, r.logger)
	riskMgr := risk.NewManager(r.cfg.Risk, r.cfg.InitialBalance, ledger, r.logger)
	posMgr := risk.NewPositionManager(r.cfg.Risk.BreakEvenActivation, r.cfg.Risk.TrailingActivation, r.cfg.Risk.TrailingDistance, r.logger)

	seq, err := sequencer.New(r.cfg.Instrument, gate, decider, riskMgr, posMgr, exec, ledger, r.logger)
	if err != nil {
		return nil, err
	}

	r.logger.Info().Str("run_id", runID).Int("candles", len(candles)).Msg("backtest started")

	features := market.ComputeFeatures(candles)
	result := &Result{RunID: runID, OutputDir: outDir, AuditPath: auditPath}

	for i := r.cfg.Lookback; i < len(candles); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prov.idx = i
		step, err := seq.Step(ctx, candles[i], features[i])
		if err != nil {
			r.logger.Error().Err(err).Time("bar", candles[i].Timestamp).Msg("tick abandoned")
			continue
		}
		if step.Closed != nil {
			result.Trades = append(result.Trades, *step.Closed)
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{
			Timestamp: candles[i].Timestamp.UTC().Format(time.RFC3339),
			Equity:    seq.Equity(),
		})
	}

	if rec, err := seq.CloseAll(candles[len(candles)-1]); err != nil {
		return nil, err
	} else if rec != nil {
		result.Trades = append(result.Trades, *rec)
		result.EquityCurve = append(result.EquityCurve, EquityPoint{
			Timestamp: candles[len(candles)-1].Timestamp.UTC().Format(time.RFC3339),
			Equity:    seq.Equity(),
		})
	}

	result.Metrics = ComputeMetrics(r.cfg.InitialBalance, result.Trades, result.EquityCurve)

	if err := writeJSON(filepath.Join(outDir, "trades.json"), result.Trades); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(outDir, "equity.json"), result.EquityCurve); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(outDir, "metrics.json"), result.Metrics); err != nil {
		return nil, err
	}

	// Comparison strategies over the same candles. A run that cannot beat
	// doing nothing, or a plain crossover, is not worth its complexity.
	noTradeCurve := noTradeBaseline(r.cfg.InitialBalance, candles)
	maTrades, maCurve := maCrossoverBaseline(r.cfg.Instrument, r.cfg.InitialBalance, candles)
	result.Baselines = map[string]Metrics{
		"no_trade":     ComputeMetrics(r.cfg.InitialBalance, nil, noTradeCurve),
		"ma_crossover": ComputeMetrics(r.cfg.InitialBalance, maTrades, maCurve),
	}
	if err := writeJSON(filepath.Join(outDir, "metrics_baseline_notrade.json"), result.Baselines["no_trade"]); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(outDir, "metrics_baseline_ma.json"), result.Baselines["ma_crossover"]); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(outDir, "trades_baseline_ma.json"), maTrades); err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("run_id", runID).
		Int("trades", result.Metrics.TotalTrades).
		Float64("net_profit", result.Metrics.NetProfit).
		Msg("backtest finished")
	return result, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("backtest: encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("backtest: write %s: %w", filepath.Base(path), err)
	}
	return nil
}
