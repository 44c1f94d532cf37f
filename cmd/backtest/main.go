package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"forex-agent/config"
	"forex-agent/internal/backtest"
	"forex-agent/internal/logging"
	"forex-agent/internal/market"
)

func main() {
	csvPath := flag.String("csv", "", "path to candle CSV (timestamp,open,high,low,close,volume)")
	configPath := flag.String("config", "", "optional config file overriding backtest defaults")
	instrument := flag.String("instrument", "", "instrument override, e.g. EUR_USD")
	balance := flag.Float64("balance", 0, "initial balance override")
	noEventFilter := flag.Bool("no-event-filter", false, "disable the economic event gate")
	start := flag.String("start", "", "archive range start (RFC3339), used with a database-enabled config")
	end := flag.String("end", "", "archive range end (RFC3339)")
	flag.Parse()

	btCfg := backtest.DefaultConfig()
	logCfg := logging.Config{Level: "info", Output: "stdout"}
	var cfg *config.Config
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		btCfg = cfg.BacktestConfig
		logCfg = cfg.LoggingConfig
	}

	fromArchive := cfg != nil && cfg.DatabaseConfig.Enabled && *csvPath == ""
	if *csvPath == "" && !fromArchive {
		fmt.Fprintln(os.Stderr, "usage: backtest -csv <candles.csv> [-config config.json]")
		fmt.Fprintln(os.Stderr, "       backtest -config config.json -start <rfc3339> -end <rfc3339>  (candle archive)")
		os.Exit(2)
	}
	if *instrument != "" {
		btCfg.Instrument = *instrument
	}
	if *balance > 0 {
		btCfg.InitialBalance = *balance
	}
	if *noEventFilter {
		btCfg.UseEventFilter = false
	}

	logger := logging.New(logCfg)

	var candles []market.Candle
	var err error
	if fromArchive {
		candles, err = loadFromArchive(cfg, btCfg, *start, *end, logger)
	} else {
		candles, err = market.LoadCandlesCSV(*csvPath)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("load candles")
	}
	logger.Info().Int("candles", len(candles)).Str("instrument", btCfg.Instrument).Msg("starting backtest")

	runner := backtest.NewRunner(btCfg, nil, logger)
	result, err := runner.Run(context.Background(), candles)
	if err != nil {
		logger.Fatal().Err(err).Msg("backtest failed")
	}

	m := result.Metrics
	fmt.Printf("\n=== Backtest %s ===\n", result.RunID)
	fmt.Printf("Trades:        %d (%d won / %d lost)\n", m.TotalTrades, m.WinningTrades, m.LosingTrades)
	fmt.Printf("Win rate:      %.1f%%\n", m.WinRate)
	fmt.Printf("Net profit:    %.2f\n", m.NetProfit)
	fmt.Printf("ROI:           %.2f%%\n", m.ROI)
	fmt.Printf("Profit factor: %.2f\n", m.ProfitFactor)
	fmt.Printf("Max drawdown:  %.2f%%\n", m.MaxDrawdown)
	fmt.Printf("Sharpe ratio:  %.2f\n", m.SharpeRatio)
	if ma, ok := result.Baselines["ma_crossover"]; ok {
		fmt.Printf("Baseline (MA cross): %.2f net over %d trades\n", ma.NetProfit, ma.TotalTrades)
	}
	fmt.Printf("Artifacts:     %s\n", result.OutputDir)
}

func loadFromArchive(cfg *config.Config, btCfg backtest.Config, start, end string, logger zerolog.Logger) ([]market.Candle, error) {
	if start == "" || end == "" {
		return nil, fmt.Errorf("archive mode needs -start and -end")
	}
	from, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return nil, fmt.Errorf("parse -start: %w", err)
	}
	to, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return nil, fmt.Errorf("parse -end: %w", err)
	}

	ctx := context.Background()
	store, err := market.NewHistoryStore(ctx, market.HistoryConfig{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.LoadRange(ctx, btCfg.Instrument, btCfg.Granularity, from, to)
}
