package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"forex-agent/internal/trading"
)

type bucketStats struct {
	Label         string
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	TotalPnL      float64
	TotalWins     float64
	TotalLosses   float64
	WinRate       float64
	AvgPnL        float64
}

func main() {
	runDir := flag.String("run", "", "backtest run directory containing trades.json")
	flag.Parse()
	if *runDir == "" && flag.NArg() > 0 {
		*runDir = flag.Arg(0)
	}
	if *runDir == "" {
		fmt.Fprintln(os.Stderr, "usage: analyze_trades -run logs/backtests/run_YYYYMMDD_HHMMSS")
		os.Exit(2)
	}

	trades, err := loadTrades(filepath.Join(*runDir, "trades.json"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load trades: %v\n", err)
		os.Exit(1)
	}
	if len(trades) == 0 {
		fmt.Println("no closed trades in this run")
		return
	}

	byReason := bucketBy(trades, func(t trading.Record) string { return t.ExitReason })
	byDirection := bucketBy(trades, func(t trading.Record) string { return t.Direction })

	fmt.Printf("Run: %s (%d closed trades)\n", *runDir, len(trades))

	printTable("PERFORMANCE BY EXIT REASON", byReason)
	printTable("PERFORMANCE BY DIRECTION", byDirection)

	var total bucketStats
	for _, s := range byReason {
		total.TotalTrades += s.TotalTrades
		total.WinningTrades += s.WinningTrades
		total.LosingTrades += s.LosingTrades
		total.TotalPnL += s.TotalPnL
	}
	winRate := float64(total.WinningTrades) / float64(total.TotalTrades) * 100

	fmt.Println("\nINSIGHTS")
	fmt.Printf("  Overall win rate: %.1f%%\n", winRate)
	if winRate < 50 {
		fmt.Println("  Win rate below 50%: review signal confidence thresholds before widening risk.")
	}
	for _, s := range byReason {
		if s.Label == trading.ExitStopLoss && s.TotalTrades > total.TotalTrades/2 {
			fmt.Println("  Majority of exits are stop-losses: stops may be too tight for the ATR regime.")
		}
	}
}

func loadTrades(path string) ([]trading.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var trades []trading.Record
	if err := json.Unmarshal(data, &trades); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return trades, nil
}

func bucketBy(trades []trading.Record, key func(trading.Record) string) []*bucketStats {
	buckets := make(map[string]*bucketStats)
	for _, t := range trades {
		k := key(t)
		s, ok := buckets[k]
		if !ok {
			s = &bucketStats{Label: k}
			buckets[k] = s
		}
		s.TotalTrades++
		s.TotalPnL += t.PnL
		if t.PnL > 0 {
			s.WinningTrades++
			s.TotalWins += t.PnL
		} else if t.PnL < 0 {
			s.LosingTrades++
			s.TotalLosses += t.PnL
		}
	}

	var sorted []*bucketStats
	for _, s := range buckets {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
		s.AvgPnL = s.TotalPnL / float64(s.TotalTrades)
		sorted = append(sorted, s)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TotalPnL > sorted[j].TotalPnL
	})
	return sorted
}

func printTable(title string, stats []*bucketStats) {
	fmt.Println("\n" + title)
	fmt.Printf("%-14s %7s %8s %8s %13s %13s %9s\n",
		"Bucket", "Trades", "Winners", "Losers", "Total PnL", "Avg PnL", "Win Rate")
	for _, s := range stats {
		fmt.Printf("%-14s %7d %8d %8d %+13.2f %+13.2f %8.1f%%\n",
			s.Label, s.TotalTrades, s.WinningTrades, s.LosingTrades,
			s.TotalPnL, s.AvgPnL, s.WinRate)
	}
}
