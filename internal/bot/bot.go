// Package bot runs the live trading loop: one sequencer pass per candle
// interval against the configured market data provider.
package bot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-agent/internal/calendar"
	"forex-agent/internal/events"
	"forex-agent/internal/health"
	"forex-agent/internal/market"
	"forex-agent/internal/metrics"
	"forex-agent/internal/sequencer"
)

// calendarRefresh is how often the event cache is refetched.
const calendarRefresh = 6 * time.Hour

// Config holds the loop parameters.
type Config struct {
	Instrument   string
	Granularity  string
	Lookback     int
	TickInterval time.Duration
	ProviderName string
}

// Bot owns the live loop goroutine.
type Bot struct {
	cfg      Config
	provider market.Provider
	seq      *sequencer.Sequencer
	gate     *calendar.Engine
	monitor  *health.Monitor
	bus      *events.EventBus
	history  *market.HistoryStore
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	lastBar time.Time
	lastCal time.Time
}

// New wires the live loop. The history store is optional.
func New(cfg Config, provider market.Provider, seq *sequencer.Sequencer, gate *calendar.Engine, monitor *health.Monitor, bus *events.EventBus, history *market.HistoryStore, logger zerolog.Logger) *Bot {
	return &Bot{
		cfg:      cfg,
		provider: provider,
		seq:      seq,
		gate:     gate,
		monitor:  monitor,
		bus:      bus,
		history:  history,
		logger:   logger.With().Str("component", "bot").Logger(),
	}
}

// Start launches the loop. It returns immediately; Stop shuts it down.
func (b *Bot) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.stop = make(chan struct{})
	b.done = make(chan struct{})

	b.bus.Publish(events.Event{Type: events.EventBotStarted, Data: map[string]interface{}{
		"instrument":  b.cfg.Instrument,
		"granularity": b.cfg.Granularity,
	}})
	b.logger.Info().Str("instrument", b.cfg.Instrument).Str("granularity", b.cfg.Granularity).Msg("bot started")

	go b.run(ctx)
}

// Stop shuts the loop down and waits for the current tick to finish.
func (b *Bot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stop)
	done := b.done
	b.mu.Unlock()

	<-done
	b.bus.Publish(events.Event{Type: events.EventBotStopped, Data: map[string]interface{}{}})
	b.logger.Info().Msg("bot stopped")
}

// Running reports whether the loop is active.
func (b *Bot) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Bot) run(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()

	// First pass immediately rather than waiting a full interval.
	b.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick runs one full pass. Errors abandon the tick; the next interval starts
// from clean state.
func (b *Bot) tick(ctx context.Context) {
	now := time.Now().UTC()
	if err := b.refreshCalendar(ctx, now); err != nil {
		// An empty or stale event cache must not pass for a quiet
		// calendar: without it a stand-down window is invisible.
		b.logger.Warn().Err(err).Msg("tick skipped: calendar unavailable")
		b.bus.Publish(events.Event{Type: events.EventDataHealth, Data: map[string]interface{}{
			"provider": "calendar",
			"error":    err.Error(),
			"status":   b.monitor.Status(),
		}})
		metrics.TickErrorsTotal.Inc()
		return
	}

	start := time.Now()
	candles, err := b.provider.FetchCandles(ctx, b.cfg.Instrument, b.cfg.Granularity, b.cfg.Lookback+1)
	latency := time.Since(start)
	metrics.DataFetchSeconds.Observe(latency.Seconds())

	if err != nil || len(candles) == 0 {
		b.monitor.RecordFailure(b.cfg.ProviderName, latency, err)
		b.bus.PublishError("bot", "candle fetch failed", err)
		metrics.TickErrorsTotal.Inc()
		return
	}
	last := candles[len(candles)-1]
	b.monitor.RecordSuccess(b.cfg.ProviderName, last.Timestamp, latency)

	// The provider may return the same closed bar between intervals.
	if last.Timestamp.Equal(b.lastBar) {
		return
	}
	b.lastBar = last.Timestamp

	if b.history != nil {
		if err := b.history.SaveCandles(ctx, b.cfg.Instrument, b.cfg.Granularity, candles); err != nil {
			b.logger.Warn().Err(err).Msg("candle archive write failed")
		}
	}

	features := market.ComputeFeatures(candles)
	res, err := b.seq.Step(ctx, last, features[len(features)-1])
	if err != nil {
		b.logger.Error().Err(err).Time("bar", last.Timestamp).Msg("tick abandoned")
		b.bus.PublishError("sequencer", "tick failed", err)
		metrics.TickErrorsTotal.Inc()
		return
	}

	metrics.TicksTotal.Inc()
	if res.Outcome != "" {
		metrics.DecisionsTotal.WithLabelValues(res.Outcome).Inc()
		b.bus.PublishDecision(b.cfg.Instrument, res.Outcome, "")
	}
	if res.Blocked {
		if res.LeakPrevented {
			metrics.GateBlocksTotal.WithLabelValues("gate_leak").Inc()
			b.bus.Publish(events.Event{Type: events.EventGateLeakBlocked, Data: map[string]interface{}{
				"instrument": b.cfg.Instrument,
				"bar":        last.Timestamp.Format(time.RFC3339),
			}})
		} else {
			metrics.GateBlocksTotal.WithLabelValues("stand_down").Inc()
			b.bus.Publish(events.Event{Type: events.EventStandDown, Data: map[string]interface{}{
				"instrument": b.cfg.Instrument,
				"bar":        last.Timestamp.Format(time.RFC3339),
			}})
		}
	}
	if res.StopMoved != nil {
		b.bus.Publish(events.Event{Type: events.EventStopUpdated, Data: map[string]interface{}{
			"position_id": res.StopMoved.PositionID,
			"old_stop":    res.StopMoved.OldStop,
			"new_stop":    res.StopMoved.NewStop,
			"reason":      res.StopMoved.Reason,
		}})
	}
	if res.Opened != nil {
		metrics.OpenPositions.Set(1)
		b.bus.PublishTradeOpened(res.Opened.Symbol, res.Opened.Direction, res.Opened.EntryPrice, res.Opened.Size)
	}
	if res.Closed != nil {
		metrics.OpenPositions.Set(0)
		metrics.TradesTotal.WithLabelValues(res.Closed.ExitReason).Inc()
		b.bus.PublishTradeClosed(res.Closed.Symbol, res.Closed.ExitReason, res.Closed.EntryPrice, res.Closed.ExitPrice, res.Closed.PnL)
	}

	metrics.Equity.Set(b.seq.Equity())
	b.bus.PublishEquity(b.seq.Equity())
	b.bus.Publish(events.Event{Type: events.EventTickCompleted, Data: map[string]interface{}{
		"bar":    last.Timestamp.Format(time.RFC3339),
		"close":  last.Close,
		"equity": b.seq.Equity(),
	}})
}

// refreshCalendar keeps the event cache warm for the coming week. When the
// gate is enabled, a fetch failure is returned so the tick is skipped rather
// than assessed against a cache that may be hiding a stand-down window.
func (b *Bot) refreshCalendar(ctx context.Context, now time.Time) error {
	if b.gate == nil || !b.gate.Enabled() {
		return nil
	}
	if b.gate.Fetched() && now.Sub(b.lastCal) < calendarRefresh {
		return nil
	}
	fetchStart := time.Now()
	start := now.Add(-24 * time.Hour)
	end := now.Add(7 * 24 * time.Hour)
	if err := b.gate.Prefetch(ctx, start, end, b.cfg.Instrument); err != nil {
		b.monitor.RecordFailure("calendar", time.Since(fetchStart), err)
		return err
	}
	b.lastCal = now
	return nil
}
