package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type sliceProvider struct {
	events []EconomicEvent
	calls  int
}

func (p *sliceProvider) GetEvents(ctx context.Context, start, end time.Time, currencies []string) ([]EconomicEvent, error) {
	p.calls++
	return p.events, nil
}

func highEvent(ts time.Time) EconomicEvent {
	return EconomicEvent{
		EventID:  "ev-cpi",
		TimeUTC:  ts,
		Currency: "USD",
		Title:    "CPI m/m",
		Impact:   ImpactHigh,
		Source:   "test",
	}
}

func prefetched(t *testing.T, events ...EconomicEvent) *Engine {
	t.Helper()
	e := NewEngine(DefaultConfig(), &sliceProvider{events: events}, nil, zerolog.Nop())
	if err := e.Prefetch(context.Background(), time.Time{}, time.Time{}.Add(time.Hour), "EUR_USD"); err != nil {
		t.Fatal(err)
	}
	return e
}

// The stand-down window is inclusive on both boundaries: exactly
// pre_minutes before the event already blocks, one minute earlier does not.
func TestAssessBoundaryInclusive(t *testing.T) {
	eventTime := time.Date(2026, 3, 4, 13, 30, 0, 0, time.UTC)
	e := prefetched(t, highEvent(eventTime))

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"61 minutes before", eventTime.Add(-61 * time.Minute), StatusAllowTrading},
		{"exactly pre_minutes before", eventTime.Add(-60 * time.Minute), StatusStandDown},
		{"at event time", eventTime, StatusStandDown},
		{"exactly post_minutes after", eventTime.Add(30 * time.Minute), StatusStandDown},
		{"31 minutes after", eventTime.Add(31 * time.Minute), StatusAllowTrading},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := e.Assess(tt.now, "EUR_USD")
			if a.Status != tt.want {
				t.Fatalf("status = %s, want %s (%s)", a.Status, tt.want, a.Reason)
			}
		})
	}
}

func TestAssessFirstStandDownWins(t *testing.T) {
	base := time.Date(2026, 3, 4, 13, 0, 0, 0, time.UTC)
	first := highEvent(base.Add(10 * time.Minute))
	second := highEvent(base.Add(40 * time.Minute))
	second.EventID = "ev-nfp"
	e := prefetched(t, second, first)

	a := e.Assess(base, "EUR_USD")
	if a.Status != StatusStandDown {
		t.Fatalf("status = %s", a.Status)
	}
	if a.MatchedEvent == nil || a.MatchedEvent.EventID != "ev-cpi" {
		t.Fatalf("matched = %+v, want earliest event", a.MatchedEvent)
	}
}

func TestAssessCautionOnlyWithoutStandDown(t *testing.T) {
	base := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	medium := EconomicEvent{
		EventID:  "ev-gdp",
		TimeUTC:  base.Add(20 * time.Minute),
		Currency: "EUR",
		Title:    "GDP q/q",
		Impact:   ImpactMedium,
		Source:   "test",
	}

	e := prefetched(t, medium)
	if a := e.Assess(base, "EUR_USD"); a.Status != StatusCaution {
		t.Fatalf("status = %s, want CAUTION", a.Status)
	}

	// A concurrent high-impact event escalates the whole instant.
	e = prefetched(t, medium, highEvent(base.Add(25*time.Minute)))
	if a := e.Assess(base, "EUR_USD"); a.Status != StatusStandDown {
		t.Fatalf("status = %s, want STAND_DOWN", a.Status)
	}
}

func TestAssessIgnoresIrrelevantCurrency(t *testing.T) {
	base := time.Date(2026, 3, 4, 13, 0, 0, 0, time.UTC)
	ev := highEvent(base.Add(10 * time.Minute))
	ev.Currency = "AUD"
	e := prefetched(t, ev)

	if a := e.Assess(base, "EUR_USD"); a.Status != StatusAllowTrading {
		t.Fatalf("status = %s, want ALLOW_TRADING", a.Status)
	}
}

func TestAssessDisabledAlwaysAllows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	e := NewEngine(cfg, &sliceProvider{}, nil, zerolog.Nop())

	a := e.Assess(time.Now().UTC(), "EUR_USD")
	if a.Status != StatusAllowTrading {
		t.Fatalf("status = %s", a.Status)
	}
}

func TestAssessNextHighEventTracking(t *testing.T) {
	base := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	e := prefetched(t, highEvent(base.Add(3*time.Hour)))

	a := e.Assess(base, "EUR_USD")
	if a.Status != StatusAllowTrading {
		t.Fatalf("status = %s", a.Status)
	}
	if a.NextHighEventTime == nil || a.MinutesToEvent == nil {
		t.Fatal("next high event not tracked")
	}
	if *a.MinutesToEvent != 180 {
		t.Fatalf("minutes_to_event = %d, want 180", *a.MinutesToEvent)
	}
}

func TestForceStatusPinsResult(t *testing.T) {
	e := prefetched(t, highEvent(time.Now().UTC()))
	e.ForceStatus = StatusAllowTrading

	if a := e.Assess(time.Now().UTC(), "EUR_USD"); a.Status != StatusAllowTrading {
		t.Fatalf("status = %s", a.Status)
	}
}

// With Redis unreachable every lookup falls through to the inner provider
// instead of failing the gate.
func TestCachedProviderFallsBackWithoutRedis(t *testing.T) {
	inner := &sliceProvider{events: []EconomicEvent{highEvent(time.Date(2026, 3, 4, 13, 30, 0, 0, time.UTC))}}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	p := NewCachedProvider(inner, client, zerolog.Nop())

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	events, err := p.GetEvents(context.Background(), start, start.Add(7*24*time.Hour), []string{"USD"})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || inner.calls != 1 {
		t.Fatalf("events = %d, inner calls = %d", len(events), inner.calls)
	}
}

func TestMockProviderDeterministic(t *testing.T) {
	p := NewMockProvider()
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(7 * 24 * time.Hour)

	a, err := p.GetEvents(context.Background(), start, end, []string{"USD", "EUR"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.GetEvents(context.Background(), start, end, []string{"USD", "EUR"})
	if err != nil {
		t.Fatal(err)
	}
	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("runs differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("event %d differs", i)
		}
	}
}
