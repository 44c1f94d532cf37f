package audit

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

func openLedger(t *testing.T, path string, opts ...Option) *Ledger {
	t.Helper()
	l, err := Open(path, zerolog.Nop(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestAppendBuildsValidChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	l := openLedger(t, path)

	if _, err := l.Append(EventRiskApproved, map[string]interface{}{"size": 0.4, "symbol": "EUR_USD"}); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Append(EventTradeExecuted, map[string]interface{}{"fill_price": 1.10032}); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Append(EventTradeClosed, nil); err != nil {
		t.Fatal(err)
	}

	events, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	// Open writes the AUDIT_FILE_OPENED marker first.
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	if events[0].PrevHash != GenesisHash {
		t.Fatalf("genesis prev_hash = %s", events[0].PrevHash)
	}
	for i := 1; i < len(events); i++ {
		if events[i].PrevHash != events[i-1].Hash {
			t.Fatalf("link broken at %d", i)
		}
	}

	res := Verify(events)
	if res.Status != VerifyPass {
		t.Fatalf("verify = %s (%s)", res.Status, res.Detail)
	}
	if res.Checked != 4 {
		t.Fatalf("checked = %d", res.Checked)
	}
}

// Flipping any single byte inside a payload field must turn verification
// into a FAIL.
func TestVerifyDetectsSingleByteTamper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	l := openLedger(t, path)
	if _, err := l.Append(EventRiskApproved, map[string]interface{}{"symbol": "EUR_USD"}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := bytes.Replace(data, []byte("EUR_USD"), []byte("EUR_USX"), 1)
	if bytes.Equal(data, tampered) {
		t.Fatal("tamper target not found")
	}
	if err := os.WriteFile(path, tampered, 0o644); err != nil {
		t.Fatal(err)
	}

	res, _ := VerifyFile(path)
	if res.Status != VerifyFail {
		t.Fatalf("verify after tamper = %s, want FAIL", res.Status)
	}
}

// Verifying a sub-window of a larger file is internally consistent but does
// not close to genesis.
func TestVerifySubWindowIsPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	l := openLedger(t, path)
	for i := 0; i < 5; i++ {
		if _, err := l.Append(EventEventRisk, map[string]interface{}{"i": i}); err != nil {
			t.Fatal(err)
		}
	}

	events, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	res := Verify(events[2:])
	if res.Status != VerifyPartial {
		t.Fatalf("sub-window verify = %s, want PARTIAL", res.Status)
	}
}

// Two ledger handles alternately appending to the same file must still
// produce one valid chain: each append links to the true tail on disk, not
// to a cached head.
func TestTwoWritersInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	a := openLedger(t, path)
	b := openLedger(t, path)

	for i := 0; i < 4; i++ {
		if _, err := a.Append(EventEventRisk, map[string]interface{}{"writer": "a", "i": i}); err != nil {
			t.Fatal(err)
		}
		if _, err := b.Append(EventEventRisk, map[string]interface{}{"writer": "b", "i": i}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := VerifyFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != VerifyPass {
		t.Fatalf("interleaved verify = %s (%s)", res.Status, res.Detail)
	}
}

func TestAppendLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	l := openLedger(t, path, WithLockTimeout(150*time.Millisecond))

	// Hold the ledger's lock file from the outside.
	holder := flock.New(path + ".lock")
	locked, err := holder.TryLock()
	if err != nil || !locked {
		t.Fatalf("could not take lock: %v", err)
	}
	defer holder.Unlock()

	_, err = l.Append(EventEventRisk, nil)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("err = %v, want ErrLockTimeout", err)
	}
}

func TestTailRecoveryAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	l := openLedger(t, path)
	if _, err := l.Append(EventEventRisk, nil); err != nil {
		t.Fatal(err)
	}

	// A fresh handle must link its marker to the existing tail.
	openLedger(t, path)

	events, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := events[len(events)-1]; got.EventType != EventAuditFileOpened || got.PrevHash != events[len(events)-2].Hash {
		t.Fatalf("reopen marker = %+v", got)
	}
	if res := Verify(events); res.Status != VerifyPass {
		t.Fatalf("verify = %s", res.Status)
	}
}

// A record larger than the initial tail read window must still be
// located when the next writer links to it.
func TestAppendAfterOversizedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	l := openLedger(t, path)

	big := strings.Repeat("x", 16*1024)
	if _, err := l.Append(EventSignalsGenerated, map[string]interface{}{"features": big}); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Append(EventTradeExecuted, map[string]interface{}{"fill_price": 1.10032}); err != nil {
		t.Fatal(err)
	}

	res, err := VerifyFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != VerifyPass {
		t.Fatalf("verify = %s (%s)", res.Status, res.Detail)
	}
	if res.Checked != 3 {
		t.Fatalf("checked = %d, want 3", res.Checked)
	}
}

func TestReadAllRejectsTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	l := openLedger(t, path)
	if _, err := l.Append(EventEventRisk, nil); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"event_id":"torn`); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := ReadAll(path); !errors.Is(err, ErrChainIntegrity) {
		t.Fatalf("err = %v, want ErrChainIntegrity", err)
	}
	if _, err := l.Append(EventEventRisk, nil); !errors.Is(err, ErrChainIntegrity) {
		t.Fatalf("append on torn tail err = %v, want ErrChainIntegrity", err)
	}
}

func TestTimestampsMonotonicPerWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	var n int
	l := openLedger(t, path, WithClock(func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Millisecond)
	}))

	for i := 0; i < 3; i++ {
		if _, err := l.Append(EventEventRisk, nil); err != nil {
			t.Fatal(err)
		}
	}
	events, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	var prev string
	for _, ev := range events {
		if strings.Compare(ev.Timestamp, prev) < 0 {
			t.Fatalf("timestamp regressed: %s after %s", ev.Timestamp, prev)
		}
		prev = ev.Timestamp
	}
}
