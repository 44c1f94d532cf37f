// Package audit implements the tamper-evident, hash-chained trade audit ledger.
//
// Every record carries the SHA-256 digest of its own canonical serialization and
// the digest of its predecessor, so any retroactive edit breaks the chain. The
// ledger file is newline-delimited JSON, append-only, and safe for multiple
// processes: appends happen under an exclusive file lock, and the true chain head
// is re-read from the file tail while the lock is held rather than trusted from
// memory.
package audit

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/rs/zerolog"
)

// GenesisHash anchors the first event of a fresh ledger file.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

const (
	// DefaultLockTimeout bounds the wait for the exclusive file lock.
	DefaultLockTimeout = 5 * time.Second

	lockRetryDelay = 50 * time.Millisecond
	tailReadBytes  = 8192
)

var (
	// ErrLockTimeout is returned when the ledger lock cannot be acquired in
	// time. The caller's action must not proceed and is not considered logged.
	ErrLockTimeout = errors.New("audit: ledger lock timeout")

	// ErrChainIntegrity marks tamper evidence found during verification.
	ErrChainIntegrity = errors.New("audit: chain integrity failure")
)

// Well-known event types written by the core pipeline.
const (
	EventAuditFileOpened       = "AUDIT_FILE_OPENED"
	EventEventsFetch           = "EVENTS_FETCH"
	EventEventRisk             = "EVENT_RISK"
	EventStandDownBlock        = "EVENT_STAND_DOWN_BLOCK"
	EventGateLeakPrevented     = "EVENT_GATE_LEAK_PREVENTED"
	EventSignalsGenerated      = "SIGNALS_GENERATED"
	EventRiskApproved          = "RISK_APPROVED"
	EventRiskRejected          = "RISK_REJECTED"
	EventTradeExecuted         = "TRADE_EXECUTED"
	EventTradeClosed           = "TRADE_CLOSED"
	EventStopLossUpdate        = "SL_UPDATE"
	EventMissingStopLossBlock  = "MISSING_STOP_LOSS_BLOCK_EXECUTION"
	EventDataHealth            = "DATA_HEALTH"
)

// Event is one hash-chained ledger record.
type Event struct {
	EventID   string                 `json:"event_id"`
	Timestamp string                 `json:"timestamp"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
	PrevHash  string                 `json:"prev_hash"`
	Hash      string                 `json:"hash"`
}

// Ledger appends hash-chained events to a single NDJSON file.
type Ledger struct {
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithLockTimeout overrides the bounded lock wait.
func WithLockTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.lockTimeout = d }
}

// WithClock overrides the timestamp source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Open creates a Ledger for the given file, creating parent directories as
// needed, and writes an AUDIT_FILE_OPENED marker event.
func Open(path string, logger zerolog.Logger, opts ...Option) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: create ledger dir: %w", err)
	}

	l := &Ledger{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: DefaultLockTimeout,
		logger:      logger.With().Str("component", "AuditLedger").Logger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	if _, err := l.Append(EventAuditFileOpened, map[string]interface{}{
		"path": path,
		"pid":  os.Getpid(),
	}); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the ledger file path.
func (l *Ledger) Path() string { return l.path }

// Append writes one event to the ledger and returns it. The chain head is
// recovered from the file tail while holding the exclusive lock, so concurrent
// writers always link to the true previous event.
func (l *Ledger) Append(eventType string, payload map[string]interface{}) (*Event, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.lockTimeout)
	defer cancel()

	locked, err := l.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, l.path)
	}
	defer l.lock.Unlock()

	prevHash, err := l.tailHash()
	if err != nil {
		return nil, err
	}

	if payload == nil {
		payload = map[string]interface{}{}
	}
	ev := &Event{
		EventID:   uuid.NewString(),
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		EventType: eventType,
		Payload:   payload,
		PrevHash:  prevHash,
	}
	ev.Hash, err = digest(ev)
	if err != nil {
		return nil, err
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal event: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("audit: write event: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("audit: sync ledger: %w", err)
	}

	l.logger.Debug().Str("event_type", eventType).Str("hash", ev.Hash).Msg("event appended")
	return ev, nil
}

// tailHash reads the hash of the last event in the file. Must be called with
// the file lock held. An empty or missing file yields the genesis hash.
func (l *Ledger) tailHash() (string, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return GenesisHash, nil
		}
		return "", fmt.Errorf("audit: open ledger tail: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("audit: stat ledger: %w", err)
	}
	if info.Size() == 0 {
		return GenesisHash, nil
	}

	// Grow the window until it holds the newline preceding the last record,
	// so a record longer than one read never parses as a truncated fragment.
	window := int64(tailReadBytes)
	var last []byte
	for {
		if window > info.Size() {
			window = info.Size()
		}
		offset := info.Size() - window
		buf := make([]byte, window)
		if _, err := f.ReadAt(buf, offset); err != nil {
			return "", fmt.Errorf("audit: read ledger tail: %w", err)
		}

		trimmed := bytes.TrimRight(buf, "\n")
		idx := bytes.LastIndexByte(trimmed, '\n')
		if idx >= 0 {
			last = trimmed[idx+1:]
			break
		}
		if offset == 0 {
			last = trimmed
			break
		}
		window *= 2
	}

	var ev Event
	if err := json.Unmarshal(last, &ev); err != nil || ev.Hash == "" {
		// A torn or foreign tail line is chain corruption, not a fresh file.
		return "", fmt.Errorf("%w: unreadable tail record", ErrChainIntegrity)
	}
	return ev.Hash, nil
}

// digest computes the SHA-256 hex digest of the RFC 8785 canonical JSON
// serialization of the event with its hash field cleared.
func digest(ev *Event) (string, error) {
	unhashed := struct {
		EventID   string                 `json:"event_id"`
		Timestamp string                 `json:"timestamp"`
		EventType string                 `json:"event_type"`
		Payload   map[string]interface{} `json:"payload"`
		PrevHash  string                 `json:"prev_hash"`
	}{ev.EventID, ev.Timestamp, ev.EventType, ev.Payload, ev.PrevHash}

	raw, err := json.Marshal(unhashed)
	if err != nil {
		return "", fmt.Errorf("audit: marshal for digest: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("audit: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ReadAll loads every event from a ledger file in order.
func ReadAll(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open ledger: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return events, fmt.Errorf("%w: malformed record after %d events", ErrChainIntegrity, len(events))
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("audit: scan ledger: %w", err)
	}
	return events, nil
}
