package market

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// HistoryStore is a PostgreSQL candle archive. Backtests load their bar
// sequences from it when a database is configured; the live agent can archive
// fetched candles for later replay.
type HistoryStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// HistoryConfig holds PostgreSQL connection settings.
type HistoryConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// NewHistoryStore connects to PostgreSQL and ensures the candle table exists.
func NewHistoryStore(ctx context.Context, cfg HistoryConfig, logger zerolog.Logger) (*HistoryStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("market: parse database config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MaxConnLifetime = time.Hour

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("market: create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("market: ping database: %w", err)
	}

	store := &HistoryStore{
		pool:   pool,
		logger: logger.With().Str("component", "HistoryStore").Logger(),
	}
	if err := store.migrate(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *HistoryStore) migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS candles (
			instrument  TEXT             NOT NULL,
			granularity TEXT             NOT NULL,
			ts          TIMESTAMPTZ      NOT NULL,
			open        DOUBLE PRECISION NOT NULL,
			high        DOUBLE PRECISION NOT NULL,
			low         DOUBLE PRECISION NOT NULL,
			close       DOUBLE PRECISION NOT NULL,
			volume      DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (instrument, granularity, ts)
		)`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("market: create candles table: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *HistoryStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SaveCandles upserts a batch of candles for an instrument/granularity.
func (s *HistoryStore) SaveCandles(ctx context.Context, instrument, granularity string, candles []Candle) error {
	const stmt = `
		INSERT INTO candles (instrument, granularity, ts, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (instrument, granularity, ts) DO UPDATE
		SET open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
		    close = EXCLUDED.close, volume = EXCLUDED.volume`

	for _, c := range candles {
		if _, err := s.pool.Exec(ctx, stmt,
			instrument, granularity, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("market: save candle %s: %w", c.Timestamp.Format(time.RFC3339), err)
		}
	}
	s.logger.Debug().Int("count", len(candles)).Str("instrument", instrument).Msg("candles archived")
	return nil
}

// LoadRange returns the candles for an instrument/granularity inside
// [start, end], oldest first.
func (s *HistoryStore) LoadRange(ctx context.Context, instrument, granularity string, start, end time.Time) ([]Candle, error) {
	const query = `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE instrument = $1 AND granularity = $2 AND ts >= $3 AND ts <= $4
		ORDER BY ts ASC`

	rows, err := s.pool.Query(ctx, query, instrument, granularity, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: load range: %v", ErrDataUnavailable, err)
	}
	defer rows.Close()

	var candles []Candle
	for rows.Next() {
		var c Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("market: scan candle: %w", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load range: %v", ErrDataUnavailable, err)
	}
	return candles, nil
}
