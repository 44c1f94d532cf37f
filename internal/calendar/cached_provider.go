package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// cacheTTL bounds how long a fetched calendar window is served from Redis.
const cacheTTL = 6 * time.Hour

// CachedProvider is a Redis read-through cache around another Provider. When
// Redis is unavailable the inner provider is queried directly, so a cache
// outage never blocks gating.
type CachedProvider struct {
	inner  Provider
	client *redis.Client
	logger zerolog.Logger
}

// NewCachedProvider wraps a provider with a Redis cache.
func NewCachedProvider(inner Provider, client *redis.Client, logger zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		inner:  inner,
		client: client,
		logger: logger.With().Str("component", "CalendarCache").Logger(),
	}
}

// GetEvents serves a cached window when present, otherwise fetches from the
// inner provider and stores the result.
func (p *CachedProvider) GetEvents(ctx context.Context, start, end time.Time, currencies []string) ([]EconomicEvent, error) {
	key := cacheKey(start, end, currencies)

	if raw, err := p.client.Get(ctx, key).Result(); err == nil {
		var events []EconomicEvent
		if jsonErr := json.Unmarshal([]byte(raw), &events); jsonErr == nil {
			return events, nil
		}
		p.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	} else if err != redis.Nil {
		p.logger.Warn().Err(err).Msg("redis unavailable, falling back to provider")
	}

	events, err := p.inner.GetEvents(ctx, start, end, currencies)
	if err != nil {
		return nil, err
	}

	if raw, jsonErr := json.Marshal(events); jsonErr == nil {
		if err := p.client.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
			p.logger.Warn().Err(err).Msg("failed to cache calendar window")
		}
	}
	return events, nil
}

func cacheKey(start, end time.Time, currencies []string) string {
	key := fmt.Sprintf("calendar:events:%d:%d", start.Unix(), end.Unix())
	for _, c := range currencies {
		key += ":" + c
	}
	return key
}
