package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	oandaPracticeURL = "https://api-fxpractice.oanda.com"
	oandaLiveURL     = "https://api-fxtrade.oanda.com"

	defaultSpread = 0.00015 // 1.5 pips fallback when pricing is unavailable
)

// OandaConfig holds OANDA REST API settings.
type OandaConfig struct {
	Environment string `json:"environment"` // "practice" or "live"
	APIToken    string `json:"-"`
	AccountID   string `json:"account_id"`
	Timeout     int    `json:"timeout_seconds"`
}

// OandaProvider fetches candles and pricing from the OANDA v20 REST API. All
// calls carry explicit timeouts so a stalled upstream fails the tick instead
// of blocking it.
type OandaProvider struct {
	cfg     OandaConfig
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewOandaProvider builds an OANDA-backed provider.
func NewOandaProvider(cfg OandaConfig, logger zerolog.Logger) (*OandaProvider, error) {
	if cfg.APIToken == "" || cfg.AccountID == "" {
		return nil, fmt.Errorf("market: oanda token or account id missing")
	}
	base := oandaPracticeURL
	if cfg.Environment == "live" {
		base = oandaLiveURL
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OandaProvider{
		cfg:     cfg,
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "OandaProvider").Logger(),
	}, nil
}

// CurrentTime returns wall-clock UTC.
func (p *OandaProvider) CurrentTime() time.Time { return time.Now().UTC() }

type oandaCandleResponse struct {
	Candles []struct {
		Complete bool   `json:"complete"`
		Time     string `json:"time"`
		Volume   int    `json:"volume"`
		Mid      struct {
			O string `json:"o"`
			H string `json:"h"`
			L string `json:"l"`
			C string `json:"c"`
		} `json:"mid"`
	} `json:"candles"`
}

// FetchCandles returns the most recent complete candles for the instrument.
func (p *OandaProvider) FetchCandles(ctx context.Context, instrument, granularity string, lookback int) ([]Candle, error) {
	symbol := strings.ReplaceAll(instrument, "/", "_")
	endpoint := fmt.Sprintf("%s/v3/instruments/%s/candles", p.baseURL, symbol)
	params := url.Values{
		"count":       {strconv.Itoa(lookback)},
		"granularity": {strings.ToUpper(granularity)},
		"price":       {"M"},
	}

	var resp oandaCandleResponse
	if err := p.get(ctx, endpoint+"?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("%w: candles: %v", ErrDataUnavailable, err)
	}

	candles := make([]Candle, 0, len(resp.Candles))
	for _, c := range resp.Candles {
		if !c.Complete {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, c.Time)
		if err != nil {
			continue
		}
		candles = append(candles, Candle{
			Timestamp: ts.UTC(),
			Open:      parsePrice(c.Mid.O),
			High:      parsePrice(c.Mid.H),
			Low:       parsePrice(c.Mid.L),
			Close:     parsePrice(c.Mid.C),
			Volume:    float64(c.Volume),
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no complete candles returned", ErrDataUnavailable)
	}
	return candles, nil
}

type oandaPricingResponse struct {
	Prices []struct {
		Bids []struct {
			Price string `json:"price"`
		} `json:"bids"`
		Asks []struct {
			Price string `json:"price"`
		} `json:"asks"`
	} `json:"prices"`
}

// FetchSpread returns the current ask-bid spread, falling back to a fixed
// default when pricing cannot be fetched.
func (p *OandaProvider) FetchSpread(ctx context.Context, instrument string) (float64, error) {
	symbol := strings.ReplaceAll(instrument, "/", "_")
	endpoint := fmt.Sprintf("%s/v3/accounts/%s/pricing?instruments=%s", p.baseURL, p.cfg.AccountID, symbol)

	var resp oandaPricingResponse
	if err := p.get(ctx, endpoint, &resp); err != nil {
		p.logger.Warn().Err(err).Msg("spread fetch failed, using default")
		return defaultSpread, nil
	}
	if len(resp.Prices) == 0 || len(resp.Prices[0].Bids) == 0 || len(resp.Prices[0].Asks) == 0 {
		return defaultSpread, nil
	}

	bid := parsePrice(resp.Prices[0].Bids[0].Price)
	ask := parsePrice(resp.Prices[0].Asks[0].Price)
	if ask <= bid {
		return defaultSpread, nil
	}
	return ask - bid, nil
}

func (p *OandaProvider) get(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
