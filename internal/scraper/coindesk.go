package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"cryptomonitor/internal/config"
	"cryptomonitor/internal/models"
)

const (
	maxRetries     = 3
	retryDelay     = 5 * time.Second
	rateRetryMax   = 3
	rateRetryDelay = 2 * time.Second

	market          = "cadli"
	historicalLimit = "100"
)

var historicalPaths = map[models.Timeframe]string{
	models.TimeframeMinute: "/historical/minutes",
	models.TimeframeHour:   "/historical/hours",
	models.TimeframeDay:    "/historical/days",
}

// Client fetches index prices from the CoinDesk data API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Logger

	// overridable in tests to avoid real backoff sleeps
	retryDelay     time.Duration
	rateRetryDelay time.Duration
}

// New builds a client from configuration
func New(cfg config.ScraperConfig, log *logrus.Logger) *Client {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		httpClient:     &http.Client{Timeout: cfg.RequestTimeout},
		limiter:        rate.NewLimiter(rate.Limit(rps), 1),
		log:            log,
		retryDelay:     retryDelay,
		rateRetryDelay: rateRetryDelay,
	}
}

type tickPayload struct {
	Data map[string]struct {
		Value               float64 `json:"VALUE"`
		CurrentDayChangePct float64 `json:"CURRENT_DAY_CHANGE_PERCENTAGE"`
		ValueLastUpdateTS   int64   `json:"VALUE_LAST_UPDATE_TS"`
	} `json:"Data"`
}

type historicalPayload struct {
	Data []struct {
		Instrument  string  `json:"INSTRUMENT"`
		Timestamp   int64   `json:"TIMESTAMP"`
		Open        float64 `json:"OPEN"`
		High        float64 `json:"HIGH"`
		Low         float64 `json:"LOW"`
		Close       float64 `json:"CLOSE"`
		Volume      float64 `json:"VOLUME"`
		QuoteVolume float64 `json:"QUOTE_VOLUME"`
	} `json:"Data"`
}

// LatestTick fetches the current price for one symbol
func (c *Client) LatestTick(ctx context.Context, symbol, name string) (*models.Quote, error) {
	instrument := symbol + "-USD"
	params := url.Values{
		"market":        {market},
		"instruments":   {instrument},
		"apply_mapping": {"true"},
	}

	body, err := c.getWithRetry(ctx, "/latest/tick", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest tick for %s: %w", symbol, err)
	}

	var payload tickPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unexpected tick response for %s: %w", symbol, err)
	}

	tick, ok := payload.Data[instrument]
	if !ok {
		return nil, fmt.Errorf("no tick data for %s in response", instrument)
	}

	return &models.Quote{
		Name:      name,
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(tick.Value),
		Change24h: decimal.NewFromFloat(tick.CurrentDayChangePct),
		Timestamp: time.Unix(tick.ValueLastUpdateTS, 0).UTC(),
	}, nil
}

// Historical fetches an OHLCV series for one symbol and timeframe
func (c *Client) Historical(ctx context.Context, symbol string, tf models.Timeframe) ([]*models.Candle, error) {
	path, ok := historicalPaths[tf]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe: %q", tf)
	}

	instrument := symbol + "-USD"
	params := url.Values{
		"market":          {market},
		"instrument":      {instrument},
		"limit":           {historicalLimit},
		"aggregate":       {"1"},
		"fill":            {"true"},
		"apply_mapping":   {"true"},
		"response_format": {"JSON"},
	}

	body, err := c.getWithRetry(ctx, path, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s history for %s: %w", tf, symbol, err)
	}

	var payload historicalPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unexpected historical response for %s: %w", symbol, err)
	}

	var candles []*models.Candle
	for _, entry := range payload.Data {
		if entry.Instrument != instrument {
			continue
		}
		candles = append(candles, &models.Candle{
			Symbol:      symbol,
			BucketTime:  time.Unix(entry.Timestamp, 0).UTC(),
			Open:        decimal.NewFromFloat(entry.Open),
			High:        decimal.NewFromFloat(entry.High),
			Low:         decimal.NewFromFloat(entry.Low),
			Close:       decimal.NewFromFloat(entry.Close),
			Volume:      decimal.NewFromFloat(entry.Volume),
			QuoteVolume: decimal.NewFromFloat(entry.QuoteVolume),
		})
	}
	return candles, nil
}

// getWithRetry performs a GET with exponential backoff. Rate-limit responses
// (429) get their own shorter retry ladder before counting as a failure.
func (c *Client) getWithRetry(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var lastErr error
	rateRetries := 0

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, status, err := c.get(ctx, path, params)
		if err == nil && status == http.StatusOK {
			return body, nil
		}

		if status == http.StatusTooManyRequests {
			if rateRetries >= rateRetryMax {
				return nil, fmt.Errorf("rate limited after %d retries", rateRetryMax)
			}
			wait := c.rateRetryDelay * (1 << rateRetries)
			rateRetries++
			attempt-- // 429 retries do not consume regular attempts
			c.log.Warnf("rate limited on %s, waiting %s before retry", path, wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("unexpected status %d", status)
		}

		if attempt < maxRetries-1 {
			wait := c.retryDelay * (1 << attempt)
			c.log.Errorf("request to %s failed: %v, retrying in %s", path, lastErr, wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
