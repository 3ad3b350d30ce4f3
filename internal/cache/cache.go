package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cryptomonitor/internal/config"
	"cryptomonitor/internal/models"
)

// Key layout:
//
//	crypto:price:<SYMBOL>        single quote, short TTL
//	crypto:latest_prices         full quote list, shortest TTL
//	crypto:chart:<SYMBOL>:<tf>   candle series, longer TTL
const (
	quotePrefix     = "crypto:price:"
	latestPricesKey = "crypto:latest_prices"
	chartPrefix     = "crypto:chart:"
	keyPattern      = "crypto:*"
)

// Cache wraps the Redis client for hot price reads
type Cache struct {
	client *redis.Client
	cfg    config.RedisConfig
}

// Stats describes the cache key population for the diagnostics endpoint
type Stats struct {
	Connected   bool   `json:"connected"`
	TotalKeys   int    `json:"total_keys"`
	PriceKeys   int    `json:"price_keys"`
	ChartKeys   int    `json:"chart_keys"`
	MemoryUsage string `json:"memory_usage"`
}

// New connects to Redis and verifies the connection
func New(cfg config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{client: client, cfg: cfg}, nil
}

// Ping reports cache reachability
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// QuoteKey builds the per-symbol quote key
func QuoteKey(symbol string) string {
	return quotePrefix + symbol
}

// ChartKey builds the per-symbol chart series key
func ChartKey(symbol string, tf models.Timeframe) string {
	return chartPrefix + symbol + ":" + string(tf)
}

// SetQuote caches a single quote with the per-symbol TTL
func (c *Cache) SetQuote(ctx context.Context, q *models.Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}
	if err := c.client.Set(ctx, QuoteKey(q.Symbol), data, c.cfg.QuoteTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache quote for %s: %w", q.Symbol, err)
	}
	return nil
}

// GetQuote returns the cached quote for a symbol, or redis.Nil when absent
func (c *Cache) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	data, err := c.client.Get(ctx, QuoteKey(symbol)).Bytes()
	if err != nil {
		return nil, err
	}
	var q models.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached quote: %w", err)
	}
	return &q, nil
}

// SetLatestPrices caches the full quote list
func (c *Cache) SetLatestPrices(ctx context.Context, quotes []*models.Quote) error {
	data, err := json.Marshal(quotes)
	if err != nil {
		return fmt.Errorf("failed to marshal quote list: %w", err)
	}
	if err := c.client.Set(ctx, latestPricesKey, data, c.cfg.LatestPricesTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache latest prices: %w", err)
	}
	return nil
}

// GetLatestPrices returns the cached quote list, or redis.Nil when absent.
// The raw JSON is returned so handlers can serve it without a decode round
// trip losing field shape.
func (c *Cache) GetLatestPrices(ctx context.Context) (json.RawMessage, error) {
	data, err := c.client.Get(ctx, latestPricesKey).Bytes()
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// SetChartData caches a candle series for a symbol and timeframe
func (c *Cache) SetChartData(ctx context.Context, symbol string, tf models.Timeframe, candles []*models.Candle) error {
	data, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("failed to marshal chart data: %w", err)
	}
	if err := c.client.Set(ctx, ChartKey(symbol, tf), data, c.cfg.ChartTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache chart data for %s/%s: %w", symbol, tf, err)
	}
	return nil
}

// GetChartData returns the cached candle series, or redis.Nil when absent
func (c *Cache) GetChartData(ctx context.Context, symbol string, tf models.Timeframe) ([]*models.Candle, error) {
	data, err := c.client.Get(ctx, ChartKey(symbol, tf)).Bytes()
	if err != nil {
		return nil, err
	}
	var candles []*models.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached chart data: %w", err)
	}
	return candles, nil
}

// InvalidateSymbol removes every cached key for one symbol: its quote,
// its chart series (discovered by SCAN), and the shared price list that
// embeds it.
func (c *Cache) InvalidateSymbol(ctx context.Context, symbol string) (int64, error) {
	keys, err := c.scanKeys(ctx, chartPrefix+symbol+":*")
	if err != nil {
		return 0, err
	}
	keys = append(keys, QuoteKey(symbol), latestPricesKey)

	deleted, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate cache for %s: %w", symbol, err)
	}
	return deleted, nil
}

// Clear removes every cached key, returning the number deleted
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	keys, err := c.scanKeys(ctx, keyPattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	return deleted, nil
}

// GetStats collects key counts and memory usage for diagnostics
func (c *Cache) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{MemoryUsage: "N/A"}

	if err := c.Ping(ctx); err != nil {
		return stats, nil
	}
	stats.Connected = true

	all, err := c.scanKeys(ctx, keyPattern)
	if err != nil {
		return nil, err
	}
	prices, err := c.scanKeys(ctx, quotePrefix+"*")
	if err != nil {
		return nil, err
	}
	charts, err := c.scanKeys(ctx, chartPrefix+"*")
	if err != nil {
		return nil, err
	}
	stats.TotalKeys = len(all)
	stats.PriceKeys = len(prices)
	stats.ChartKeys = len(charts)

	info, err := c.client.Info(ctx, "memory").Result()
	if err == nil {
		if v := parseInfoField(info, "used_memory_human"); v != "" {
			stats.MemoryUsage = v
		}
	}
	return stats, nil
}

func (c *Cache) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return keys, nil
}

func parseInfoField(info, field string) string {
	for _, line := range strings.Split(info, "\r\n") {
		if v, ok := strings.CutPrefix(line, field+":"); ok {
			return v
		}
	}
	return ""
}
