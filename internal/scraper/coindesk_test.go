package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptomonitor/internal/config"
	"cryptomonitor/internal/models"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	c := New(config.ScraperConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		RequestTimeout: 2 * time.Second,
		RequestsPerSec: 1000,
	}, log)
	c.retryDelay = time.Millisecond
	c.rateRetryDelay = time.Millisecond
	return c
}

func TestLatestTick(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/tick", r.URL.Path)
		assert.Equal(t, "BTC-USD", r.URL.Query().Get("instruments"))
		assert.Equal(t, "cadli", r.URL.Query().Get("market"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Write([]byte(`{"Data":{"BTC-USD":{
			"VALUE": 45123.45,
			"CURRENT_DAY_CHANGE_PERCENTAGE": 2.31,
			"VALUE_LAST_UPDATE_TS": 1705320000
		}}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	q, err := c.LatestTick(context.Background(), "BTC", "Bitcoin")
	require.NoError(t, err)

	assert.Equal(t, "BTC", q.Symbol)
	assert.Equal(t, "Bitcoin", q.Name)
	assert.True(t, decimal.NewFromFloat(45123.45).Equal(q.Price))
	assert.True(t, decimal.NewFromFloat(2.31).Equal(q.Change24h))
	assert.Equal(t, time.Unix(1705320000, 0).UTC(), q.Timestamp)
}

func TestLatestTickMissingInstrument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Data":{}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.LatestTick(context.Background(), "BTC", "Bitcoin")
	assert.ErrorContains(t, err, "no tick data")
}

func TestHistorical(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/historical/hours", r.URL.Path)
		assert.Equal(t, "ETH-USD", r.URL.Query().Get("instrument"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))

		w.Write([]byte(`{"Data":[
			{"INSTRUMENT":"ETH-USD","TIMESTAMP":1705320000,"OPEN":2500,"HIGH":2550,"LOW":2480,"CLOSE":2520,"VOLUME":1000,"QUOTE_VOLUME":2510000},
			{"INSTRUMENT":"ETH-USD","TIMESTAMP":1705323600,"OPEN":2520,"HIGH":2560,"LOW":2500,"CLOSE":2540,"VOLUME":900,"QUOTE_VOLUME":2290000},
			{"INSTRUMENT":"OTHER-USD","TIMESTAMP":1705323600,"OPEN":1,"HIGH":1,"LOW":1,"CLOSE":1,"VOLUME":1,"QUOTE_VOLUME":1}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	candles, err := c.Historical(context.Background(), "ETH", models.TimeframeHour)
	require.NoError(t, err)

	// Foreign instruments in the response are skipped
	require.Len(t, candles, 2)
	assert.Equal(t, "ETH", candles[0].Symbol)
	assert.True(t, decimal.NewFromInt(2520).Equal(candles[0].Close))
	assert.Equal(t, time.Unix(1705323600, 0).UTC(), candles[1].BucketTime)
}

func TestHistoricalUnsupportedTimeframe(t *testing.T) {
	c := newTestClient(t, "http://unused.invalid")
	_, err := c.Historical(context.Background(), "BTC", models.Timeframe("week"))
	assert.ErrorContains(t, err, "unsupported timeframe")
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"Data":{"BTC-USD":{"VALUE":45000,"CURRENT_DAY_CHANGE_PERCENTAGE":0,"VALUE_LAST_UPDATE_TS":1705320000}}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	q, err := c.LatestTick(context.Background(), "BTC", "Bitcoin")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(45000).Equal(q.Price))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.LatestTick(context.Background(), "BTC", "Bitcoin")
	require.Error(t, err)
	assert.ErrorContains(t, err, "giving up")
	assert.Equal(t, int32(maxRetries), calls.Load())
}

func TestRateLimitRetryLadder(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"Data":{"BTC-USD":{"VALUE":45000,"CURRENT_DAY_CHANGE_PERCENTAGE":0,"VALUE_LAST_UPDATE_TS":1705320000}}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.LatestTick(context.Background(), "BTC", "Bitcoin")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRateLimitExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.LatestTick(context.Background(), "BTC", "Bitcoin")
	assert.ErrorContains(t, err, "rate limited")
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.retryDelay = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.LatestTick(ctx, "BTC", "Bitcoin")
	require.Error(t, err)
}
