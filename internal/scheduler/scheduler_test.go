package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptomonitor/internal/config"
	"cryptomonitor/internal/models"
)

type fakeStore struct {
	mu             sync.Mutex
	assets         []*models.Asset
	quotes         []*models.Quote
	insertErr      error
	candleBatches  map[models.Timeframe][]*models.Candle
	quoteCutoff    time.Time
	candleCutoffs  map[models.Timeframe]time.Time
	deletedQuotes  int64
	deletedCandles int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assets: []*models.Asset{
			{Symbol: "BTC", Name: "Bitcoin"},
			{Symbol: "ETH", Name: "Ethereum"},
		},
		candleBatches: make(map[models.Timeframe][]*models.Candle),
		candleCutoffs: make(map[models.Timeframe]time.Time),
	}
}

func (s *fakeStore) GetAssets() ([]*models.Asset, error) { return s.assets, nil }

func (s *fakeStore) InsertQuote(q *models.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.quotes = append(s.quotes, q)
	return nil
}

func (s *fakeStore) UpsertCandleBatch(tf models.Timeframe, candles []*models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candleBatches[tf] = append(s.candleBatches[tf], candles...)
	return nil
}

func (s *fakeStore) DeleteQuotesBefore(cutoff time.Time) (int64, error) {
	s.quoteCutoff = cutoff
	return s.deletedQuotes, nil
}

func (s *fakeStore) DeleteCandlesBefore(tf models.Timeframe, cutoff time.Time) (int64, error) {
	s.candleCutoffs[tf] = cutoff
	return s.deletedCandles, nil
}

type fakeFetcher struct {
	quoteTime  time.Time
	tickErrFor string
	histCalls  int
}

func (f *fakeFetcher) LatestTick(_ context.Context, symbol, name string) (*models.Quote, error) {
	if symbol == f.tickErrFor {
		return nil, errors.New("upstream down")
	}
	return &models.Quote{
		Symbol:    symbol,
		Name:      name,
		Price:     decimal.NewFromInt(45000),
		Timestamp: f.quoteTime,
	}, nil
}

func (f *fakeFetcher) Historical(_ context.Context, symbol string, tf models.Timeframe) ([]*models.Candle, error) {
	f.histCalls++
	return []*models.Candle{
		{Symbol: symbol, BucketTime: f.quoteTime, Close: decimal.NewFromInt(45000)},
	}, nil
}

type fakeCache struct {
	mu          sync.Mutex
	quotes      []*models.Quote
	latestSet   int
	chartsSet   map[string]int
	setQuoteErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{chartsSet: make(map[string]int)}
}

func (c *fakeCache) SetQuote(_ context.Context, q *models.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setQuoteErr != nil {
		return c.setQuoteErr
	}
	c.quotes = append(c.quotes, q)
	return nil
}

func (c *fakeCache) SetLatestPrices(_ context.Context, quotes []*models.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latestSet++
	return nil
}

func (c *fakeCache) SetChartData(_ context.Context, symbol string, tf models.Timeframe, _ []*models.Candle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chartsSet[symbol+":"+string(tf)]++
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) PublishQuoteUpdated(_ context.Context, q *models.Quote) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, q.Symbol)
	return nil
}

func testScheduler(store *fakeStore, fetcher *fakeFetcher, cache *fakeCache, pub *fakePublisher) *Scheduler {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	cfg := config.SchedulerConfig{
		RealtimeInterval:  time.Hour,
		CollectInterval:   time.Hour,
		RetentionInterval: time.Hour,
		QuoteRetention:    30 * 24 * time.Hour,
		MinuteRetention:   7 * 24 * time.Hour,
	}
	s := New(cfg, store, fetcher, cache, pub, log)
	s.now = func() time.Time { return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestRealtimeStoresFreshQuotes(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{quoteTime: time.Date(2024, 1, 15, 11, 59, 30, 0, time.UTC)}
	cache := newFakeCache()
	pub := &fakePublisher{}

	s := testScheduler(store, fetcher, cache, pub)
	s.runRealtime(context.Background())

	require.Len(t, store.quotes, 2)
	assert.Len(t, cache.quotes, 2)
	assert.Equal(t, 1, cache.latestSet)
	assert.ElementsMatch(t, []string{"BTC", "ETH"}, pub.events)
}

func TestRealtimeDropsStaleQuotes(t *testing.T) {
	store := newFakeStore()
	// an hour behind the scheduler clock: quality score 0
	fetcher := &fakeFetcher{quoteTime: time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)}
	cache := newFakeCache()

	s := testScheduler(store, fetcher, cache, &fakePublisher{})
	s.runRealtime(context.Background())

	assert.Empty(t, store.quotes)
	assert.Empty(t, cache.quotes)
	assert.Zero(t, cache.latestSet)
}

func TestRealtimeContinuesPastFetchFailure(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{
		quoteTime:  time.Date(2024, 1, 15, 11, 59, 30, 0, time.UTC),
		tickErrFor: "BTC",
	}
	cache := newFakeCache()
	pub := &fakePublisher{}

	s := testScheduler(store, fetcher, cache, pub)
	s.runRealtime(context.Background())

	require.Len(t, store.quotes, 1)
	assert.Equal(t, "ETH", store.quotes[0].Symbol)
	assert.Equal(t, []string{"ETH"}, pub.events)
}

func TestRealtimeCacheFailureDoesNotBlockStorage(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{quoteTime: time.Date(2024, 1, 15, 11, 59, 30, 0, time.UTC)}
	cache := newFakeCache()
	cache.setQuoteErr = errors.New("redis down")

	s := testScheduler(store, fetcher, cache, &fakePublisher{})
	s.runRealtime(context.Background())

	assert.Len(t, store.quotes, 2)
}

func TestCollectCoversAllTimeframes(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{quoteTime: time.Date(2024, 1, 15, 11, 59, 0, 0, time.UTC)}
	cache := newFakeCache()

	s := testScheduler(store, fetcher, cache, &fakePublisher{})
	s.runCollect(context.Background())

	// 2 assets x 3 timeframes
	assert.Equal(t, 6, fetcher.histCalls)
	for _, tf := range models.Timeframes {
		assert.Len(t, store.candleBatches[tf], 2)
	}
	assert.Equal(t, 1, cache.chartsSet["BTC:hour"])
	assert.Equal(t, 1, cache.chartsSet["ETH:day"])
}

func TestRetentionUsesConfiguredWindows(t *testing.T) {
	store := newFakeStore()
	store.deletedQuotes = 12
	store.deletedCandles = 34
	fetcher := &fakeFetcher{}
	cache := newFakeCache()

	s := testScheduler(store, fetcher, cache, &fakePublisher{})
	s.runRetention(context.Background())

	now := s.now()
	assert.Equal(t, now.Add(-30*24*time.Hour), store.quoteCutoff)
	assert.Equal(t, now.Add(-7*24*time.Hour), store.candleCutoffs[models.TimeframeMinute])

	// hour and day candles are never trimmed
	_, ok := store.candleCutoffs[models.TimeframeHour]
	assert.False(t, ok)
	_, ok = store.candleCutoffs[models.TimeframeDay]
	assert.False(t, ok)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{quoteTime: time.Date(2024, 1, 15, 11, 59, 30, 0, time.UTC)}
	cache := newFakeCache()

	s := testScheduler(store, fetcher, cache, &fakePublisher{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// each job ran once at startup before any ticker fires
	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.quotes) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after context cancel")
	}
}
