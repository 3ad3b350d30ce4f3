// Package scheduler runs the background jobs: realtime price scraping,
// historical candle collection, and retention cleanup.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"cryptomonitor/internal/config"
	"cryptomonitor/internal/models"
	"cryptomonitor/internal/quality"
)

// Store is the persistence surface the jobs need.
type Store interface {
	GetAssets() ([]*models.Asset, error)
	InsertQuote(q *models.Quote) error
	UpsertCandleBatch(tf models.Timeframe, candles []*models.Candle) error
	DeleteQuotesBefore(cutoff time.Time) (int64, error)
	DeleteCandlesBefore(tf models.Timeframe, cutoff time.Time) (int64, error)
}

// Fetcher pulls prices from the upstream index API.
type Fetcher interface {
	LatestTick(ctx context.Context, symbol, name string) (*models.Quote, error)
	Historical(ctx context.Context, symbol string, tf models.Timeframe) ([]*models.Candle, error)
}

// QuoteCache is the write-through side of the hot-read cache.
type QuoteCache interface {
	SetQuote(ctx context.Context, q *models.Quote) error
	SetLatestPrices(ctx context.Context, quotes []*models.Quote) error
	SetChartData(ctx context.Context, symbol string, tf models.Timeframe, candles []*models.Candle) error
}

// Publisher emits quote events after realtime ticks.
type Publisher interface {
	PublishQuoteUpdated(ctx context.Context, q *models.Quote) error
}

// Scheduler owns the job tickers
type Scheduler struct {
	cfg      config.SchedulerConfig
	store    Store
	fetcher  Fetcher
	cache    QuoteCache
	producer Publisher
	log      *logrus.Logger

	now func() time.Time
}

// New builds a scheduler. producer may be nil when event publishing is
// disabled.
func New(cfg config.SchedulerConfig, store Store, fetcher Fetcher, cache QuoteCache, producer Publisher, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		fetcher:  fetcher,
		cache:    cache,
		producer: producer,
		log:      log,
		now:      time.Now,
	}
}

// Run executes each job once immediately, then on its configured cadence
// until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	jobs := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context)
	}{
		{"realtime", s.cfg.RealtimeInterval, s.runRealtime},
		{"collect", s.cfg.CollectInterval, s.runCollect},
		{"retention", s.cfg.RetentionInterval, s.runRetention},
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(name string, interval time.Duration, fn func(context.Context)) {
			defer wg.Done()
			s.log.WithFields(logrus.Fields{"job": name, "interval": interval}).Info("starting scheduler job")

			fn(ctx)

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					fn(ctx)
				}
			}
		}(job.name, job.interval, job.fn)
	}
	wg.Wait()
}

// runRealtime fetches the current tick for every tracked asset, gates it
// on data quality, stores it, refreshes the hot cache, and publishes an
// event.
func (s *Scheduler) runRealtime(ctx context.Context) {
	assets, err := s.store.GetAssets()
	if err != nil {
		s.log.WithError(err).Error("realtime: failed to list assets")
		return
	}

	var stored []*models.Quote
	for _, asset := range assets {
		quote, err := s.fetcher.LatestTick(ctx, asset.Symbol, asset.Name)
		if err != nil {
			s.log.WithError(err).WithField("symbol", asset.Symbol).Error("realtime: fetch failed")
			continue
		}

		score := quality.Score(quote.Timestamp, models.TimeframeMinute, s.now())
		if score < quality.MinScore {
			s.log.WithFields(logrus.Fields{
				"symbol": asset.Symbol,
				"score":  score,
			}).Warn("realtime: dropping stale quote")
			continue
		}

		if err := s.store.InsertQuote(quote); err != nil {
			s.log.WithError(err).WithField("symbol", asset.Symbol).Error("realtime: store failed")
			continue
		}
		stored = append(stored, quote)

		if err := s.cache.SetQuote(ctx, quote); err != nil {
			s.log.WithError(err).WithField("symbol", asset.Symbol).Warn("realtime: cache write failed")
		}
		if s.producer != nil {
			if err := s.producer.PublishQuoteUpdated(ctx, quote); err != nil {
				s.log.WithError(err).WithField("symbol", asset.Symbol).Warn("realtime: event publish failed")
			}
		}
	}

	if len(stored) > 0 {
		if err := s.cache.SetLatestPrices(ctx, stored); err != nil {
			s.log.WithError(err).Warn("realtime: latest prices cache write failed")
		}
		s.log.WithField("count", len(stored)).Debug("realtime: stored quotes")
	}
}

// runCollect fetches historical candles for every asset and timeframe,
// upserts them, and primes the chart cache.
func (s *Scheduler) runCollect(ctx context.Context) {
	assets, err := s.store.GetAssets()
	if err != nil {
		s.log.WithError(err).Error("collect: failed to list assets")
		return
	}

	for _, asset := range assets {
		for _, tf := range models.Timeframes {
			candles, err := s.fetcher.Historical(ctx, asset.Symbol, tf)
			if err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{
					"symbol": asset.Symbol, "timeframe": tf,
				}).Error("collect: fetch failed")
				continue
			}
			if len(candles) == 0 {
				continue
			}

			if err := s.store.UpsertCandleBatch(tf, candles); err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{
					"symbol": asset.Symbol, "timeframe": tf,
				}).Error("collect: store failed")
				continue
			}

			if err := s.cache.SetChartData(ctx, asset.Symbol, tf, candles); err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{
					"symbol": asset.Symbol, "timeframe": tf,
				}).Warn("collect: cache write failed")
			}

			s.log.WithFields(logrus.Fields{
				"symbol": asset.Symbol, "timeframe": tf, "count": len(candles),
			}).Debug("collect: stored candles")
		}
	}
}

// runRetention trims quotes and minute candles past their retention
// windows. Hour and day candles are kept indefinitely.
func (s *Scheduler) runRetention(ctx context.Context) {
	now := s.now()

	deleted, err := s.store.DeleteQuotesBefore(now.Add(-s.cfg.QuoteRetention))
	if err != nil {
		s.log.WithError(err).Error("retention: quote cleanup failed")
	} else if deleted > 0 {
		s.log.WithField("deleted", deleted).Info("retention: trimmed old quotes")
	}

	deleted, err = s.store.DeleteCandlesBefore(models.TimeframeMinute, now.Add(-s.cfg.MinuteRetention))
	if err != nil {
		s.log.WithError(err).Error("retention: minute candle cleanup failed")
	} else if deleted > 0 {
		s.log.WithField("deleted", deleted).Info("retention: trimmed old minute candles")
	}
}
