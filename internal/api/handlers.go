package api

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"cryptomonitor/internal/cache"
	"cryptomonitor/internal/models"
)

// Store is the persistence surface handlers read from.
type Store interface {
	Ping(ctx context.Context) error
	LatestQuotes() ([]*models.Quote, error)
	CandlesBySymbol(symbol string, tf models.Timeframe, limit int) ([]*models.Candle, error)
	ClosePriceAt(symbol string, t time.Time) (decimal.Decimal, error)
}

// CacheStore is the hot-read cache surface handlers use.
type CacheStore interface {
	Ping(ctx context.Context) error
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	GetLatestPrices(ctx context.Context) (json.RawMessage, error)
	SetLatestPrices(ctx context.Context, quotes []*models.Quote) error
	InvalidateSymbol(ctx context.Context, symbol string) (int64, error)
	GetChartData(ctx context.Context, symbol string, tf models.Timeframe) ([]*models.Candle, error)
	SetChartData(ctx context.Context, symbol string, tf models.Timeframe, candles []*models.Candle) error
	GetStats(ctx context.Context) (*cache.Stats, error)
	Clear(ctx context.Context) (int64, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store     Store
	cache     CacheStore
	log       *logrus.Logger
	templates *template.Template

	now func() time.Time
}

// NewHandler creates a new Handler, parsing page templates from templateDir
func NewHandler(store Store, cacheStore CacheStore, log *logrus.Logger, templateDir string) (*Handler, error) {
	tmpl, err := template.ParseGlob(filepath.Join(templateDir, "*.html"))
	if err != nil {
		return nil, err
	}
	return &Handler{
		store:     store,
		cache:     cacheStore,
		log:       log,
		templates: tmpl,
		now:       time.Now,
	}, nil
}

// HealthCheck handles GET /api/health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// LatestPrices handles GET /api/latest_prices. The cached list is served
// verbatim; on a miss the per-symbol quote keys are tried next, and only
// then the database, whose copy is re-primed into the cache with the 24h
// change recomputed from our own hourly history.
func (h *Handler) LatestPrices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if raw, err := h.cache.GetLatestPrices(ctx); err == nil {
		respondJSON(w, http.StatusOK, struct {
			Success bool            `json:"success"`
			Data    json.RawMessage `json:"data"`
		}{true, raw})
		return
	}

	if quotes, ok := h.quotesFromSymbolKeys(ctx); ok {
		respondSuccess(w, quotes)
		return
	}

	quotes, err := h.store.LatestQuotes()
	if err != nil {
		h.log.WithError(err).Error("failed to load latest prices")
		respondError(w, http.StatusInternalServerError, "failed to load latest prices")
		return
	}

	for _, q := range quotes {
		h.recompute24hChange(q)
	}

	if len(quotes) > 0 {
		if err := h.cache.SetLatestPrices(ctx, quotes); err != nil {
			h.log.WithError(err).Warn("failed to re-prime latest prices cache")
		}
	}

	if quotes == nil {
		quotes = []*models.Quote{}
	}
	respondSuccess(w, quotes)
}

// quotesFromSymbolKeys assembles the price list from the per-symbol
// quote keys the realtime job writes. All tracked symbols must be
// present, otherwise the caller falls through to the database.
func (h *Handler) quotesFromSymbolKeys(ctx context.Context) ([]*models.Quote, bool) {
	quotes := make([]*models.Quote, 0, len(models.DefaultAssets))
	for _, asset := range models.DefaultAssets {
		q, err := h.cache.GetQuote(ctx, asset.Symbol)
		if err != nil {
			return nil, false
		}
		quotes = append(quotes, q)
	}
	return quotes, true
}

// recompute24hChange replaces the upstream change figure with one derived
// from our own hourly closes when enough history exists.
func (h *Handler) recompute24hChange(q *models.Quote) {
	dayAgo, err := h.store.ClosePriceAt(q.Symbol, h.now().Add(-24*time.Hour))
	if err != nil || dayAgo.IsZero() {
		return
	}
	q.Change24h = q.Price.Sub(dayAgo).Div(dayAgo).Mul(decimal.NewFromInt(100))
}

// ChartData handles GET /api/chart_data?symbol&timeframe&limit
func (h *Handler) ChartData(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		respondSuccess(w, []*models.Candle{})
		return
	}

	tf, limit, ok := h.chartParams(w, r)
	if !ok {
		return
	}

	candles, err := h.chartSeries(r.Context(), symbol, tf, limit)
	if err != nil {
		h.log.WithError(err).WithField("symbol", symbol).Error("failed to load chart data")
		respondError(w, http.StatusInternalServerError, "failed to load chart data")
		return
	}
	if candles == nil {
		candles = []*models.Candle{}
	}
	respondSuccess(w, candles)
}

// AssetData handles GET /api/btc_data and /api/eth_data, returning the
// three-curve payload the detail pages chart.
func (h *Handler) AssetData(symbol string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tf, limit, ok := h.chartParams(w, r)
		if !ok {
			return
		}

		candles, err := h.chartSeries(r.Context(), symbol, tf, limit)
		if err != nil {
			h.log.WithError(err).WithField("symbol", symbol).Error("failed to load asset data")
			respondError(w, http.StatusInternalServerError, "failed to load asset data")
			return
		}
		respondSuccess(w, buildChartCurves(candles))
	}
}

// PriceHistory handles GET /api/price_history?crypto&timeframe
func (h *Handler) PriceHistory(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("crypto")
	if symbol == "" {
		symbol = "BTC"
	}

	tf, limit := historyWindow(r.URL.Query().Get("timeframe"))
	candles, err := h.store.CandlesBySymbol(symbol, tf, limit)
	if err != nil {
		h.log.WithError(err).WithField("symbol", symbol).Error("failed to load price history")
		respondError(w, http.StatusInternalServerError, "failed to load price history")
		return
	}
	respondSuccess(w, buildPriceHistory(candles))
}

// KlineData handles GET /api/kline_data?symbol&timeframe&limit
func (h *Handler) KlineData(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = "BTC"
	}

	tf, limit, ok := h.chartParams(w, r)
	if !ok {
		return
	}

	candles, err := h.store.CandlesBySymbol(symbol, tf, limit)
	if err != nil {
		h.log.WithError(err).WithField("symbol", symbol).Error("failed to load kline data")
		respondError(w, http.StatusInternalServerError, "failed to load kline data")
		return
	}
	respondSuccess(w, buildKlinePayload(candles))
}

// SystemStatus handles GET /api/system/status
func (h *Handler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := models.SystemStatus{
		Database:  models.StateFor(h.store.Ping(ctx)),
		Redis:     models.StateFor(h.cache.Ping(ctx)),
		Timestamp: h.now().UTC(),
	}
	respondSuccess(w, status)
}

// CacheStats handles GET /api/cache/stats
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.GetStats(r.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to collect cache stats")
		respondError(w, http.StatusInternalServerError, "failed to collect cache stats")
		return
	}
	respondSuccess(w, stats)
}

// CacheClear handles POST /api/cache/clear. An optional JSON body naming
// a symbol restricts the clear to that symbol's keys.
func (h *Handler) CacheClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var (
		deleted int64
		err     error
	)
	if req.Symbol != "" {
		deleted, err = h.cache.InvalidateSymbol(r.Context(), req.Symbol)
	} else {
		deleted, err = h.cache.Clear(r.Context())
	}
	if err != nil {
		h.log.WithError(err).Error("failed to clear cache")
		respondError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	respondSuccess(w, map[string]int64{"deleted": deleted})
}

// Page renders one of the HTML pages
func (h *Handler) Page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := h.templates.ExecuteTemplate(w, name, nil); err != nil {
			h.log.WithError(err).WithField("template", name).Error("failed to render page")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

// NotFound is the JSON 404 handler
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusNotFound, map[string]string{
		"error":   "Not Found",
		"message": "The requested resource was not found",
	})
}

// chartSeries returns a candle series cache-first, falling back to the
// database and re-priming the cache. A cached series shorter than the
// requested limit counts as a miss so clients are not silently
// short-changed until the TTL expires.
func (h *Handler) chartSeries(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]*models.Candle, error) {
	if cached, err := h.cache.GetChartData(ctx, symbol, tf); err == nil && len(cached) >= limit {
		return cached[len(cached)-limit:], nil
	}

	candles, err := h.store.CandlesBySymbol(symbol, tf, limit)
	if err != nil {
		return nil, err
	}
	if len(candles) > 0 {
		if err := h.cache.SetChartData(ctx, symbol, tf, candles); err != nil {
			h.log.WithError(err).Warn("failed to re-prime chart cache")
		}
	}
	return candles, nil
}

// chartParams parses the shared timeframe and limit query parameters,
// writing the error response itself on invalid input.
func (h *Handler) chartParams(w http.ResponseWriter, r *http.Request) (models.Timeframe, int, bool) {
	tf := models.TimeframeHour
	if raw := r.URL.Query().Get("timeframe"); raw != "" {
		parsed, err := models.ParseTimeframe(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return "", 0, false
		}
		tf = parsed
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := parsePositiveInt(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return "", 0, false
		}
		limit = n
	}
	return tf, limit, true
}

// historyWindow maps the price-history timeframe names onto a candle
// table and row count.
func historyWindow(tf string) (models.Timeframe, int) {
	switch tf {
	case "7d":
		return models.TimeframeDay, 7
	case "30d":
		return models.TimeframeDay, 30
	default: // 24h
		return models.TimeframeHour, 24
	}
}
