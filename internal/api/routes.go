package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// SetupRoutes configures all page, API, and static asset routes
func SetupRoutes(handler *Handler, rl *RateLimiter, staticDir string, log *logrus.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(log))
	r.NotFoundHandler = http.HandlerFunc(handler.NotFound)

	// Pages
	r.HandleFunc("/", handler.Page("index.html")).Methods("GET")
	r.HandleFunc("/bitcoin", handler.Page("bitcoin.html")).Methods("GET")
	r.HandleFunc("/ethereum", handler.Page("ethereum.html")).Methods("GET")
	r.HandleFunc("/kline", handler.Page("kline.html")).Methods("GET")

	// Static assets
	r.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))),
	).Methods("GET")

	// API routes, rate limited per client
	api := r.PathPrefix("/api").Subrouter()
	api.Use(rl.Middleware)
	api.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	api.HandleFunc("/latest_prices", handler.LatestPrices).Methods("GET")
	api.HandleFunc("/price_history", handler.PriceHistory).Methods("GET")
	api.HandleFunc("/chart_data", handler.ChartData).Methods("GET")
	api.HandleFunc("/btc_data", handler.AssetData("BTC")).Methods("GET")
	api.HandleFunc("/eth_data", handler.AssetData("ETH")).Methods("GET")
	api.HandleFunc("/kline_data", handler.KlineData).Methods("GET")
	api.HandleFunc("/system/status", handler.SystemStatus).Methods("GET")
	api.HandleFunc("/cache/stats", handler.CacheStats).Methods("GET")
	api.HandleFunc("/cache/clear", handler.CacheClear).Methods("POST")

	return r
}
