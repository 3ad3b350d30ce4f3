package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Scraper   ScraperConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	TemplateDir  string
	StaticDir    string
	EnableJobs   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds cache configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// TTLs for the hot-read keys
	QuoteTTL        time.Duration
	LatestPricesTTL time.Duration
	ChartTTL        time.Duration
}

// KafkaConfig holds event publication configuration. Empty Brokers disables
// publishing entirely.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// ScraperConfig holds the upstream price API configuration
type ScraperConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	RequestsPerSec float64
}

// SchedulerConfig holds background job cadences and retention windows
type SchedulerConfig struct {
	RealtimeInterval  time.Duration
	CollectInterval   time.Duration
	RetentionInterval time.Duration
	QuoteRetention    time.Duration
	MinuteRetention   time.Duration
}

// RateLimitConfig holds per-client API limiting parameters
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
	File  string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is merged in first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8000"),
			TemplateDir:  getEnv("TEMPLATE_DIR", "web/templates"),
			StaticDir:    getEnv("STATIC_DIR", "web/static"),
			EnableJobs:   getEnvBool("ENABLE_SCHEDULER", true),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "crypto_user"),
			Password: getEnv("DB_PASSWORD", "crypto_pass"),
			DBName:   getEnv("DB_NAME", "crypto_monitoring"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:            getEnv("REDIS_ADDR", "localhost:6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getEnvInt("REDIS_DB", 0),
			QuoteTTL:        getEnvDuration("CACHE_QUOTE_TTL", 30*time.Second),
			LatestPricesTTL: getEnvDuration("CACHE_LATEST_PRICES_TTL", 20*time.Second),
			ChartTTL:        getEnvDuration("CACHE_CHART_TTL", 2*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "quote-events"),
		},
		Scraper: ScraperConfig{
			BaseURL:        getEnv("PRICE_API_BASE_URL", "https://data-api.coindesk.com/index/cc/v1"),
			APIKey:         getEnv("PRICE_API_KEY", ""),
			RequestTimeout: getEnvDuration("PRICE_API_TIMEOUT", 10*time.Second),
			RequestsPerSec: getEnvFloat("PRICE_API_RPS", 1),
		},
		Scheduler: SchedulerConfig{
			RealtimeInterval:  getEnvDuration("REALTIME_INTERVAL", 30*time.Second),
			CollectInterval:   getEnvDuration("COLLECT_INTERVAL", 5*time.Minute),
			RetentionInterval: getEnvDuration("RETENTION_INTERVAL", 24*time.Hour),
			QuoteRetention:    getEnvDuration("QUOTE_RETENTION", 30*24*time.Hour),
			MinuteRetention:   getEnvDuration("MINUTE_RETENTION", 7*24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvInt("API_RATE_LIMIT_PER_MINUTE", 60),
			Burst:             getEnvInt("API_RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
