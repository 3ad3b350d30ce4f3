package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptomonitor/internal/api"
	"cryptomonitor/internal/cache"
	"cryptomonitor/internal/config"
	"cryptomonitor/internal/database"
	"cryptomonitor/internal/kafka"
	"cryptomonitor/internal/logger"
	"cryptomonitor/internal/models"
	"cryptomonitor/internal/scheduler"
	"cryptomonitor/internal/scraper"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Log)

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	for _, asset := range models.DefaultAssets {
		a := asset
		if err := db.UpsertAsset(&a); err != nil {
			log.WithError(err).WithField("symbol", a.Symbol).Fatal("failed to seed asset")
		}
	}

	cacheStore, err := cache.New(cfg.Redis)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	defer cacheStore.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()
	if producer == nil {
		log.Info("kafka publishing disabled, no brokers configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Server.EnableJobs {
		client := scraper.New(cfg.Scraper, log)
		jobs := scheduler.New(cfg.Scheduler, db, client, cacheStore, producer, log)
		go jobs.Run(ctx)
	} else {
		log.Info("scheduler disabled, serving only")
	}

	handler, err := api.NewHandler(db, cacheStore, log, cfg.Server.TemplateDir)
	if err != nil {
		log.WithError(err).Fatal("failed to load templates")
	}

	rl := api.NewRateLimiter(cfg.RateLimit)
	router := api.SetupRoutes(handler, rl, cfg.Server.StaticDir, log)

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http server shutdown failed")
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
