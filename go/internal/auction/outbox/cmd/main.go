package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	auctiondb "github.com/mcdev12/auctionhouse/go/internal/auction/db"
	"github.com/mcdev12/auctionhouse/go/internal/auction/outbox"
	"github.com/mcdev12/auctionhouse/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	// Connect to database
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jsCfg := outbox.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATS.URL
	jsCfg.MaxReconnects = cfg.NATS.MaxReconnects
	jsCfg.ReconnectWait = cfg.NATS.ReconnectWait
	publisher, err := outbox.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create JetStream publisher")
	}
	defer publisher.Close()

	listenerCfg := outbox.DefaultListenerConfig()
	listenerCfg.DatabaseURL = cfg.Database.DSN()
	listenerCfg.FallbackInterval = cfg.Outbox.FallbackInterval
	listenerCfg.MaxRetries = cfg.Outbox.MaxRetries
	listenerCfg.RetryDelay = cfg.Outbox.RetryDelay
	listenerCfg.BatchSize = cfg.Outbox.BatchSize

	metrics := outbox.NewCounterMetrics()
	store := outbox.NewRepository(auctiondb.New(db))
	listener := outbox.NewListener(store, outbox.NewMetricPublisher(publisher, metrics, clockwork.NewRealClock()), listenerCfg)
	if err := listener.Listen(); err != nil {
		log.Fatal().Err(err).Msg("failed to listen for outbox notifications")
	}

	health := outbox.NewHealthChecker(listener, db, publisher.Conn(), 2*listenerCfg.FallbackInterval).WithMetrics(metrics)
	mux := http.NewServeMux()
	mux.Handle("GET /health", health)
	mux.Handle("GET /metrics", metrics)
	healthServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Outbox.HealthPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", healthServer.Addr).Msg("health server starting")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	log.Info().
		Str("database", cfg.Database.Database).
		Str("nats_url", cfg.NATS.URL).
		Msg("starting lot outbox relay")

	if err := listener.Start(ctx); err != nil {
		log.Error().Err(err).Msg("outbox listener stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown failed")
	}
	log.Info().Msg("lot outbox relay shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
