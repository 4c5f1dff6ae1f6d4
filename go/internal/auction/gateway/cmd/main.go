package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/mcdev12/auctionhouse/go/internal/auction"
	"github.com/mcdev12/auctionhouse/go/internal/auction/gateway"
	"github.com/mcdev12/auctionhouse/go/internal/auction/repository"
	"github.com/mcdev12/auctionhouse/go/internal/clocksync"
	"github.com/mcdev12/auctionhouse/go/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// The gateway serves reads and websocket fan-out for a fleet of instances.
// Lot changes arrive from the broker rather than from a local engine.
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

	// Test connection
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	log.Info().
		Str("database", cfg.Database.Database).
		Str("nats_url", cfg.NATS.URL).
		Int("port", cfg.Server.Port).
		Msg("starting lot gateway")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Every instance shares the database clock.
	reconciler := clocksync.NewReconciler(clocksync.NewSQLSource(db), clockwork.NewRealClock(), cfg.Clock.Config)
	if err := reconciler.Sync(ctx); err != nil {
		log.Warn().Err(err).Msg("initial clock sync failed, starting degraded")
	}

	repo := repository.NewRepository(db)
	engine := auction.NewEngine(repo, repo, reconciler, auction.Config{
		LockWait:      cfg.Auction.LockWait,
		DefaultPolicy: cfg.Auction.DefaultPolicy,
	})

	cache := gateway.SnapshotCache(gateway.NewMemorySnapshotCache())
	if cfg.Redis.Addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		cache = gateway.NewRedisSnapshotCache(client, gateway.RedisCacheConfig{
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		})
	}

	connCfg := gateway.DefaultConnectionConfig()
	connCfg.SendBuffer = cfg.Server.SendBuffer
	gatewayService := gateway.NewService(gateway.Config{
		ConnectionConfig: connCfg,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
	}, engine, cache, reconciler, nil)

	consumerCfg := gateway.DefaultJetStreamConsumerConfig()
	consumerCfg.URL = cfg.NATS.URL
	consumerCfg.MaxReconnects = cfg.NATS.MaxReconnects
	consumerCfg.ReconnectWait = cfg.NATS.ReconnectWait
	consumer, err := gateway.NewEventConsumer(ctx, consumerCfg,
		gatewayService.Connections(),
		gateway.NewCacheSink(cache),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event consumer")
	}
	defer consumer.Stop()

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           gatewayService.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Start(ctx) })
	g.Go(func() error { return reconciler.Run(ctx) })
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("lot gateway failed")
	}
	log.Info().Msg("lot gateway shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
