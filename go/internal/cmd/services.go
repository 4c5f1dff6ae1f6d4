package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionhouse/go/internal/auction"
	"github.com/mcdev12/auctionhouse/go/internal/auction/gateway"
	"github.com/mcdev12/auctionhouse/go/internal/auction/repository"
	"github.com/mcdev12/auctionhouse/go/internal/clocksync"
	"github.com/mcdev12/auctionhouse/go/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Engine     *auction.Engine
	Scheduler  *auction.Scheduler
	Gateway    *gateway.Service
	Reconciler *clocksync.Reconciler
	redis      redis.UniversalClient
}

func setupServices(ctx context.Context, database *sql.DB, cfg *config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → Engine → Gateway

	repo := repository.NewRepository(database)
	clock, reconciler := setupClock(ctx, database, cfg)

	engine := auction.NewEngine(repo, repo, clock, auction.Config{
		LockWait:      cfg.Auction.LockWait,
		DefaultPolicy: cfg.Auction.DefaultPolicy,
	})

	scheduler := auction.NewScheduler(engine, repo, clockwork.NewRealClock(), auction.SchedulerConfig{
		Workers:       cfg.Scheduler.Workers,
		BatchSize:     cfg.Scheduler.BatchSize,
		SweepInterval: cfg.Scheduler.SweepInterval,
		RetryDelay:    cfg.Scheduler.RetryDelay,
	})

	cache, redisClient := setupSnapshotCache(ctx, cfg)

	connCfg := gateway.DefaultConnectionConfig()
	connCfg.SendBuffer = cfg.Server.SendBuffer
	gw := gateway.NewService(gateway.Config{
		ConnectionConfig: connCfg,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
	}, engine, cache, clock, scheduler)

	engine.AddSink(gateway.NewCacheSink(cache))
	engine.AddSink(gw.Connections())

	return &Services{
		Engine:     engine,
		Scheduler:  scheduler,
		Gateway:    gw,
		Reconciler: reconciler,
		redis:      redisClient,
	}, nil
}

// setupClock returns the engine clock. With the sql source the database
// clock is authoritative and a reconciler tracks it.
func setupClock(ctx context.Context, database *sql.DB, cfg *config.Config) (auction.Clock, *clocksync.Reconciler) {
	if cfg.Clock.Source != "sql" {
		return auction.NewLocalClock(clockwork.NewRealClock()), nil
	}
	reconciler := clocksync.NewReconciler(clocksync.NewSQLSource(database), clockwork.NewRealClock(), cfg.Clock.Config)
	if err := reconciler.Sync(ctx); err != nil {
		log.Warn().Err(err).Msg("initial clock sync failed, starting degraded")
	}
	return reconciler, reconciler
}

func setupSnapshotCache(ctx context.Context, cfg *config.Config) (gateway.SnapshotCache, redis.UniversalClient) {
	if cfg.Redis.Addr == "" {
		log.Info().Msg("redis not configured, using in-memory snapshot cache")
		return gateway.NewMemorySnapshotCache(), nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Redis.Addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, using in-memory snapshot cache")
		client.Close()
		return gateway.NewMemorySnapshotCache(), nil
	}

	log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis snapshot cache")
	return gateway.NewRedisSnapshotCache(client, gateway.RedisCacheConfig{
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       cfg.Redis.TTL,
	}), client
}

func (s *Services) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
}
