package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionhouse/go/internal/client"
	"github.com/mcdev12/auctionhouse/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Follows one lot from the command line and logs every confirmed change.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	lotID, err := uuid.Parse(os.Getenv("LOT_ID"))
	if err != nil {
		log.Fatal().Err(err).Msg("LOT_ID must be a lot UUID")
	}

	watcher := client.NewWatcher(client.Config{
		BaseURL:  getEnv("AUCTION_URL", "http://localhost:8080"),
		LotID:    lotID,
		BidderID: os.Getenv("BIDDER_ID"),
		Clock:    cfg.Clock.Config,
		Poll:     cfg.Poll,
	}, clockwork.NewRealClock(), nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher.OnChange(func(ch client.Change) {
		v := ch.View
		ev := log.Info().
			Str("lot_id", v.LotID.String()).
			Int64("version", v.Version).
			Str("status", string(v.Status)).
			Str("price", v.Price.String()).
			Int("total_bids", v.TotalBids).
			Dur("remaining", watcher.Remaining()).
			Str("band", watcher.Band().String()).
			Str("source", ch.Source)
		if v.WinnerID != nil {
			ev = ev.Str("winner_id", v.WinnerID.String())
		}
		if ch.Extended {
			ev = ev.Int("extension_count", v.ExtensionCount)
		}
		ev.Msg("lot updated")
	})

	if err := watcher.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("watcher failed")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
