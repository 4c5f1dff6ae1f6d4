package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/auctionhouse/go/internal/dbconfig"
	"github.com/mcdev12/auctionhouse/go/internal/models"
)

// SeedLot mirrors an entry of the JSON seed file. Times are relative to now.
type SeedLot struct {
	ID            string                  `json:"id"`
	SellerID      string                  `json:"seller_id"`
	StoreID       *string                 `json:"store_id"`
	Title         string                  `json:"title"`
	StartingPrice string                  `json:"starting_price"`
	ReservePrice  *string                 `json:"reserve_price"`
	BuyNowPrice   *string                 `json:"buy_now_price"`
	MinIncrement  string                  `json:"min_increment"`
	StartsIn      string                  `json:"starts_in"`
	RunsFor       string                  `json:"runs_for"`
	Policy        *models.ExtensionPolicy `json:"policy"`
}

type SeedFile struct {
	CommissionRule struct {
		ID         string `json:"id"`
		BuyerRate  string `json:"buyer_rate"`
		SellerRate string `json:"seller_rate"`
	} `json:"commission_rule"`
	Lots []SeedLot `json:"lots"`
}

func main() {
	// 1) Load the JSON seed file
	path := "go/internal/assets/lots.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var seed SeedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Global commission rule
	if _, err := pool.Exec(ctx, `
        INSERT INTO commission_rules (id, scope, applies_to, buyer_rate, seller_rate, enabled)
        VALUES ($1, 'global', 'both', $2, $3, TRUE)
        ON CONFLICT (id) DO NOTHING
    `, seed.CommissionRule.ID, seed.CommissionRule.BuyerRate, seed.CommissionRule.SellerRate); err != nil {
		fmt.Fprintf(os.Stderr, "insert commission rule: %v\n", err)
		os.Exit(1)
	}

	// 4) Lots, in one batch
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, l := range seed.Lots {
		startsIn, err := time.ParseDuration(l.StartsIn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lot %s: bad starts_in: %v\n", l.ID, err)
			os.Exit(1)
		}
		runsFor, err := time.ParseDuration(l.RunsFor)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lot %s: bad runs_for: %v\n", l.ID, err)
			os.Exit(1)
		}
		policy := []byte("{}")
		if l.Policy != nil {
			if policy, err = json.Marshal(l.Policy); err != nil {
				fmt.Fprintf(os.Stderr, "lot %s: marshal policy: %v\n", l.ID, err)
				os.Exit(1)
			}
		}
		startAt := now.Add(startsIn)
		closeAt := startAt.Add(runsFor)
		batch.Queue(`
            INSERT INTO lots (
              id, seller_id, store_id, title, starting_price, reserve_price,
              buy_now_price, min_increment, start_at, close_at, original_close_at,
              status, current_price, policy
            ) VALUES (
              $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10,'scheduled',$5,$11
            )
            ON CONFLICT (id) DO NOTHING
        `,
			l.ID, l.SellerID, l.StoreID, l.Title, l.StartingPrice, l.ReservePrice,
			l.BuyNowPrice, l.MinIncrement, startAt, closeAt, policy,
		)
	}

	var (
		total    = len(seed.Lots)
		inserted int
		skipped  int
		errs     int
	)
	results := pool.SendBatch(ctx, batch)
	for _, l := range seed.Lots {
		cmdTag, err := results.Exec()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting lot %s: %v\n", l.ID, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}
	if err := results.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close batch: %v\n", err)
	}

	// 5) Report
	fmt.Printf("Total lots:    %d\n", total)
	fmt.Printf("Inserted:      %d\n", inserted)
	fmt.Printf("Skipped (dup): %d\n", skipped)
	fmt.Printf("Errors:        %d\n", errs)
	if errs > 0 {
		os.Exit(1)
	}
}
