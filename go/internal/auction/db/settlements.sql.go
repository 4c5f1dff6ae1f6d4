package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const insertSettlement = `-- name: InsertSettlement :execrows
INSERT INTO settlements (
    lot_id, winner_id, seller_id, hammer_price, buyer_rate, seller_rate,
    buyer_commission, buyer_total, seller_commission, seller_net,
    rule_id, fallback, warning, below_buy_now, computed_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
)
ON CONFLICT (lot_id) DO NOTHING
`

type InsertSettlementParams struct {
	LotID            uuid.UUID      `json:"lot_id"`
	WinnerID         uuid.UUID      `json:"winner_id"`
	SellerID         uuid.UUID      `json:"seller_id"`
	HammerPrice      string         `json:"hammer_price"`
	BuyerRate        string         `json:"buyer_rate"`
	SellerRate       string         `json:"seller_rate"`
	BuyerCommission  string         `json:"buyer_commission"`
	BuyerTotal       string         `json:"buyer_total"`
	SellerCommission string         `json:"seller_commission"`
	SellerNet        string         `json:"seller_net"`
	RuleID           uuid.NullUUID  `json:"rule_id"`
	Fallback         bool           `json:"fallback"`
	Warning          sql.NullString `json:"warning"`
	BelowBuyNow      bool           `json:"below_buy_now"`
	ComputedAt       time.Time      `json:"computed_at"`
}

// InsertSettlement returns zero rows when the lot already has a settlement.
func (q *Queries) InsertSettlement(ctx context.Context, arg InsertSettlementParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertSettlement,
		arg.LotID,
		arg.WinnerID,
		arg.SellerID,
		arg.HammerPrice,
		arg.BuyerRate,
		arg.SellerRate,
		arg.BuyerCommission,
		arg.BuyerTotal,
		arg.SellerCommission,
		arg.SellerNet,
		arg.RuleID,
		arg.Fallback,
		arg.Warning,
		arg.BelowBuyNow,
		arg.ComputedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getSettlement = `-- name: GetSettlement :one
SELECT lot_id, winner_id, seller_id, hammer_price, buyer_rate, seller_rate,
       buyer_commission, buyer_total, seller_commission, seller_net,
       rule_id, fallback, warning, below_buy_now, computed_at
FROM settlements
WHERE lot_id = $1
`

func (q *Queries) GetSettlement(ctx context.Context, lotID uuid.UUID) (Settlement, error) {
	row := q.db.QueryRowContext(ctx, getSettlement, lotID)
	var i Settlement
	err := row.Scan(
		&i.LotID,
		&i.WinnerID,
		&i.SellerID,
		&i.HammerPrice,
		&i.BuyerRate,
		&i.SellerRate,
		&i.BuyerCommission,
		&i.BuyerTotal,
		&i.SellerCommission,
		&i.SellerNet,
		&i.RuleID,
		&i.Fallback,
		&i.Warning,
		&i.BelowBuyNow,
		&i.ComputedAt,
	)
	return i, err
}
