package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const insertBid = `-- name: InsertBid :exec
INSERT INTO bids (id, lot_id, bidder_id, amount, placed_at, retracted)
VALUES ($1, $2, $3, $4, $5, $6)
`

type InsertBidParams struct {
	ID        uuid.UUID `json:"id"`
	LotID     uuid.UUID `json:"lot_id"`
	BidderID  uuid.UUID `json:"bidder_id"`
	Amount    string    `json:"amount"`
	PlacedAt  time.Time `json:"placed_at"`
	Retracted bool      `json:"retracted"`
}

func (q *Queries) InsertBid(ctx context.Context, arg InsertBidParams) error {
	_, err := q.db.ExecContext(ctx, insertBid,
		arg.ID,
		arg.LotID,
		arg.BidderID,
		arg.Amount,
		arg.PlacedAt,
		arg.Retracted,
	)
	return err
}

const retractBid = `-- name: RetractBid :execrows
UPDATE bids
SET retracted = TRUE
WHERE lot_id = $1
  AND id = $2
  AND NOT retracted
`

type RetractBidParams struct {
	LotID uuid.UUID `json:"lot_id"`
	ID    uuid.UUID `json:"id"`
}

func (q *Queries) RetractBid(ctx context.Context, arg RetractBidParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, retractBid, arg.LotID, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listBidsByLot = `-- name: ListBidsByLot :many
SELECT id, lot_id, bidder_id, amount, placed_at, retracted
FROM bids
WHERE lot_id = $1
ORDER BY placed_at, id
`

func (q *Queries) ListBidsByLot(ctx context.Context, lotID uuid.UUID) ([]Bid, error) {
	rows, err := q.db.QueryContext(ctx, listBidsByLot, lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Bid
	for rows.Next() {
		var i Bid
		if err := rows.Scan(
			&i.ID,
			&i.LotID,
			&i.BidderID,
			&i.Amount,
			&i.PlacedAt,
			&i.Retracted,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
