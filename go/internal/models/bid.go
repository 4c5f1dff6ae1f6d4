package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid is a single offer on a lot. Retracted bids stay stored for audit.
type Bid struct {
	ID        uuid.UUID       `json:"id"`
	LotID     uuid.UUID       `json:"lot_id"`
	BidderID  uuid.UUID       `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	PlacedAt  time.Time       `json:"placed_at"` // server assigned
	Retracted bool            `json:"retracted"`
}

// RankedBid is one row of a derived bid ranking.
type RankedBid struct {
	Rank int `json:"rank"`
	Bid
}
