package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type Lot struct {
	ID              uuid.UUID       `json:"id"`
	SellerID        uuid.UUID       `json:"seller_id"`
	StoreID         uuid.NullUUID   `json:"store_id"`
	Title           string          `json:"title"`
	StartingPrice   string          `json:"starting_price"`
	ReservePrice    sql.NullString  `json:"reserve_price"`
	BuyNowPrice     sql.NullString  `json:"buy_now_price"`
	MinIncrement    string          `json:"min_increment"`
	StartAt         time.Time       `json:"start_at"`
	CloseAt         time.Time       `json:"close_at"`
	OriginalCloseAt time.Time       `json:"original_close_at"`
	Status          string          `json:"status"`
	CurrentPrice    string          `json:"current_price"`
	WinnerID        uuid.NullUUID   `json:"winner_id"`
	TotalBids       int32           `json:"total_bids"`
	Version         int64           `json:"version"`
	ExtensionCount  int32           `json:"extension_count"`
	Policy          json.RawMessage `json:"policy"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ClosedAt        sql.NullTime    `json:"closed_at"`
}

type Bid struct {
	ID        uuid.UUID `json:"id"`
	LotID     uuid.UUID `json:"lot_id"`
	BidderID  uuid.UUID `json:"bidder_id"`
	Amount    string    `json:"amount"`
	PlacedAt  time.Time `json:"placed_at"`
	Retracted bool      `json:"retracted"`
}

type LotEvent struct {
	ID         uuid.UUID             `json:"id"`
	LotID      uuid.UUID             `json:"lot_id"`
	Version    int64                 `json:"version"`
	EventType  string                `json:"event_type"`
	State      json.RawMessage       `json:"state"`
	Payload    pqtype.NullRawMessage `json:"payload"`
	OccurredAt time.Time             `json:"occurred_at"`
}

type Settlement struct {
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

type CommissionRule struct {
	ID         uuid.UUID     `json:"id"`
	Scope      string        `json:"scope"`
	ScopeID    uuid.NullUUID `json:"scope_id"`
	AppliesTo  string        `json:"applies_to"`
	BuyerRate  string        `json:"buyer_rate"`
	SellerRate string        `json:"seller_rate"`
	Enabled    bool          `json:"enabled"`
	CreatedAt  time.Time     `json:"created_at"`
}

type LotOutbox struct {
	ID        uuid.UUID       `json:"id"`
	LotID     uuid.UUID       `json:"lot_id"`
	Version   int64           `json:"version"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    sql.NullTime    `json:"sent_at"`
}
