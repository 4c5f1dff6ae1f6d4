package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event payload types that are shared between the engine, the outbox relay and the gateway

// BidPlacedPayload is the payload for a bid_placed event
type BidPlacedPayload struct {
	BidID         string          `json:"bid_id"`
	BidderID      string          `json:"bidder_id"`
	Amount        decimal.Decimal `json:"amount"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	PlacedAt      time.Time       `json:"placed_at"`
	Extended      bool            `json:"extended"`
}

// BidRejectedPayload is the payload for a bid_rejected event
type BidRejectedPayload struct {
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason"`
	Minimum  decimal.Decimal `json:"minimum,omitempty"`
}

// BidRetractedPayload is the payload for a bid_retracted event
type BidRetractedPayload struct {
	BidID    string `json:"bid_id"`
	BidderID string `json:"bidder_id"`
}

// TimerExtendedPayload is the payload for a timer_extended event. A capped
// decision carries a Reason and an ExtensionSec of zero.
type TimerExtendedPayload struct {
	ExtensionSec    float64   `json:"extension_sec"`
	PreviousCloseAt time.Time `json:"previous_close_at"`
	CloseAt         time.Time `json:"close_at"`
	ExtensionCount  int       `json:"extension_count"`
	Reason          string    `json:"reason,omitempty"`
}

// LotActivatedPayload is the payload for a lot_activated event
type LotActivatedPayload struct {
	ActivatedAt time.Time `json:"activated_at"`
	CloseAt     time.Time `json:"close_at"`
}

// LotClosedPayload is the payload for a lot_closed event
type LotClosedPayload struct {
	ClosedAt   time.Time       `json:"closed_at"`
	FinalPrice decimal.Decimal `json:"final_price"`
	WinnerID   string          `json:"winner_id,omitempty"`
	TotalBids  int             `json:"total_bids"`
	ReserveMet bool            `json:"reserve_met"`
	Extensions int             `json:"extensions"`
	Duration   string          `json:"duration"`
}

// LotCancelledPayload is the payload for a lot_cancelled event
type LotCancelledPayload struct {
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason"`
}
