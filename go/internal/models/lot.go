package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LotStatus defines the lifecycle status of a lot.
type LotStatus string

const (
	LotStatusScheduled LotStatus = "scheduled"
	LotStatusActive    LotStatus = "active"
	LotStatusEnded     LotStatus = "ended"
	LotStatusCancelled LotStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s LotStatus) IsTerminal() bool {
	return s == LotStatusEnded || s == LotStatusCancelled
}

// Valid reports whether s is one of the known statuses.
func (s LotStatus) Valid() bool {
	switch s {
	case LotStatusScheduled, LotStatusActive, LotStatusEnded, LotStatusCancelled:
		return true
	}
	return false
}

// ExtensionPolicy holds the anti-sniping configuration of a lot.
type ExtensionPolicy struct {
	Window           time.Duration `json:"window" yaml:"window"`
	Bonus            time.Duration `json:"bonus" yaml:"bonus"`
	MaxExtensions    int           `json:"max_extensions" yaml:"max_extensions"`
	MaxTotalDuration time.Duration `json:"max_total_duration" yaml:"max_total_duration"` // measured from StartAt, 0 = uncapped
}

// Lot is the auction unit and the aggregate root of the bidding engine.
type Lot struct {
	ID              uuid.UUID        `json:"id"`
	SellerID        uuid.UUID        `json:"seller_id"`
	StoreID         *uuid.UUID       `json:"store_id,omitempty"`
	Title           string           `json:"title"`
	StartingPrice   decimal.Decimal  `json:"starting_price"`
	ReservePrice    *decimal.Decimal `json:"reserve_price,omitempty"`
	BuyNowPrice     *decimal.Decimal `json:"buy_now_price,omitempty"`
	MinIncrement    decimal.Decimal  `json:"min_increment"`
	StartAt         time.Time        `json:"start_at"`
	CloseAt         time.Time        `json:"close_at"`
	OriginalCloseAt time.Time        `json:"original_close_at"`
	Status          LotStatus        `json:"status"`
	CurrentPrice    decimal.Decimal  `json:"current_price"`
	WinnerID        *uuid.UUID       `json:"winner_id,omitempty"`
	TotalBids       int              `json:"total_bids"`
	Version         int64            `json:"version"`
	ExtensionCount  int              `json:"extension_count"`
	Policy          ExtensionPolicy  `json:"policy"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	ClosedAt        *time.Time       `json:"closed_at,omitempty"`
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (l *Lot) Clone() *Lot {
	if l == nil {
		return nil
	}
	c := *l
	if l.StoreID != nil {
		id := *l.StoreID
		c.StoreID = &id
	}
	if l.ReservePrice != nil {
		p := *l.ReservePrice
		c.ReservePrice = &p
	}
	if l.BuyNowPrice != nil {
		p := *l.BuyNowPrice
		c.BuyNowPrice = &p
	}
	if l.WinnerID != nil {
		id := *l.WinnerID
		c.WinnerID = &id
	}
	if l.ClosedAt != nil {
		t := *l.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

// ReserveMet reports whether the current price satisfies the hidden reserve.
func (l *Lot) ReserveMet() bool {
	if l.ReservePrice == nil {
		return true
	}
	return l.TotalBids > 0 && l.CurrentPrice.GreaterThanOrEqual(*l.ReservePrice)
}

// State returns the client-visible portion of the lot.
func (l *Lot) State() LotState {
	st := LotState{
		Status:         l.Status,
		Price:          l.CurrentPrice,
		CloseAt:        l.CloseAt,
		TotalBids:      l.TotalBids,
		ExtensionCount: l.ExtensionCount,
	}
	if l.WinnerID != nil {
		id := *l.WinnerID
		st.WinnerID = &id
	}
	return st
}

// Snapshot returns the lightweight polling view of the lot.
func (l *Lot) Snapshot(serverTime time.Time) LotSnapshot {
	return LotSnapshot{
		LotID:      l.ID,
		Version:    l.Version,
		LotState:   l.State(),
		ServerTime: serverTime,
	}
}

// LotState is the mutable, client-visible state of a lot at one version.
type LotState struct {
	Status         LotStatus       `json:"status"`
	Price          decimal.Decimal `json:"price"`
	WinnerID       *uuid.UUID      `json:"winner_id,omitempty"`
	CloseAt        time.Time       `json:"close_at"`
	TotalBids      int             `json:"total_bids"`
	ExtensionCount int             `json:"extension_count"`
}

// LotSnapshot is returned by the high-frequency polling endpoint.
type LotSnapshot struct {
	LotID   uuid.UUID `json:"lot_id"`
	Version int64     `json:"version"`
	LotState
	ServerTime time.Time `json:"server_time"`
}

// CreateLotRequest represents the data needed to schedule a new lot
type CreateLotRequest struct {
	SellerID      uuid.UUID        `json:"seller_id"`
	StoreID       *uuid.UUID       `json:"store_id,omitempty"`
	Title         string           `json:"title"`
	StartingPrice decimal.Decimal  `json:"starting_price"`
	ReservePrice  *decimal.Decimal `json:"reserve_price,omitempty"`
	BuyNowPrice   *decimal.Decimal `json:"buy_now_price,omitempty"`
	MinIncrement  decimal.Decimal  `json:"min_increment"`
	StartAt       time.Time        `json:"start_at"`
	CloseAt       time.Time        `json:"close_at"`
	Policy        *ExtensionPolicy `json:"policy,omitempty"`
}
