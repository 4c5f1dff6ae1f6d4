package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/shopspring/decimal"
)

// MinimumNextBid returns the smallest amount the lot accepts next.
func MinimumNextBid(lot *models.Lot) decimal.Decimal {
	return lot.CurrentPrice.Add(lot.MinIncrement)
}

// ValidateBid decides whether a proposed bid is acceptable against a lot
// snapshot. now must be reconciled server time; margin widens the deadline
// check when the clock is degraded. It has no side effects.
//
// A bid at or above the buy-now price is validated like any other bid.
func ValidateBid(lot *models.Lot, bidderID uuid.UUID, amount decimal.Decimal, now time.Time, margin time.Duration) *Rejection {
	if !amount.IsPositive() {
		return &Rejection{Reason: RejectInvalidAmount}
	}
	if lot.Status != models.LotStatusActive {
		return &Rejection{Reason: RejectNotActive}
	}
	if !now.Add(margin).Before(lot.CloseAt) {
		return &Rejection{Reason: RejectClosed}
	}
	if bidderID == lot.SellerID {
		return &Rejection{Reason: RejectSelfBid}
	}
	if minimum := MinimumNextBid(lot); amount.LessThan(minimum) {
		return &Rejection{Reason: RejectBelowMinimum, Minimum: minimum}
	}
	return nil
}
