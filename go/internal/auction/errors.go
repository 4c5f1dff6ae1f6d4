package auction

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrContended means the per-lot critical section could not be entered in
	// time, or another writer changed the lot first. Clients refresh and retry.
	ErrContended = errors.New("lot is contended, try again")
	// ErrLotNotFound is returned for unknown lot ids.
	ErrLotNotFound = errors.New("lot not found")
	// ErrNotYetClosed is returned by GetSettlement before the lot has ended.
	ErrNotYetClosed = errors.New("lot not yet closed")
	// ErrNoSettlement is returned for ended lots that produced no settlement (no bids or reserve not met).
	ErrNoSettlement = errors.New("lot ended without a settlement")
	// ErrNotDue is returned when Close or Activate is called before the relevant deadline.
	ErrNotDue = errors.New("lot deadline not reached")
	// ErrInvalidTransition is returned for lifecycle transitions the state machine forbids.
	ErrInvalidTransition = errors.New("invalid lot status transition")
	// ErrVersionConflict is returned by repositories when the stored version moved.
	ErrVersionConflict = errors.New("lot version conflict")
	// ErrSettlementExists is returned by repositories when a settlement is already stored.
	ErrSettlementExists = errors.New("settlement already exists")
	// ErrInvalidLot wraps CreateLot validation failures.
	ErrInvalidLot = errors.New("invalid lot")
	// ErrBidNotFound is returned when retracting an unknown bid.
	ErrBidNotFound = errors.New("bid not found")
)

// RejectReason is the machine readable cause of a rejected bid.
type RejectReason string

const (
	RejectInvalidAmount RejectReason = "invalid_amount"
	RejectNotActive     RejectReason = "lot_not_active"
	RejectClosed        RejectReason = "lot_closed"
	RejectSelfBid       RejectReason = "self_bid"
	RejectBelowMinimum  RejectReason = "below_minimum"
)

// Rejection describes why a proposed bid was not accepted.
type Rejection struct {
	Reason  RejectReason
	Minimum decimal.Decimal // smallest acceptable amount, set for below_minimum
}

// RejectionError wraps a Rejection so it travels through error returns.
// Rejections are expected outcomes and are shown to the bidder.
type RejectionError struct {
	Rejection
}

func (e *RejectionError) Error() string {
	if e.Reason == RejectBelowMinimum {
		return fmt.Sprintf("bid rejected: %s (minimum %s)", e.Reason, e.Minimum.String())
	}
	return fmt.Sprintf("bid rejected: %s", e.Reason)
}

// AsRejection extracts the rejection from err, if any.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
