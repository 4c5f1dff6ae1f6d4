package auction

import (
	"time"

	"github.com/mcdev12/auctionhouse/go/internal/models"
)

// Capped extension reasons recorded on timer_extended events.
const (
	ExtensionCappedMaxDuration   = "max_duration_reached"
	ExtensionCappedMaxExtensions = "max_extensions_reached"
)

// ExtensionDecision is the outcome of evaluating the anti-sniping policy for one accepted bid.
type ExtensionDecision struct {
	// Triggered is true when the bid landed inside the trailing window.
	Triggered bool
	// Extended is true when the close time moves; false with Triggered set means a cap was hit.
	Extended   bool
	NewCloseAt time.Time
	Reason     string
}

// EvaluateExtension applies policy to a lot for a bid accepted at now.
// It must run for every accepted bid, so a burst of late bids can each extend
// the deadline until a cap is hit.
func EvaluateExtension(lot *models.Lot, now time.Time) ExtensionDecision {
	p := lot.Policy
	decision := ExtensionDecision{NewCloseAt: lot.CloseAt}
	if p.Window <= 0 || p.Bonus <= 0 {
		return decision
	}

	remaining := lot.CloseAt.Sub(now)
	if remaining > p.Window {
		return decision
	}
	decision.Triggered = true

	if p.MaxExtensions > 0 && lot.ExtensionCount >= p.MaxExtensions {
		decision.Reason = ExtensionCappedMaxExtensions
		return decision
	}

	next := lot.CloseAt.Add(p.Bonus)
	if p.MaxTotalDuration > 0 && next.Sub(lot.StartAt) > p.MaxTotalDuration {
		decision.Reason = ExtensionCappedMaxDuration
		return decision
	}

	decision.Extended = true
	decision.NewCloseAt = next
	return decision
}
