package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionScope defines which party a commission rule is attached to.
type CommissionScope string

const (
	CommissionScopeGlobal CommissionScope = "global"
	CommissionScopeStore  CommissionScope = "store"
	CommissionScopeSeller CommissionScope = "seller"
)

// CommissionAppliesTo defines which sale kinds a rule covers.
type CommissionAppliesTo string

const (
	CommissionAppliesDirectSale CommissionAppliesTo = "direct_sale"
	CommissionAppliesAuction    CommissionAppliesTo = "auction"
	CommissionAppliesBoth       CommissionAppliesTo = "both"
)

// CommissionRule carries buyer-side and seller-side auction commission rates
// as fractions (0.05 = 5%).
type CommissionRule struct {
	ID         uuid.UUID           `json:"id"`
	Scope      CommissionScope     `json:"scope"`
	ScopeID    *uuid.UUID          `json:"scope_id,omitempty"` // store or seller id, nil for global
	AppliesTo  CommissionAppliesTo `json:"applies_to"`
	BuyerRate  decimal.Decimal     `json:"buyer_rate"`
	SellerRate decimal.Decimal     `json:"seller_rate"`
	Enabled    bool                `json:"enabled"`
}

// CoversAuctions reports whether the rule can be used to settle a lot.
func (r CommissionRule) CoversAuctions() bool {
	return r.Enabled && (r.AppliesTo == CommissionAppliesAuction || r.AppliesTo == CommissionAppliesBoth)
}

// Settlement is derived once per lot at close.
type Settlement struct {
	LotID            uuid.UUID       `json:"lot_id"`
	WinnerID         uuid.UUID       `json:"winner_id"`
	SellerID         uuid.UUID       `json:"seller_id"`
	HammerPrice      decimal.Decimal `json:"hammer_price"`
	BuyerRate        decimal.Decimal `json:"buyer_rate"`
	SellerRate       decimal.Decimal `json:"seller_rate"`
	BuyerCommission  decimal.Decimal `json:"buyer_commission"`
	BuyerTotal       decimal.Decimal `json:"buyer_total"`
	SellerCommission decimal.Decimal `json:"seller_commission"`
	SellerNet        decimal.Decimal `json:"seller_net"`
	RuleID           *uuid.UUID      `json:"rule_id,omitempty"`
	Fallback         bool            `json:"fallback"`
	Warning          string          `json:"warning,omitempty"`
	// BelowBuyNow marks winners under the buy-now price; approval happens outside the engine.
	BelowBuyNow bool      `json:"below_buy_now"`
	ComputedAt  time.Time `json:"computed_at"`
}
