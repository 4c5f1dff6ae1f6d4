package auction

import (
	"fmt"
	"time"

	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/shopspring/decimal"
)

// CalculateSettlement derives buyer and seller amounts for an ended lot with a
// winner. A missing or malformed rule never fails: the result falls back to
// the hammer price with zero commission and Fallback set. The same inputs
// always produce the same amounts. Commissions are kept exact so the totals
// equal price plus or minus price*rate; rounding for display is left to callers.
func CalculateSettlement(lot *models.Lot, rule *models.CommissionRule, computedAt time.Time) models.Settlement {
	price := lot.CurrentPrice
	s := models.Settlement{
		LotID:       lot.ID,
		SellerID:    lot.SellerID,
		HammerPrice: price,
		ComputedAt:  computedAt.UTC(),
	}
	if lot.WinnerID != nil {
		s.WinnerID = *lot.WinnerID
	}
	if lot.BuyNowPrice != nil && price.LessThan(*lot.BuyNowPrice) {
		s.BelowBuyNow = true
	}

	if warning := checkRule(rule); warning != "" {
		s.Fallback = true
		s.Warning = warning
		s.BuyerRate = decimal.Zero
		s.SellerRate = decimal.Zero
		s.BuyerCommission = decimal.Zero
		s.SellerCommission = decimal.Zero
		s.BuyerTotal = price
		s.SellerNet = price
		return s
	}

	id := rule.ID
	s.RuleID = &id
	s.BuyerRate = rule.BuyerRate
	s.SellerRate = rule.SellerRate
	s.BuyerCommission = price.Mul(rule.BuyerRate)
	s.BuyerTotal = price.Add(s.BuyerCommission)
	s.SellerCommission = price.Mul(rule.SellerRate)
	s.SellerNet = price.Sub(s.SellerCommission)
	return s
}

func checkRule(rule *models.CommissionRule) string {
	if rule == nil {
		return "no commission rule found, settled at hammer price"
	}
	if !rule.CoversAuctions() {
		return fmt.Sprintf("commission rule %s does not apply to auctions, settled at hammer price", rule.ID)
	}
	one := decimal.NewFromInt(1)
	if r := rule.BuyerRate; r.IsNegative() || r.GreaterThan(one) {
		return fmt.Sprintf("commission rule %s has malformed buyer rate %s, settled at hammer price", rule.ID, r.String())
	}
	if r := rule.SellerRate; r.IsNegative() || r.GreaterThan(one) {
		return fmt.Sprintf("commission rule %s has malformed seller rate %s, settled at hammer price", rule.ID, r.String())
	}
	return ""
}
