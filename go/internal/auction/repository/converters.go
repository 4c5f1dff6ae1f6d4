package repository

import (
	"encoding/json"
	"fmt"

	auctiondb "github.com/mcdev12/auctionhouse/go/internal/auction/db"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/mcdev12/auctionhouse/go/internal/sqlutil"
	"github.com/shopspring/decimal"
)

func lotFromRow(row auctiondb.Lot) (*models.Lot, error) {
	lot := &models.Lot{
		ID:              row.ID,
		SellerID:        row.SellerID,
		StoreID:         sqlutil.FromNullUUID(row.StoreID),
		Title:           row.Title,
		StartAt:         row.StartAt,
		CloseAt:         row.CloseAt,
		OriginalCloseAt: row.OriginalCloseAt,
		Status:          models.LotStatus(row.Status),
		WinnerID:        sqlutil.FromNullUUID(row.WinnerID),
		TotalBids:       int(row.TotalBids),
		Version:         row.Version,
		ExtensionCount:  int(row.ExtensionCount),
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		ClosedAt:        sqlutil.FromSqlTime(row.ClosedAt),
	}

	var err error
	if lot.StartingPrice, err = sqlutil.ToDecimal(row.StartingPrice); err != nil {
		return nil, fmt.Errorf("lot %s starting price: %w", row.ID, err)
	}
	if lot.MinIncrement, err = sqlutil.ToDecimal(row.MinIncrement); err != nil {
		return nil, fmt.Errorf("lot %s min increment: %w", row.ID, err)
	}
	if lot.CurrentPrice, err = sqlutil.ToDecimal(row.CurrentPrice); err != nil {
		return nil, fmt.Errorf("lot %s current price: %w", row.ID, err)
	}
	if lot.ReservePrice, err = sqlutil.FromNullDecimal(row.ReservePrice); err != nil {
		return nil, fmt.Errorf("lot %s reserve price: %w", row.ID, err)
	}
	if lot.BuyNowPrice, err = sqlutil.FromNullDecimal(row.BuyNowPrice); err != nil {
		return nil, fmt.Errorf("lot %s buy now price: %w", row.ID, err)
	}
	if len(row.Policy) > 0 {
		if err := json.Unmarshal(row.Policy, &lot.Policy); err != nil {
			return nil, fmt.Errorf("lot %s policy: %w", row.ID, err)
		}
	}
	return lot, nil
}

func settlementFromRow(row auctiondb.Settlement) (*models.Settlement, error) {
	s := &models.Settlement{
		LotID:       row.LotID,
		WinnerID:    row.WinnerID,
		SellerID:    row.SellerID,
		RuleID:      sqlutil.FromNullUUID(row.RuleID),
		Fallback:    row.Fallback,
		Warning:     sqlutil.FromSqlString(row.Warning, ""),
		BelowBuyNow: row.BelowBuyNow,
		ComputedAt:  row.ComputedAt,
	}
	amounts := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"hammer_price", row.HammerPrice, &s.HammerPrice},
		{"buyer_rate", row.BuyerRate, &s.BuyerRate},
		{"seller_rate", row.SellerRate, &s.SellerRate},
		{"buyer_commission", row.BuyerCommission, &s.BuyerCommission},
		{"buyer_total", row.BuyerTotal, &s.BuyerTotal},
		{"seller_commission", row.SellerCommission, &s.SellerCommission},
		{"seller_net", row.SellerNet, &s.SellerNet},
	}
	for _, a := range amounts {
		v, err := sqlutil.ToDecimal(a.raw)
		if err != nil {
			return nil, fmt.Errorf("settlement %s %s: %w", row.LotID, a.name, err)
		}
		*a.dst = v
	}
	return s, nil
}

func commissionRuleFromRow(row auctiondb.CommissionRule) (models.CommissionRule, error) {
	rule := models.CommissionRule{
		ID:        row.ID,
		Scope:     models.CommissionScope(row.Scope),
		ScopeID:   sqlutil.FromNullUUID(row.ScopeID),
		AppliesTo: models.CommissionAppliesTo(row.AppliesTo),
		Enabled:   row.Enabled,
	}
	var err error
	if rule.BuyerRate, err = sqlutil.ToDecimal(row.BuyerRate); err != nil {
		return rule, fmt.Errorf("commission rule %s buyer rate: %w", row.ID, err)
	}
	if rule.SellerRate, err = sqlutil.ToDecimal(row.SellerRate); err != nil {
		return rule, fmt.Errorf("commission rule %s seller rate: %w", row.ID, err)
	}
	return rule, nil
}
