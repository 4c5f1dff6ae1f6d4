package db

import (
	"context"

	"github.com/google/uuid"
)

const listApplicableCommissionRules = `-- name: ListApplicableCommissionRules :many
SELECT id, scope, scope_id, applies_to, buyer_rate, seller_rate, enabled, created_at
FROM commission_rules
WHERE enabled
  AND applies_to IN ('auction', 'both')
  AND (scope = 'global'
    OR (scope = 'seller' AND scope_id = $1)
    OR (scope = 'store' AND scope_id = $2))
ORDER BY created_at DESC
`

type ListApplicableCommissionRulesParams struct {
	SellerID uuid.UUID     `json:"seller_id"`
	StoreID  uuid.NullUUID `json:"store_id"`
}

func (q *Queries) ListApplicableCommissionRules(ctx context.Context, arg ListApplicableCommissionRulesParams) ([]CommissionRule, error) {
	rows, err := q.db.QueryContext(ctx, listApplicableCommissionRules, arg.SellerID, arg.StoreID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CommissionRule
	for rows.Next() {
		var i CommissionRule
		if err := rows.Scan(
			&i.ID,
			&i.Scope,
			&i.ScopeID,
			&i.AppliesTo,
			&i.BuyerRate,
			&i.SellerRate,
			&i.Enabled,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertCommissionRule = `-- name: UpsertCommissionRule :exec
INSERT INTO commission_rules (id, scope, scope_id, applies_to, buyer_rate, seller_rate, enabled)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
SET scope       = EXCLUDED.scope,
    scope_id    = EXCLUDED.scope_id,
    applies_to  = EXCLUDED.applies_to,
    buyer_rate  = EXCLUDED.buyer_rate,
    seller_rate = EXCLUDED.seller_rate,
    enabled     = EXCLUDED.enabled
`

type UpsertCommissionRuleParams struct {
	ID         uuid.UUID     `json:"id"`
	Scope      string        `json:"scope"`
	ScopeID    uuid.NullUUID `json:"scope_id"`
	AppliesTo  string        `json:"applies_to"`
	BuyerRate  string        `json:"buyer_rate"`
	SellerRate string        `json:"seller_rate"`
	Enabled    bool          `json:"enabled"`
}

func (q *Queries) UpsertCommissionRule(ctx context.Context, arg UpsertCommissionRuleParams) error {
	_, err := q.db.ExecContext(ctx, upsertCommissionRule,
		arg.ID,
		arg.Scope,
		arg.ScopeID,
		arg.AppliesTo,
		arg.BuyerRate,
		arg.SellerRate,
		arg.Enabled,
	)
	return err
}
