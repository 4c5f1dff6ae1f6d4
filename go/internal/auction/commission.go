package auction

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/models"
)

// CommissionLookup returns the rule that applies to a lot's seller and store,
// or nil when none is configured.
type CommissionLookup interface {
	ResolveCommissionRule(ctx context.Context, sellerID uuid.UUID, storeID *uuid.UUID) (*models.CommissionRule, error)
}

// ResolveCommissionRule picks the single rule that applies to an auction sale:
// a seller-scoped rule wins over a store-scoped rule, which wins over a global
// rule. Rules that are disabled or do not cover auctions are skipped.
func ResolveCommissionRule(rules []models.CommissionRule, sellerID uuid.UUID, storeID *uuid.UUID) *models.CommissionRule {
	var seller, store, global *models.CommissionRule
	for i := range rules {
		r := &rules[i]
		if !r.CoversAuctions() {
			continue
		}
		switch r.Scope {
		case models.CommissionScopeSeller:
			if seller == nil && r.ScopeID != nil && *r.ScopeID == sellerID {
				seller = r
			}
		case models.CommissionScopeStore:
			if store == nil && storeID != nil && r.ScopeID != nil && *r.ScopeID == *storeID {
				store = r
			}
		case models.CommissionScopeGlobal:
			if global == nil {
				global = r
			}
		}
	}

	var picked *models.CommissionRule
	switch {
	case seller != nil:
		picked = seller
	case store != nil:
		picked = store
	case global != nil:
		picked = global
	default:
		return nil
	}
	out := *picked
	return &out
}

// StaticCommissions is an in-memory CommissionLookup.
type StaticCommissions struct {
	mu    sync.RWMutex
	rules []models.CommissionRule
}

// NewStaticCommissions creates a lookup over a fixed rule set.
func NewStaticCommissions(rules ...models.CommissionRule) *StaticCommissions {
	return &StaticCommissions{rules: append([]models.CommissionRule(nil), rules...)}
}

// Put adds or replaces a rule by id.
func (s *StaticCommissions) Put(rule models.CommissionRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == rule.ID {
			s.rules[i] = rule
			return
		}
	}
	s.rules = append(s.rules, rule)
}

func (s *StaticCommissions) ResolveCommissionRule(_ context.Context, sellerID uuid.UUID, storeID *uuid.UUID) (*models.CommissionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ResolveCommissionRule(s.rules, sellerID, storeID), nil
}
