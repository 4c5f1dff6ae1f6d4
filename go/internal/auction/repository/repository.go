package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/auction"
	auctiondb "github.com/mcdev12/auctionhouse/go/internal/auction/db"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/mcdev12/auctionhouse/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

var (
	_ auction.LotRepository    = (*Repository)(nil)
	_ auction.CommissionLookup = (*Repository)(nil)
)

// Repository handles database operations for lots, bids, events and settlements
type Repository struct {
	db      *sql.DB
	queries *auctiondb.Queries
}

// NewRepository creates a new lot repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:      db,
		queries: auctiondb.New(db),
	}
}

// CreateLot inserts a new lot
func (r *Repository) CreateLot(ctx context.Context, lot *models.Lot) error {
	policy, err := json.Marshal(lot.Policy)
	if err != nil {
		return fmt.Errorf("failed to marshal extension policy: %w", err)
	}
	err = r.queries.CreateLot(ctx, auctiondb.CreateLotParams{
		ID:              lot.ID,
		SellerID:        lot.SellerID,
		StoreID:         sqlutil.ToNullUUID(lot.StoreID),
		Title:           lot.Title,
		StartingPrice:   lot.StartingPrice.String(),
		ReservePrice:    sqlutil.ToNullDecimal(lot.ReservePrice),
		BuyNowPrice:     sqlutil.ToNullDecimal(lot.BuyNowPrice),
		MinIncrement:    lot.MinIncrement.String(),
		StartAt:         lot.StartAt,
		CloseAt:         lot.CloseAt,
		OriginalCloseAt: lot.OriginalCloseAt,
		Status:          string(lot.Status),
		CurrentPrice:    lot.CurrentPrice.String(),
		TotalBids:       int32(lot.TotalBids),
		Version:         lot.Version,
		ExtensionCount:  int32(lot.ExtensionCount),
		Policy:          policy,
		CreatedAt:       lot.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to create lot: %w", err)
	}
	return nil
}

// GetLot retrieves a lot by ID
func (r *Repository) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	row, err := r.queries.GetLot(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auction.ErrLotNotFound
		}
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}
	return lotFromRow(row)
}

// ListBids returns every bid of a lot, retracted ones included
func (r *Repository) ListBids(ctx context.Context, lotID uuid.UUID) ([]models.Bid, error) {
	rows, err := r.queries.ListBidsByLot(ctx, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	bids := make([]models.Bid, 0, len(rows))
	for _, row := range rows {
		amount, err := sqlutil.ToDecimal(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("bid %s amount: %w", row.ID, err)
		}
		bids = append(bids, models.Bid{
			ID:        row.ID,
			LotID:     row.LotID,
			BidderID:  row.BidderID,
			Amount:    amount,
			PlacedAt:  row.PlacedAt,
			Retracted: row.Retracted,
		})
	}
	return bids, nil
}

// ApplyMutation writes the new lot state, the bid change, the audit events
// and their outbox rows in one transaction guarded by the expected version.
func (r *Repository) ApplyMutation(ctx context.Context, m auction.Mutation) error {
	lot := m.Lot
	return sqlutil.Run(ctx, r.db, r.queries.WithTx, func(q *auctiondb.Queries) error {
		n, err := q.UpdateLotState(ctx, auctiondb.UpdateLotStateParams{
			ID:              lot.ID,
			ExpectedVersion: m.ExpectedVersion,
			Status:          string(lot.Status),
			CurrentPrice:    lot.CurrentPrice.String(),
			WinnerID:        sqlutil.ToNullUUID(lot.WinnerID),
			TotalBids:       int32(lot.TotalBids),
			CloseAt:         lot.CloseAt,
			ExtensionCount:  int32(lot.ExtensionCount),
			Version:         lot.Version,
			ClosedAt:        sqlutil.ToSqlTime(lot.ClosedAt),
			UpdatedAt:       lot.UpdatedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to update lot: %w", err)
		}
		if n == 0 {
			return auction.ErrVersionConflict
		}

		if b := m.NewBid; b != nil {
			err := q.InsertBid(ctx, auctiondb.InsertBidParams{
				ID:        b.ID,
				LotID:     b.LotID,
				BidderID:  b.BidderID,
				Amount:    b.Amount.String(),
				PlacedAt:  b.PlacedAt,
				Retracted: b.Retracted,
			})
			if err != nil {
				return fmt.Errorf("failed to insert bid: %w", err)
			}
		}

		if m.RetractBidID != nil {
			n, err := q.RetractBid(ctx, auctiondb.RetractBidParams{LotID: lot.ID, ID: *m.RetractBidID})
			if err != nil {
				return fmt.Errorf("failed to retract bid: %w", err)
			}
			if n == 0 {
				return auction.ErrBidNotFound
			}
		}

		for _, ev := range m.Events {
			if err := insertEvent(ctx, q, ev); err != nil {
				return err
			}
			if !ev.Type.Mutating() {
				continue
			}
			body, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("failed to marshal outbox event: %w", err)
			}
			err = q.InsertOutboxEvent(ctx, auctiondb.InsertOutboxEventParams{
				ID:        ev.ID,
				LotID:     ev.LotID,
				Version:   ev.Version,
				EventType: string(ev.Type),
				Payload:   body,
				CreatedAt: ev.OccurredAt,
			})
			if err != nil {
				return fmt.Errorf("failed to insert outbox event: %w", err)
			}
		}
		return nil
	})
}

// AppendEvents stores audit events that do not change the lot. They never
// reach the outbox.
func (r *Repository) AppendEvents(ctx context.Context, events []models.LotEvent) error {
	for _, ev := range events {
		if err := insertEvent(ctx, r.queries, ev); err != nil {
			return err
		}
	}
	return nil
}

func insertEvent(ctx context.Context, q *auctiondb.Queries, ev models.LotEvent) error {
	state, err := json.Marshal(ev.State)
	if err != nil {
		return fmt.Errorf("failed to marshal event state: %w", err)
	}
	err = q.InsertLotEvent(ctx, auctiondb.InsertLotEventParams{
		ID:         ev.ID,
		LotID:      ev.LotID,
		Version:    ev.Version,
		EventType:  string(ev.Type),
		State:      state,
		Payload:    pqtype.NullRawMessage{RawMessage: ev.Payload, Valid: len(ev.Payload) > 0},
		OccurredAt: ev.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to insert lot event: %w", err)
	}
	return nil
}

// ListEvents returns events with a version greater than afterVersion in version order
func (r *Repository) ListEvents(ctx context.Context, lotID uuid.UUID, afterVersion int64, limit int) ([]models.LotEvent, error) {
	rows, err := r.queries.ListLotEvents(ctx, auctiondb.ListLotEventsParams{
		LotID:        lotID,
		AfterVersion: afterVersion,
		Limit:        int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list lot events: %w", err)
	}
	events := make([]models.LotEvent, 0, len(rows))
	for _, row := range rows {
		var state models.LotState
		if err := json.Unmarshal(row.State, &state); err != nil {
			return nil, fmt.Errorf("event %s state: %w", row.ID, err)
		}
		ev := models.LotEvent{
			ID:         row.ID,
			LotID:      row.LotID,
			Version:    row.Version,
			Type:       models.LotEventType(row.EventType),
			State:      state,
			OccurredAt: row.OccurredAt,
		}
		if row.Payload.Valid {
			ev.Payload = row.Payload.RawMessage
		}
		events = append(events, ev)
	}
	return events, nil
}

// InsertSettlement stores a settlement once per lot
func (r *Repository) InsertSettlement(ctx context.Context, s models.Settlement) error {
	var warning *string
	if s.Warning != "" {
		warning = &s.Warning
	}
	n, err := r.queries.InsertSettlement(ctx, auctiondb.InsertSettlementParams{
		LotID:            s.LotID,
		WinnerID:         s.WinnerID,
		SellerID:         s.SellerID,
		HammerPrice:      s.HammerPrice.String(),
		BuyerRate:        s.BuyerRate.String(),
		SellerRate:       s.SellerRate.String(),
		BuyerCommission:  s.BuyerCommission.String(),
		BuyerTotal:       s.BuyerTotal.String(),
		SellerCommission: s.SellerCommission.String(),
		SellerNet:        s.SellerNet.String(),
		RuleID:           sqlutil.ToNullUUID(s.RuleID),
		Fallback:         s.Fallback,
		Warning:          sqlutil.ToSqlString(warning),
		BelowBuyNow:      s.BelowBuyNow,
		ComputedAt:       s.ComputedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	if n == 0 {
		return auction.ErrSettlementExists
	}
	return nil
}

// GetSettlement returns nil when the lot has no stored settlement
func (r *Repository) GetSettlement(ctx context.Context, lotID uuid.UUID) (*models.Settlement, error) {
	row, err := r.queries.GetSettlement(ctx, lotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return settlementFromRow(row)
}

func (r *Repository) FetchLotsDueForClose(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	ids, err := r.queries.FetchLotsDueForClose(ctx, auctiondb.FetchLotsDueParams{Now: now, Limit: int32(limit)})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lots due for close: %w", err)
	}
	return ids, nil
}

func (r *Repository) FetchLotsDueForActivation(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	ids, err := r.queries.FetchLotsDueForActivation(ctx, auctiondb.FetchLotsDueParams{Now: now, Limit: int32(limit)})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lots due for activation: %w", err)
	}
	return ids, nil
}

// ResolveCommissionRule loads the enabled auction rules for the seller and
// store and picks the most specific one.
func (r *Repository) ResolveCommissionRule(ctx context.Context, sellerID uuid.UUID, storeID *uuid.UUID) (*models.CommissionRule, error) {
	rows, err := r.queries.ListApplicableCommissionRules(ctx, auctiondb.ListApplicableCommissionRulesParams{
		SellerID: sellerID,
		StoreID:  sqlutil.ToNullUUID(storeID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list commission rules: %w", err)
	}
	rules := make([]models.CommissionRule, 0, len(rows))
	for _, row := range rows {
		rule, err := commissionRuleFromRow(row)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return auction.ResolveCommissionRule(rules, sellerID, storeID), nil
}

// PutCommissionRule inserts or replaces a rule by id
func (r *Repository) PutCommissionRule(ctx context.Context, rule models.CommissionRule) error {
	err := r.queries.UpsertCommissionRule(ctx, auctiondb.UpsertCommissionRuleParams{
		ID:         rule.ID,
		Scope:      string(rule.Scope),
		ScopeID:    sqlutil.ToNullUUID(rule.ScopeID),
		AppliesTo:  string(rule.AppliesTo),
		BuyerRate:  rule.BuyerRate.String(),
		SellerRate: rule.SellerRate.String(),
		Enabled:    rule.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert commission rule: %w", err)
	}
	return nil
}
