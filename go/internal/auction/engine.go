package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionhouse/go/internal/auction/events"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	defaultLockWait   = 2 * time.Second
	defaultEventLimit = 500
)

// Clock is the engine's source of reconciled time.
type Clock interface {
	Now() time.Time
	// SafetyMargin widens deadline checks while the time source is degraded.
	SafetyMargin() time.Duration
}

type localClock struct {
	clockwork.Clock
}

func (localClock) SafetyMargin() time.Duration { return 0 }

// NewLocalClock adapts a clockwork clock for processes that are themselves
// the authoritative time source.
func NewLocalClock(c clockwork.Clock) Clock {
	return localClock{Clock: c}
}

// Mutation is one authoritative change to a lot, persisted atomically.
type Mutation struct {
	Lot             *models.Lot // state after the change, Version already bumped
	ExpectedVersion int64
	NewBid          *models.Bid
	RetractBidID    *uuid.UUID
	Events          []models.LotEvent
}

// LotRepository defines what the engine needs from the durable store.
type LotRepository interface {
	CreateLot(ctx context.Context, lot *models.Lot) error
	GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error)
	ListBids(ctx context.Context, lotID uuid.UUID) ([]models.Bid, error)
	// ApplyMutation fails with ErrVersionConflict when the stored version
	// differs from m.ExpectedVersion.
	ApplyMutation(ctx context.Context, m Mutation) error
	// AppendEvents stores non-mutating audit events.
	AppendEvents(ctx context.Context, events []models.LotEvent) error
	ListEvents(ctx context.Context, lotID uuid.UUID, afterVersion int64, limit int) ([]models.LotEvent, error)
	// InsertSettlement fails with ErrSettlementExists when one is already stored.
	InsertSettlement(ctx context.Context, s models.Settlement) error
	// GetSettlement returns nil without error when none is stored.
	GetSettlement(ctx context.Context, lotID uuid.UUID) (*models.Settlement, error)
	FetchLotsDueForClose(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	FetchLotsDueForActivation(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// EventSink receives lot events after they are persisted. Delivery is best
// effort; a failing sink never fails the mutation.
type EventSink interface {
	Publish(ctx context.Context, lotID uuid.UUID, events []models.LotEvent) error
}

// Config tunes the engine.
type Config struct {
	// LockWait bounds how long a caller waits for a lot's critical section.
	LockWait      time.Duration
	DefaultPolicy models.ExtensionPolicy
}

// BidResult is returned for an accepted bid.
type BidResult struct {
	Bid       models.Bid         `json:"bid"`
	Snapshot  models.LotSnapshot `json:"snapshot"`
	Extension ExtensionDecision  `json:"-"`
	Events    []models.LotEvent  `json:"events"`
}

// CloseResult is returned by Close. Settlement is nil when the lot had no
// winner or missed its reserve.
type CloseResult struct {
	Snapshot   models.LotSnapshot `json:"snapshot"`
	Settlement *models.Settlement `json:"settlement,omitempty"`
}

// Engine is the auction state machine. It is the only writer of a lot's
// price, winner, close time and version.
type Engine struct {
	repo        LotRepository
	commissions CommissionLookup
	clock       Clock
	locks       *lotLocks
	hub         *Hub
	sinks       []EventSink
	cfg         Config
}

// NewEngine creates a new Engine
func NewEngine(repo LotRepository, commissions CommissionLookup, clock Clock, cfg Config) *Engine {
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	if commissions == nil {
		commissions = NewStaticCommissions()
	}
	return &Engine{
		repo:        repo,
		commissions: commissions,
		clock:       clock,
		locks:       newLotLocks(),
		hub:         NewHub(defaultSubscriberBuffer),
		cfg:         cfg,
	}
}

// AddSink registers an additional event sink. A sink already registered is
// ignored. Not safe to call once the engine is serving traffic.
func (e *Engine) AddSink(sink EventSink) {
	for _, existing := range e.sinks {
		if existing == sink {
			return
		}
	}
	e.sinks = append(e.sinks, sink)
}

// Hub returns the in-process event hub.
func (e *Engine) Hub() *Hub {
	return e.hub
}

// CreateLot validates and stores a new scheduled lot.
func (e *Engine) CreateLot(ctx context.Context, req models.CreateLotRequest) (*models.Lot, error) {
	if err := validateCreateLotRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLot, err)
	}

	policy := e.cfg.DefaultPolicy
	if req.Policy != nil {
		policy = *req.Policy
	}
	if err := validatePolicy(policy); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLot, err)
	}

	now := e.clock.Now().UTC()
	lot := &models.Lot{
		ID:              uuid.New(),
		SellerID:        req.SellerID,
		StoreID:         req.StoreID,
		Title:           req.Title,
		StartingPrice:   req.StartingPrice,
		ReservePrice:    req.ReservePrice,
		BuyNowPrice:     req.BuyNowPrice,
		MinIncrement:    req.MinIncrement,
		StartAt:         req.StartAt.UTC(),
		CloseAt:         req.CloseAt.UTC(),
		OriginalCloseAt: req.CloseAt.UTC(),
		Status:          models.LotStatusScheduled,
		CurrentPrice:    req.StartingPrice,
		Version:         1,
		Policy:          policy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.repo.CreateLot(ctx, lot); err != nil {
		return nil, fmt.Errorf("failed to create lot: %w", err)
	}

	log.Info().
		Str("lot_id", lot.ID.String()).
		Time("start_at", lot.StartAt).
		Time("close_at", lot.CloseAt).
		Msg("lot scheduled")
	return lot, nil
}

// PlaceBid validates and applies a bid atomically inside the lot's critical
// section. Rejections are returned as *RejectionError.
func (e *Engine) PlaceBid(ctx context.Context, lotID, bidderID uuid.UUID, amount decimal.Decimal) (*BidResult, error) {
	release, err := e.enter(ctx, lotID, "place_bid")
	if err != nil {
		return nil, err
	}
	result, err := e.placeBidLocked(ctx, lotID, bidderID, amount)
	release()
	if err != nil {
		return nil, err
	}

	e.publish(ctx, lotID, result.Events)
	return result, nil
}

func (e *Engine) placeBidLocked(ctx context.Context, lotID, bidderID uuid.UUID, amount decimal.Decimal) (*BidResult, error) {
	lot, err := e.repo.GetLot(ctx, lotID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now().UTC()
	if rej := ValidateBid(lot, bidderID, amount, now, e.clock.SafetyMargin()); rej != nil {
		e.recordRejection(ctx, lot, bidderID, amount, *rej, now)
		return nil, &RejectionError{Rejection: *rej}
	}

	next := lot.Clone()
	bid := models.Bid{
		ID:       uuid.New(),
		LotID:    lot.ID,
		BidderID: bidderID,
		Amount:   amount,
		PlacedAt: now,
	}
	winner := bidderID
	next.CurrentPrice = amount
	next.WinnerID = &winner
	next.TotalBids++
	next.Version++
	next.UpdatedAt = now

	decision := EvaluateExtension(lot, now)
	if decision.Extended {
		next.CloseAt = decision.NewCloseAt
		next.ExtensionCount++
	}

	state := next.State()
	evs := []models.LotEvent{
		newLotEvent(next, models.LotEventBidPlaced, state, now, events.BidPlacedPayload{
			BidID:         bid.ID.String(),
			BidderID:      bidderID.String(),
			Amount:        amount,
			PreviousPrice: lot.CurrentPrice,
			PlacedAt:      now,
			Extended:      decision.Extended,
		}),
	}
	if decision.Triggered {
		payload := events.TimerExtendedPayload{
			PreviousCloseAt: lot.CloseAt,
			CloseAt:         next.CloseAt,
			ExtensionCount:  next.ExtensionCount,
			Reason:          decision.Reason,
		}
		if decision.Extended {
			payload.ExtensionSec = lot.Policy.Bonus.Seconds()
		}
		evs = append(evs, newLotEvent(next, models.LotEventTimerExtended, state, now, payload))
	}

	err = e.repo.ApplyMutation(ctx, Mutation{
		Lot:             next,
		ExpectedVersion: lot.Version,
		NewBid:          &bid,
		Events:          evs,
	})
	if err != nil {
		return nil, e.mutationError(lotID, err, "failed to apply bid")
	}

	logEvent := log.Info().
		Str("lot_id", lotID.String()).
		Str("bidder_id", bidderID.String()).
		Str("amount", amount.String()).
		Int64("version", next.Version)
	if decision.Triggered {
		logEvent = logEvent.
			Bool("extended", decision.Extended).
			Time("close_at", next.CloseAt).
			Str("reason", decision.Reason)
	}
	logEvent.Msg("bid accepted")

	return &BidResult{
		Bid:       bid,
		Snapshot:  next.Snapshot(now),
		Extension: decision,
		Events:    evs,
	}, nil
}

// recordRejection appends a non-mutating audit event. Failure to store it
// never changes the outcome for the bidder.
func (e *Engine) recordRejection(ctx context.Context, lot *models.Lot, bidderID uuid.UUID, amount decimal.Decimal, rej Rejection, now time.Time) {
	log.Info().
		Str("lot_id", lot.ID.String()).
		Str("bidder_id", bidderID.String()).
		Str("amount", amount.String()).
		Str("reason", string(rej.Reason)).
		Int64("version", lot.Version).
		Msg("bid rejected")

	payload := events.BidRejectedPayload{
		BidderID: bidderID.String(),
		Amount:   amount,
		Reason:   string(rej.Reason),
		Minimum:  rej.Minimum,
	}
	ev := newLotEvent(lot, models.LotEventBidRejected, lot.State(), now, payload)
	if err := e.repo.AppendEvents(ctx, []models.LotEvent{ev}); err != nil {
		log.Warn().Err(err).Str("lot_id", lot.ID.String()).Msg("failed to record bid rejection")
	}
}

// RetractBid soft-deletes a bid. The leading bid cannot be retracted since
// that would lower the current price.
func (e *Engine) RetractBid(ctx context.Context, lotID, bidID, bidderID uuid.UUID) (*models.LotSnapshot, error) {
	release, err := e.enter(ctx, lotID, "retract_bid")
	if err != nil {
		return nil, err
	}
	snap, evs, err := e.retractBidLocked(ctx, lotID, bidID, bidderID)
	release()
	if err != nil {
		return nil, err
	}

	e.publish(ctx, lotID, evs)
	return snap, nil
}

func (e *Engine) retractBidLocked(ctx context.Context, lotID, bidID, bidderID uuid.UUID) (*models.LotSnapshot, []models.LotEvent, error) {
	lot, err := e.repo.GetLot(ctx, lotID)
	if err != nil {
		return nil, nil, err
	}
	if lot.Status != models.LotStatusActive {
		return nil, nil, fmt.Errorf("cannot retract bid on %s lot: %w", lot.Status, ErrInvalidTransition)
	}

	bids, err := e.repo.ListBids(ctx, lotID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list bids: %w", err)
	}
	var target *models.Bid
	for i := range bids {
		if bids[i].ID == bidID {
			target = &bids[i]
			break
		}
	}
	if target == nil || target.BidderID != bidderID || target.Retracted {
		return nil, nil, ErrBidNotFound
	}
	if lot.WinnerID != nil && *lot.WinnerID == bidderID && target.Amount.Equal(lot.CurrentPrice) {
		return nil, nil, fmt.Errorf("cannot retract the leading bid: %w", ErrInvalidTransition)
	}

	now := e.clock.Now().UTC()
	next := lot.Clone()
	next.Version++
	next.UpdatedAt = now
	ev := newLotEvent(next, models.LotEventBidRetracted, next.State(), now, events.BidRetractedPayload{
		BidID:    bidID.String(),
		BidderID: bidderID.String(),
	})

	err = e.repo.ApplyMutation(ctx, Mutation{
		Lot:             next,
		ExpectedVersion: lot.Version,
		RetractBidID:    &bidID,
		Events:          []models.LotEvent{ev},
	})
	if err != nil {
		return nil, nil, e.mutationError(lotID, err, "failed to retract bid")
	}

	log.Info().
		Str("lot_id", lotID.String()).
		Str("bid_id", bidID.String()).
		Int64("version", next.Version).
		Msg("bid retracted")

	snap := next.Snapshot(now)
	return &snap, []models.LotEvent{ev}, nil
}

// Activate moves a scheduled lot to active once its start time has passed.
// Activating an active lot is a no-op.
func (e *Engine) Activate(ctx context.Context, lotID uuid.UUID) (*models.LotSnapshot, error) {
	release, err := e.enter(ctx, lotID, "activate")
	if err != nil {
		return nil, err
	}
	snap, evs, err := e.activateLocked(ctx, lotID)
	release()
	if err != nil {
		return nil, err
	}

	e.publish(ctx, lotID, evs)
	return snap, nil
}

func (e *Engine) activateLocked(ctx context.Context, lotID uuid.UUID) (*models.LotSnapshot, []models.LotEvent, error) {
	lot, err := e.repo.GetLot(ctx, lotID)
	if err != nil {
		return nil, nil, err
	}
	now := e.clock.Now().UTC()

	switch lot.Status {
	case models.LotStatusActive:
		snap := lot.Snapshot(now)
		return &snap, nil, nil
	case models.LotStatusScheduled:
	default:
		return nil, nil, fmt.Errorf("cannot activate %s lot: %w", lot.Status, ErrInvalidTransition)
	}
	if now.Before(lot.StartAt) {
		return nil, nil, ErrNotDue
	}

	next := lot.Clone()
	next.Status = models.LotStatusActive
	next.Version++
	next.UpdatedAt = now
	ev := newLotEvent(next, models.LotEventActivated, next.State(), now, events.LotActivatedPayload{
		ActivatedAt: now,
		CloseAt:     next.CloseAt,
	})

	err = e.repo.ApplyMutation(ctx, Mutation{
		Lot:             next,
		ExpectedVersion: lot.Version,
		Events:          []models.LotEvent{ev},
	})
	if err != nil {
		return nil, nil, e.mutationError(lotID, err, "failed to activate lot")
	}

	log.Info().
		Str("lot_id", lotID.String()).
		Int64("version", next.Version).
		Time("close_at", next.CloseAt).
		Msg("lot activated")

	snap := next.Snapshot(now)
	return &snap, []models.LotEvent{ev}, nil
}

// Close ends an active lot whose close time has passed and produces its
// settlement exactly once. Closing an ended lot is a no-op that returns the
// stored settlement, deriving it first if an earlier close stopped short.
func (e *Engine) Close(ctx context.Context, lotID uuid.UUID) (*CloseResult, error) {
	release, err := e.enter(ctx, lotID, "close")
	if err != nil {
		return nil, err
	}
	result, evs, err := e.closeLocked(ctx, lotID)
	release()
	if err != nil {
		return nil, err
	}

	e.publish(ctx, lotID, evs)
	return result, nil
}

func (e *Engine) closeLocked(ctx context.Context, lotID uuid.UUID) (*CloseResult, []models.LotEvent, error) {
	lot, err := e.repo.GetLot(ctx, lotID)
	if err != nil {
		return nil, nil, err
	}
	now := e.clock.Now().UTC()

	var evs []models.LotEvent
	switch lot.Status {
	case models.LotStatusEnded:
		log.Debug().Str("lot_id", lotID.String()).Msg("lot already closed")
	case models.LotStatusActive:
		// A degraded clock may run ahead of the authoritative one, so the
		// deadline must have passed by at least the safety margin.
		if now.Add(-e.clock.SafetyMargin()).Before(lot.CloseAt) {
			return nil, nil, ErrNotDue
		}
		next := lot.Clone()
		next.Status = models.LotStatusEnded
		next.ClosedAt = &now
		next.Version++
		next.UpdatedAt = now
		reserveMet := next.ReserveMet()
		payload := events.LotClosedPayload{
			ClosedAt:   now,
			FinalPrice: next.CurrentPrice,
			TotalBids:  next.TotalBids,
			ReserveMet: reserveMet,
			Extensions: next.ExtensionCount,
			Duration:   now.Sub(next.StartAt).String(),
		}
		if next.WinnerID != nil && reserveMet {
			payload.WinnerID = next.WinnerID.String()
		}
		ev := newLotEvent(next, models.LotEventClosed, next.State(), now, payload)

		err = e.repo.ApplyMutation(ctx, Mutation{
			Lot:             next,
			ExpectedVersion: lot.Version,
			Events:          []models.LotEvent{ev},
		})
		if err != nil {
			return nil, nil, e.mutationError(lotID, err, "failed to close lot")
		}

		log.Info().
			Str("lot_id", lotID.String()).
			Int64("version", next.Version).
			Str("final_price", next.CurrentPrice.String()).
			Bool("reserve_met", reserveMet).
			Int("extensions", next.ExtensionCount).
			Msg("lot closed")
		lot = next
		evs = append(evs, ev)
	default:
		return nil, nil, fmt.Errorf("cannot close %s lot: %w", lot.Status, ErrInvalidTransition)
	}

	settlement, err := e.settle(ctx, lot)
	if err != nil {
		// The lot is ended either way; a later Close or GetSettlement retries.
		log.Warn().Err(err).Str("lot_id", lotID.String()).Msg("settlement deferred")
	}
	return &CloseResult{Snapshot: lot.Snapshot(now), Settlement: settlement}, evs, nil
}

// settle stores the settlement of an ended lot once. It must run inside the
// lot's critical section.
func (e *Engine) settle(ctx context.Context, lot *models.Lot) (*models.Settlement, error) {
	if lot.WinnerID == nil || !lot.ReserveMet() {
		return nil, nil
	}

	existing, err := e.repo.GetSettlement(ctx, lot.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settlement: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	rule, err := e.commissions.ResolveCommissionRule(ctx, lot.SellerID, lot.StoreID)
	if err != nil {
		log.Warn().Err(err).Str("lot_id", lot.ID.String()).Msg("commission lookup failed, using fallback")
		rule = nil
	}

	computedAt := lot.UpdatedAt
	if lot.ClosedAt != nil {
		computedAt = *lot.ClosedAt
	}
	s := CalculateSettlement(lot, rule, computedAt)
	if s.Fallback {
		log.Warn().Str("lot_id", lot.ID.String()).Str("warning", s.Warning).Msg("settlement fallback")
	}

	if err := e.repo.InsertSettlement(ctx, s); err != nil {
		if errors.Is(err, ErrSettlementExists) {
			return e.repo.GetSettlement(ctx, lot.ID)
		}
		return nil, fmt.Errorf("failed to store settlement: %w", err)
	}

	log.Info().
		Str("lot_id", lot.ID.String()).
		Str("hammer_price", s.HammerPrice.String()).
		Str("buyer_total", s.BuyerTotal.String()).
		Str("seller_net", s.SellerNet.String()).
		Msg("lot settled")
	return &s, nil
}

// Cancel moves a lot without bids to cancelled. Cancelling a cancelled lot is
// a no-op.
func (e *Engine) Cancel(ctx context.Context, lotID uuid.UUID, reason string) (*models.LotSnapshot, error) {
	release, err := e.enter(ctx, lotID, "cancel")
	if err != nil {
		return nil, err
	}
	snap, evs, err := e.cancelLocked(ctx, lotID, reason)
	release()
	if err != nil {
		return nil, err
	}

	e.publish(ctx, lotID, evs)
	return snap, nil
}

func (e *Engine) cancelLocked(ctx context.Context, lotID uuid.UUID, reason string) (*models.LotSnapshot, []models.LotEvent, error) {
	lot, err := e.repo.GetLot(ctx, lotID)
	if err != nil {
		return nil, nil, err
	}
	now := e.clock.Now().UTC()

	switch {
	case lot.Status == models.LotStatusCancelled:
		snap := lot.Snapshot(now)
		return &snap, nil, nil
	case lot.Status.IsTerminal():
		return nil, nil, fmt.Errorf("cannot cancel %s lot: %w", lot.Status, ErrInvalidTransition)
	case lot.TotalBids > 0:
		return nil, nil, fmt.Errorf("cannot cancel lot with %d bids: %w", lot.TotalBids, ErrInvalidTransition)
	}

	next := lot.Clone()
	next.Status = models.LotStatusCancelled
	next.Version++
	next.UpdatedAt = now
	ev := newLotEvent(next, models.LotEventCancelled, next.State(), now, events.LotCancelledPayload{
		CancelledAt: now,
		Reason:      reason,
	})

	err = e.repo.ApplyMutation(ctx, Mutation{
		Lot:             next,
		ExpectedVersion: lot.Version,
		Events:          []models.LotEvent{ev},
	})
	if err != nil {
		return nil, nil, e.mutationError(lotID, err, "failed to cancel lot")
	}

	log.Info().
		Str("lot_id", lotID.String()).
		Int64("version", next.Version).
		Str("reason", reason).
		Msg("lot cancelled")

	snap := next.Snapshot(now)
	return &snap, []models.LotEvent{ev}, nil
}

// Snapshot returns the lightweight polling view of a lot.
func (e *Engine) Snapshot(ctx context.Context, lotID uuid.UUID) (*models.LotSnapshot, error) {
	lot, err := e.repo.GetLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	snap := lot.Snapshot(e.clock.Now().UTC())
	return &snap, nil
}

// GetLot returns the full lot.
func (e *Engine) GetLot(ctx context.Context, lotID uuid.UUID) (*models.Lot, error) {
	return e.repo.GetLot(ctx, lotID)
}

// GetSettlement returns the settlement of an ended lot. ErrNotYetClosed is
// returned before close and ErrNoSettlement when the lot ended without a sale.
func (e *Engine) GetSettlement(ctx context.Context, lotID uuid.UUID) (*models.Settlement, error) {
	lot, err := e.repo.GetLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if lot.Status != models.LotStatusEnded {
		return nil, ErrNotYetClosed
	}

	s, err := e.repo.GetSettlement(ctx, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settlement: %w", err)
	}
	if s != nil {
		return s, nil
	}
	if lot.WinnerID == nil || !lot.ReserveMet() {
		return nil, ErrNoSettlement
	}

	// An earlier close stopped before storing it.
	res, err := e.Close(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if res.Settlement == nil {
		return nil, ErrNoSettlement
	}
	return res.Settlement, nil
}

// Ranking returns the derived bid ranking of a lot.
func (e *Engine) Ranking(ctx context.Context, lotID uuid.UUID) ([]models.RankedBid, error) {
	if _, err := e.repo.GetLot(ctx, lotID); err != nil {
		return nil, err
	}
	bids, err := e.repo.ListBids(ctx, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	return RankBids(bids), nil
}

// Events returns the audit trail of a lot after the given version, in version order.
func (e *Engine) Events(ctx context.Context, lotID uuid.UUID, afterVersion int64, limit int) ([]models.LotEvent, error) {
	if limit <= 0 || limit > defaultEventLimit {
		limit = defaultEventLimit
	}
	if _, err := e.repo.GetLot(ctx, lotID); err != nil {
		return nil, err
	}
	return e.repo.ListEvents(ctx, lotID, afterVersion, limit)
}

// Subscribe yields the lot's events as they are published. The sequence ends
// only when ctx is cancelled or the consumer stops ranging.
func (e *Engine) Subscribe(ctx context.Context, lotID uuid.UUID) iter.Seq[models.LotEvent] {
	return e.hub.Subscribe(ctx, lotID)
}

func (e *Engine) enter(ctx context.Context, lotID uuid.UUID, op string) (func(), error) {
	release, err := e.locks.acquire(ctx, lotID, e.cfg.LockWait)
	if err != nil {
		if errors.Is(err, ErrContended) {
			log.Warn().
				Str("lot_id", lotID.String()).
				Str("op", op).
				Dur("wait", e.cfg.LockWait).
				Msg("lot contended")
		}
		return nil, err
	}
	return release, nil
}

func (e *Engine) mutationError(lotID uuid.UUID, err error, msg string) error {
	if errors.Is(err, ErrVersionConflict) {
		log.Warn().Str("lot_id", lotID.String()).Msg("lot changed by another writer")
		return ErrContended
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (e *Engine) publish(ctx context.Context, lotID uuid.UUID, evs []models.LotEvent) {
	if len(evs) == 0 {
		return
	}
	_ = e.hub.Publish(ctx, lotID, evs)
	for _, sink := range e.sinks {
		if err := sink.Publish(ctx, lotID, evs); err != nil {
			log.Warn().Err(err).Str("lot_id", lotID.String()).Msg("event sink failed")
		}
	}
}

func newLotEvent(lot *models.Lot, typ models.LotEventType, state models.LotState, at time.Time, payload any) models.LotEvent {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(typ)).Msg("failed to marshal event payload")
		raw = nil
	}
	return models.LotEvent{
		ID:         uuid.New(),
		LotID:      lot.ID,
		Version:    lot.Version,
		Type:       typ,
		State:      state,
		Payload:    raw,
		OccurredAt: at,
	}
}

func validateCreateLotRequest(req models.CreateLotRequest) error {
	if req.SellerID == uuid.Nil {
		return fmt.Errorf("seller_id is required")
	}
	if req.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !req.StartingPrice.IsPositive() {
		return fmt.Errorf("starting_price must be positive")
	}
	if !req.MinIncrement.IsPositive() {
		return fmt.Errorf("min_increment must be positive")
	}
	if req.ReservePrice != nil && req.ReservePrice.LessThan(req.StartingPrice) {
		return fmt.Errorf("reserve_price must not be below starting_price")
	}
	if req.BuyNowPrice != nil && req.BuyNowPrice.LessThanOrEqual(req.StartingPrice) {
		return fmt.Errorf("buy_now_price must be above starting_price")
	}
	if req.StartAt.IsZero() || req.CloseAt.IsZero() {
		return fmt.Errorf("start_at and close_at are required")
	}
	if !req.CloseAt.After(req.StartAt) {
		return fmt.Errorf("close_at must be after start_at")
	}
	return nil
}

func validatePolicy(p models.ExtensionPolicy) error {
	if p.Window < 0 || p.Bonus < 0 {
		return fmt.Errorf("extension window and bonus must not be negative")
	}
	if p.MaxExtensions < 0 {
		return fmt.Errorf("max_extensions must not be negative")
	}
	if p.MaxTotalDuration < 0 {
		return fmt.Errorf("max_total_duration must not be negative")
	}
	return nil
}
