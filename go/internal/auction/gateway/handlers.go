package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/auction"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// LotEngine is the part of the auction engine the HTTP API calls.
type LotEngine interface {
	CreateLot(ctx context.Context, req models.CreateLotRequest) (*models.Lot, error)
	PlaceBid(ctx context.Context, lotID, bidderID uuid.UUID, amount decimal.Decimal) (*auction.BidResult, error)
	RetractBid(ctx context.Context, lotID, bidID, bidderID uuid.UUID) (*models.LotSnapshot, error)
	Close(ctx context.Context, lotID uuid.UUID) (*auction.CloseResult, error)
	Cancel(ctx context.Context, lotID uuid.UUID, reason string) (*models.LotSnapshot, error)
	Snapshot(ctx context.Context, lotID uuid.UUID) (*models.LotSnapshot, error)
	GetLot(ctx context.Context, lotID uuid.UUID) (*models.Lot, error)
	GetSettlement(ctx context.Context, lotID uuid.UUID) (*models.Settlement, error)
	Ranking(ctx context.Context, lotID uuid.UUID) ([]models.RankedBid, error)
	Events(ctx context.Context, lotID uuid.UUID, afterVersion int64, limit int) ([]models.LotEvent, error)
}

// LotTracker is told about new lots so their deadlines are armed.
type LotTracker interface {
	Track(lot *models.Lot)
}

// API serves the lot REST endpoints.
type API struct {
	engine  LotEngine
	cache   SnapshotCache
	clock   auction.Clock
	tracker LotTracker
}

// NewAPI creates the REST handlers. cache and tracker may be nil.
func NewAPI(engine LotEngine, cache SnapshotCache, clock auction.Clock, tracker LotTracker) *API {
	return &API{engine: engine, cache: cache, clock: clock, tracker: tracker}
}

// RegisterRoutes registers the REST routes on mux
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/time", a.HandleTime)
	mux.HandleFunc("POST /api/lots", a.HandleCreateLot)
	mux.HandleFunc("GET /api/lots/{id}", a.HandleGetLot)
	mux.HandleFunc("GET /api/lots/{id}/snapshot", a.HandleSnapshot)
	mux.HandleFunc("POST /api/lots/{id}/bids", a.HandlePlaceBid)
	mux.HandleFunc("DELETE /api/lots/{id}/bids/{bidID}", a.HandleRetractBid)
	mux.HandleFunc("POST /api/lots/{id}/close", a.HandleClose)
	mux.HandleFunc("POST /api/lots/{id}/cancel", a.HandleCancel)
	mux.HandleFunc("GET /api/lots/{id}/settlement", a.HandleSettlement)
	mux.HandleFunc("GET /api/lots/{id}/ranking", a.HandleRanking)
	mux.HandleFunc("GET /api/lots/{id}/events", a.HandleEvents)
}

// TimeResponse is the authoritative time source used by clock reconciliation.
type TimeResponse struct {
	ServerTime time.Time `json:"server_time"`
}

type placeBidRequest struct {
	BidderID uuid.UUID       `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type retractBidRequest struct {
	BidderID uuid.UUID `json:"bidder_id"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string           `json:"error"`
	Code    string           `json:"code"`
	Minimum *decimal.Decimal `json:"minimum,omitempty"`
}

func (a *API) HandleTime(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, TimeResponse{ServerTime: a.clock.Now().UTC()})
}

func (a *API) HandleCreateLot(w http.ResponseWriter, r *http.Request) {
	var req models.CreateLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	lot, err := a.engine.CreateLot(r.Context(), req)
	if err != nil {
		a.handleEngineError(w, r, err)
		return
	}
	if a.tracker != nil {
		a.tracker.Track(lot)
	}
	writeJSON(w, http.StatusCreated, lot)
}

func (a *API) HandleGetLot(w http.ResponseWriter, r *http.Request) {
	lotID, ok := pathLotID(w, r)
	if !ok {
		return
	}
	lot, err := a.engine.GetLot(r.Context(), lotID)
	if err != nil {
		a.handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lot)
}

// HandleSnapshot serves the high-frequency polling read. Cached snapshots are
// served with a fresh server time.
func (a *API) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	lotID, ok := pathLotID(w, r)
	if !ok {
		return
	}
	w.Header().Set("Cache-Control", "no-store")

	if a.cache != nil {
		snap, err := a.cache.Get(r.Context(), lotID)
		if err == nil {
			snap.ServerTime = a.clock.Now().UTC()
			writeJSON(w, http.StatusOK, snap)
			return
		}
		if !errors.Is(err, ErrCacheMiss) {
			log.Warn().Err(err).Str("lot_id", lotID.String()).Msg("snapshot cache read failed")
		}
	}

	snap, err := a.engine.Snapshot(r.Context(), lotID)
	if err != nil {
		a.handleEngineError(w, r, err)
		return
	}
	if a.cache != nil {
		if err := a.cache.Put(r.Context(), *snap); err != nil {
			log.Warn().Err(err).Str("lot_id", lotID.String()).Msg("snapshot cache write failed")
		}
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) HandlePlaceBid(w http.ResponseWriter, r *http.Request) {
	lotID, ok := pathLotID(w, r)
	if !ok {
		return
	}
	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.BidderID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "bad_request", "bidder_id is required")
		return
	}

	res, err := a.engine.PlaceBid(r.Context(), lotID, req.BidderID, req.Amount)
	if err != nil {
		a.handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) HandleRetractBid(w http.ResponseWriter, r *http.Request) {
	lotID, ok := pathLotID(w, r)
	if !ok {
		return
	}
	bidID, err := uuid.Parse(r.PathValue("bidID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid bid id")
		return
	}
	var req retractBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BidderID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "bad_request", "bidder_id is required")
		return
	}

	snap, err := a.engine.RetractBid(r.Context(), lotID, bidID, req.BidderID)
	if err != nil {
		a.handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) HandleClose(w http.ResponseWriter, r *http.Request) {
	lotID, ok := pathLotID(w, r)
	if !ok {
		return
	}
	res, err := a.engine.Close(r.Context(), lotID)
	if err != nil {
		a.handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) HandleCancel(w http.ResponseWriter, r *http.Request) {
	lotID, ok := pathLotID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
			return
		}
	}
	snap, err := a.engine.Cancel(r.Context(), lotID, req.Reason)
	if err != nil {
		a.handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) HandleSettlement(w http.ResponseWriter, r *http.Request) {
	lotID, ok := pathLotID(w, r)
	if !ok {
		return
	}
	s, err := a.engine.GetSettlement(r.Context(), lotID)
	if err != nil {
		a.handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) HandleRanking(w http.ResponseWriter, r *http.Request) {
	lotID, ok := pathLotID(w, r)
	if !ok {
		return
	}
	ranking, err := a.engine.Ranking(r.Context(), lotID)
	if err != nil {
		a.handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}

// HandleEvents returns events after ?after=N, at most ?limit=M.
func (a *API) HandleEvents(w http.ResponseWriter, r *http.Request) {
	lotID, ok := pathLotID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var after int64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "after must be a non-negative integer")
			return
		}
		after = n
	}
	var limit int
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	evs, err := a.engine.Events(r.Context(), lotID, after, limit)
	if err != nil {
		a.handleEngineError(w, r, err)
		return
	}
	if evs == nil {
		evs = []models.LotEvent{}
	}
	writeJSON(w, http.StatusOK, evs)
}

// handleEngineError maps engine errors to status codes. Expected outcomes are
// not logged as errors.
func (a *API) handleEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if rej, ok := auction.AsRejection(err); ok {
		resp := ErrorResponse{Error: rej.Error(), Code: string(rej.Reason)}
		if rej.Reason == auction.RejectBelowMinimum {
			minimum := rej.Minimum
			resp.Minimum = &minimum
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	switch {
	case errors.Is(err, auction.ErrContended):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "contended", err.Error())
	case errors.Is(err, auction.ErrLotNotFound):
		writeError(w, http.StatusNotFound, "lot_not_found", err.Error())
	case errors.Is(err, auction.ErrBidNotFound):
		writeError(w, http.StatusNotFound, "bid_not_found", err.Error())
	case errors.Is(err, auction.ErrNotYetClosed):
		writeError(w, http.StatusNotFound, "not_yet_closed", err.Error())
	case errors.Is(err, auction.ErrNoSettlement):
		writeError(w, http.StatusNotFound, "no_settlement", err.Error())
	case errors.Is(err, auction.ErrNotDue):
		writeError(w, http.StatusConflict, "not_due", err.Error())
	case errors.Is(err, auction.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, auction.ErrInvalidLot):
		writeError(w, http.StatusBadRequest, "invalid_lot", err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "cancelled", "request cancelled")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func pathLotID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid lot id")
		return uuid.Nil, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
