package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/auction"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/rs/zerolog/log"
)

// SnapshotSource provides the snapshot sent when a client connects.
type SnapshotSource interface {
	Snapshot(ctx context.Context, lotID uuid.UUID) (*models.LotSnapshot, error)
}

// WebSocketHandler handles WebSocket upgrade requests for lot subscriptions
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	snapshots         SnapshotSource
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, snapshots SnapshotSource) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		snapshots:         snapshots,
	}
}

// HandleLotConnection handles GET /ws/lots?lot_id=...&bidder_id=...
func (h *WebSocketHandler) HandleLotConnection(w http.ResponseWriter, r *http.Request) {
	lotIDStr := r.URL.Query().Get("lot_id")
	if lotIDStr == "" {
		http.Error(w, "lot_id is required", http.StatusBadRequest)
		return
	}
	lotID, err := uuid.Parse(lotIDStr)
	if err != nil {
		http.Error(w, "invalid lot_id format", http.StatusBadRequest)
		return
	}

	bidderID := r.URL.Query().Get("bidder_id")
	if bidderID == "" {
		bidderID = "anonymous"
	}

	var initial *models.LotSnapshot
	if h.snapshots != nil {
		initial, err = h.snapshots.Snapshot(r.Context(), lotID)
		if err != nil {
			if errors.Is(err, auction.ErrLotNotFound) {
				http.Error(w, "lot not found", http.StatusNotFound)
				return
			}
			log.Warn().Err(err).Str("lot_id", lotID.String()).Msg("initial snapshot unavailable")
			initial = nil
		}
	}

	if err := h.connectionManager.UpgradeConnection(w, r, bidderID, lotID, initial); err != nil {
		// the upgrader has already replied to the client
		log.Warn().
			Err(err).
			Str("lot_id", lotID.String()).
			Str("bidder_id", bidderID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/lots", h.HandleLotConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
