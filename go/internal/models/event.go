package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// LotEventType defines the kind of an audit record.
type LotEventType string

const (
	LotEventBidPlaced     LotEventType = "bid_placed"
	LotEventBidRejected   LotEventType = "bid_rejected"
	LotEventBidRetracted  LotEventType = "bid_retracted"
	LotEventTimerExtended LotEventType = "timer_extended"
	LotEventActivated     LotEventType = "lot_activated"
	LotEventClosed        LotEventType = "lot_closed"
	LotEventCancelled     LotEventType = "lot_cancelled"
)

// Mutating reports whether events of this type accompany a version bump.
func (t LotEventType) Mutating() bool {
	return t != LotEventBidRejected
}

// LotEvent is an immutable, append-only audit record. Events produced by the
// same mutation share the lot version; State is the lot state after that mutation.
type LotEvent struct {
	ID         uuid.UUID       `json:"id"`
	LotID      uuid.UUID       `json:"lot_id"`
	Version    int64           `json:"version"`
	Type       LotEventType    `json:"type"`
	State      LotState        `json:"state"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
