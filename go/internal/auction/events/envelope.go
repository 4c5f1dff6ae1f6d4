package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/auctionhouse/go/internal/models"
)

const (
	// StreamName is the JetStream stream carrying lot events.
	StreamName = "LOT_EVENTS"
	// SubjectPrefix prefixes every lot event subject.
	SubjectPrefix = "lot.events"
)

// Envelope is the wire format of a lot event on the broker. Event holds the
// JSON encoded models.LotEvent, including its version and post-change state.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	LotID     string          `json:"lot_id"`
	Version   int64           `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Event     json.RawMessage `json:"event"`
}

// Subject returns the broker subject for an event type under prefix.
func Subject(prefix, eventType string) string {
	return fmt.Sprintf("%s.%s", prefix, eventType)
}

// FrameKind tells websocket clients what a Frame carries.
type FrameKind string

const (
	FrameSnapshot FrameKind = "snapshot"
	FrameEvent    FrameKind = "event"
)

// Frame is one websocket message sent to lot subscribers. A snapshot frame is
// sent on connect, event frames follow.
type Frame struct {
	Kind     FrameKind           `json:"kind"`
	Event    *models.LotEvent    `json:"event,omitempty"`
	Snapshot *models.LotSnapshot `json:"snapshot,omitempty"`
}
