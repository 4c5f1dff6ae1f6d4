package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is one unsent row of lot_outbox. Payload is the JSON encoded
// models.LotEvent.
type OutboxEvent struct {
	ID        uuid.UUID
	LotID     uuid.UUID
	Version   int64
	EventType string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Publisher delivers an outbox event to the broker.
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// Store is the slice of the outbox table the relay needs.
type Store interface {
	FetchByID(ctx context.Context, id uuid.UUID) (OutboxEvent, error)
	FetchUnsent(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	CountUnsent(ctx context.Context) (int64, error)
}
