package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	auctiondb "github.com/mcdev12/auctionhouse/go/internal/auction/db"
)

// ErrAlreadySent is returned by FetchByID when the row was relayed already.
var ErrAlreadySent = errors.New("outbox event already sent")

// Repository implements Store on top of the lot_outbox queries.
type Repository struct {
	queries *auctiondb.Queries
}

func NewRepository(queries *auctiondb.Queries) *Repository {
	return &Repository{queries: queries}
}

func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (OutboxEvent, error) {
	row, err := r.queries.FetchOutboxByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OutboxEvent{}, ErrAlreadySent
		}
		return OutboxEvent{}, fmt.Errorf("fetch outbox event: %w", err)
	}
	return fromRow(row), nil
}

func (r *Repository) FetchUnsent(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := r.queries.FetchUnsentOutbox(ctx, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("fetch unsent outbox: %w", err)
	}
	out := make([]OutboxEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	return r.queries.MarkOutboxSent(ctx, id)
}

func (r *Repository) CountUnsent(ctx context.Context) (int64, error) {
	return r.queries.CountUnsentOutbox(ctx)
}

func fromRow(row auctiondb.LotOutbox) OutboxEvent {
	return OutboxEvent{
		ID:        row.ID,
		LotID:     row.LotID,
		Version:   row.Version,
		EventType: row.EventType,
		Payload:   row.Payload,
		CreatedAt: row.CreatedAt,
	}
}
