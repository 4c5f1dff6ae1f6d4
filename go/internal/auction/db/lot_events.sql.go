package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const insertLotEvent = `-- name: InsertLotEvent :exec
INSERT INTO lot_events (id, lot_id, version, event_type, state, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

type InsertLotEventParams struct {
	ID         uuid.UUID             `json:"id"`
	LotID      uuid.UUID             `json:"lot_id"`
	Version    int64                 `json:"version"`
	EventType  string                `json:"event_type"`
	State      json.RawMessage       `json:"state"`
	Payload    pqtype.NullRawMessage `json:"payload"`
	OccurredAt time.Time             `json:"occurred_at"`
}

func (q *Queries) InsertLotEvent(ctx context.Context, arg InsertLotEventParams) error {
	_, err := q.db.ExecContext(ctx, insertLotEvent,
		arg.ID,
		arg.LotID,
		arg.Version,
		arg.EventType,
		arg.State,
		arg.Payload,
		arg.OccurredAt,
	)
	return err
}

const listLotEvents = `-- name: ListLotEvents :many
SELECT id, lot_id, version, event_type, state, payload, occurred_at
FROM lot_events
WHERE lot_id = $1
  AND version > $2
ORDER BY version, occurred_at, id
LIMIT $3
`

type ListLotEventsParams struct {
	LotID        uuid.UUID `json:"lot_id"`
	AfterVersion int64     `json:"after_version"`
	Limit        int32     `json:"limit"`
}

func (q *Queries) ListLotEvents(ctx context.Context, arg ListLotEventsParams) ([]LotEvent, error) {
	rows, err := q.db.QueryContext(ctx, listLotEvents, arg.LotID, arg.AfterVersion, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LotEvent
	for rows.Next() {
		var i LotEvent
		if err := rows.Scan(
			&i.ID,
			&i.LotID,
			&i.Version,
			&i.EventType,
			&i.State,
			&i.Payload,
			&i.OccurredAt,
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
