package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const lotColumns = `id, seller_id, store_id, title, starting_price, reserve_price, buy_now_price,
    min_increment, start_at, close_at, original_close_at, status, current_price, winner_id,
    total_bids, version, extension_count, policy, created_at, updated_at, closed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLot(row rowScanner) (Lot, error) {
	var i Lot
	err := row.Scan(
		&i.ID,
		&i.SellerID,
		&i.StoreID,
		&i.Title,
		&i.StartingPrice,
		&i.ReservePrice,
		&i.BuyNowPrice,
		&i.MinIncrement,
		&i.StartAt,
		&i.CloseAt,
		&i.OriginalCloseAt,
		&i.Status,
		&i.CurrentPrice,
		&i.WinnerID,
		&i.TotalBids,
		&i.Version,
		&i.ExtensionCount,
		&i.Policy,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.ClosedAt,
	)
	return i, err
}

const createLot = `-- name: CreateLot :exec
INSERT INTO lots (
    id, seller_id, store_id, title, starting_price, reserve_price, buy_now_price,
    min_increment, start_at, close_at, original_close_at, status, current_price,
    total_bids, version, extension_count, policy, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18
)
`

type CreateLotParams struct {
	ID              uuid.UUID       `json:"id"`
	SellerID        uuid.UUID       `json:"seller_id"`
	StoreID         uuid.NullUUID   `json:"store_id"`
	Title           string          `json:"title"`
	StartingPrice   string          `json:"starting_price"`
	ReservePrice    sql.NullString  `json:"reserve_price"`
	BuyNowPrice     sql.NullString  `json:"buy_now_price"`
	MinIncrement    string          `json:"min_increment"`
	StartAt         time.Time       `json:"start_at"`
	CloseAt         time.Time       `json:"close_at"`
	OriginalCloseAt time.Time       `json:"original_close_at"`
	Status          string          `json:"status"`
	CurrentPrice    string          `json:"current_price"`
	TotalBids       int32           `json:"total_bids"`
	Version         int64           `json:"version"`
	ExtensionCount  int32           `json:"extension_count"`
	Policy          json.RawMessage `json:"policy"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (q *Queries) CreateLot(ctx context.Context, arg CreateLotParams) error {
	_, err := q.db.ExecContext(ctx, createLot,
		arg.ID,
		arg.SellerID,
		arg.StoreID,
		arg.Title,
		arg.StartingPrice,
		arg.ReservePrice,
		arg.BuyNowPrice,
		arg.MinIncrement,
		arg.StartAt,
		arg.CloseAt,
		arg.OriginalCloseAt,
		arg.Status,
		arg.CurrentPrice,
		arg.TotalBids,
		arg.Version,
		arg.ExtensionCount,
		arg.Policy,
		arg.CreatedAt,
	)
	return err
}

const getLot = `-- name: GetLot :one
SELECT ` + lotColumns + `
FROM lots
WHERE id = $1
`

func (q *Queries) GetLot(ctx context.Context, id uuid.UUID) (Lot, error) {
	row := q.db.QueryRowContext(ctx, getLot, id)
	return scanLot(row)
}

const updateLotState = `-- name: UpdateLotState :execrows
UPDATE lots
SET status          = $3,
    current_price   = $4,
    winner_id       = $5,
    total_bids      = $6,
    close_at        = $7,
    extension_count = $8,
    version         = $9,
    closed_at       = $10,
    updated_at      = $11
WHERE id = $1
  AND version = $2
`

type UpdateLotStateParams struct {
	ID              uuid.UUID     `json:"id"`
	ExpectedVersion int64         `json:"expected_version"`
	Status          string        `json:"status"`
	CurrentPrice    string        `json:"current_price"`
	WinnerID        uuid.NullUUID `json:"winner_id"`
	TotalBids       int32         `json:"total_bids"`
	CloseAt         time.Time     `json:"close_at"`
	ExtensionCount  int32         `json:"extension_count"`
	Version         int64         `json:"version"`
	ClosedAt        sql.NullTime  `json:"closed_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// UpdateLotState returns the number of rows written. Zero means the lot is
// missing or its version moved.
func (q *Queries) UpdateLotState(ctx context.Context, arg UpdateLotStateParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateLotState,
		arg.ID,
		arg.ExpectedVersion,
		arg.Status,
		arg.CurrentPrice,
		arg.WinnerID,
		arg.TotalBids,
		arg.CloseAt,
		arg.ExtensionCount,
		arg.Version,
		arg.ClosedAt,
		arg.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const fetchLotsDueForClose = `-- name: FetchLotsDueForClose :many
SELECT id
FROM lots
WHERE status = 'active'
  AND close_at <= $1
ORDER BY close_at
LIMIT $2
`

type FetchLotsDueParams struct {
	Now   time.Time `json:"now"`
	Limit int32     `json:"limit"`
}

func (q *Queries) FetchLotsDueForClose(ctx context.Context, arg FetchLotsDueParams) ([]uuid.UUID, error) {
	return q.fetchIDs(ctx, fetchLotsDueForClose, arg)
}

const fetchLotsDueForActivation = `-- name: FetchLotsDueForActivation :many
SELECT id
FROM lots
WHERE status = 'scheduled'
  AND start_at <= $1
ORDER BY start_at
LIMIT $2
`

func (q *Queries) FetchLotsDueForActivation(ctx context.Context, arg FetchLotsDueParams) ([]uuid.UUID, error) {
	return q.fetchIDs(ctx, fetchLotsDueForActivation, arg)
}

func (q *Queries) fetchIDs(ctx context.Context, query string, arg FetchLotsDueParams) ([]uuid.UUID, error) {
	rows, err := q.db.QueryContext(ctx, query, arg.Now, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
