package clocksync

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mcdev12/auctionhouse/go/clients"
)

// HTTPSource reads server time from the gateway's GET /api/time.
type HTTPSource struct {
	client *clients.AuctionClient
}

func NewHTTPSource(client *clients.AuctionClient) *HTTPSource {
	return &HTTPSource{client: client}
}

func (s *HTTPSource) ServerTime(ctx context.Context) (time.Time, error) {
	t, err := s.client.ServerTime(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("fetch server time: %w", err)
	}
	return t, nil
}

// SQLSource uses the database clock as the authority, for processes that
// share Postgres with the engine.
type SQLSource struct {
	db *sql.DB
}

func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

func (s *SQLSource) ServerTime(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.db.QueryRowContext(ctx, "SELECT now()").Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("query database time: %w", err)
	}
	return now, nil
}
