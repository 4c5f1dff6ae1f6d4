package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/shopspring/decimal"
)

// AuctionClient talks to the lot REST API.
type AuctionClient struct {
	*BaseClient
}

func NewAuctionClient(baseURL string) *AuctionClient {
	return &AuctionClient{BaseClient: NewBaseClient(baseURL)}
}

// ServerTime returns the authoritative time reported by GET /api/time.
func (c *AuctionClient) ServerTime(ctx context.Context) (time.Time, error) {
	body, err := c.Get(ctx, "/api/time")
	if err != nil {
		return time.Time{}, err
	}
	var resp struct {
		ServerTime time.Time `json:"server_time"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode server time: %w", err)
	}
	return resp.ServerTime, nil
}

func (c *AuctionClient) Snapshot(ctx context.Context, lotID uuid.UUID) (*models.LotSnapshot, error) {
	body, err := c.Get(ctx, "/api/lots/"+lotID.String()+"/snapshot")
	if err != nil {
		return nil, err
	}
	var snap models.LotSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// BidResponse mirrors the engine's BidResult for an accepted bid.
type BidResponse struct {
	Bid      models.Bid         `json:"bid"`
	Snapshot models.LotSnapshot `json:"snapshot"`
}

func (c *AuctionClient) PlaceBid(ctx context.Context, lotID, bidderID uuid.UUID, amount decimal.Decimal) (*BidResponse, error) {
	payload, err := json.Marshal(map[string]string{
		"bidder_id": bidderID.String(),
		"amount":    amount.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode bid: %w", err)
	}
	body, err := c.Post(ctx, "/api/lots/"+lotID.String()+"/bids", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	var resp BidResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode bid response: %w", err)
	}
	return &resp, nil
}
