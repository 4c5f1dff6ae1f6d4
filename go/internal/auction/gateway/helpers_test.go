package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionhouse/go/internal/auction"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/shopspring/decimal"
)

var testEpoch = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type testGateway struct {
	engine  *auction.Engine
	clock   *clockwork.FakeClock
	cache   *MemorySnapshotCache
	service *Service
	server  *httptest.Server
	seller  uuid.UUID
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	rule := models.CommissionRule{
		ID:         uuid.New(),
		Scope:      models.CommissionScopeGlobal,
		AppliesTo:  models.CommissionAppliesAuction,
		BuyerRate:  decimal.RequireFromString("0.10"),
		SellerRate: decimal.RequireFromString("0.05"),
		Enabled:    true,
	}
	engine := auction.NewEngine(auction.NewMemoryRepository(), auction.NewStaticCommissions(rule), auction.NewLocalClock(clock), auction.Config{
		DefaultPolicy: models.ExtensionPolicy{Window: 30 * time.Second, Bonus: 15 * time.Second, MaxExtensions: 3},
	})
	cache := NewMemorySnapshotCache()
	svc := NewService(DefaultConfig(), engine, cache, auction.NewLocalClock(clock), nil)
	engine.AddSink(NewCacheSink(cache))
	engine.AddSink(svc.Connections())

	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return &testGateway{engine: engine, clock: clock, cache: cache, service: svc, server: srv, seller: uuid.New()}
}

// activeLot creates a lot open for ten minutes at 100000 with a 1000 increment.
func (g *testGateway) activeLot(t *testing.T) *models.Lot {
	t.Helper()
	now := g.clock.Now()
	lot, err := g.engine.CreateLot(context.Background(), models.CreateLotRequest{
		SellerID:      g.seller,
		Title:         "Leica M3",
		StartingPrice: decimal.RequireFromString("100000"),
		MinIncrement:  decimal.RequireFromString("1000"),
		StartAt:       now,
		CloseAt:       now.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("create lot: %v", err)
	}
	if _, err := g.engine.Activate(context.Background(), lot.ID); err != nil {
		t.Fatalf("activate lot: %v", err)
	}
	return lot
}

func (g *testGateway) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, g.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func bidBody(bidder uuid.UUID, amount string) map[string]string {
	return map[string]string{"bidder_id": bidder.String(), "amount": amount}
}
