package client

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionhouse/go/internal/auction"
	"github.com/mcdev12/auctionhouse/go/internal/auction/gateway"
	"github.com/mcdev12/auctionhouse/go/internal/client/poll"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/shopspring/decimal"
)

var testEpoch = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type lotServer struct {
	engine  *auction.Engine
	clock   *clockwork.FakeClock
	service *gateway.Service
	server  *httptest.Server
	lot     *models.Lot
}

func newLotServer(t *testing.T) *lotServer {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	local := auction.NewLocalClock(clock)
	engine := auction.NewEngine(auction.NewMemoryRepository(), auction.NewStaticCommissions(), local, auction.Config{
		DefaultPolicy: models.ExtensionPolicy{Window: 30 * time.Second, Bonus: 15 * time.Second, MaxExtensions: 3},
	})
	svc := gateway.NewService(gateway.DefaultConfig(), engine, gateway.NewMemorySnapshotCache(), local, nil)
	engine.AddSink(svc.Connections())
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)

	lot, err := engine.CreateLot(context.Background(), models.CreateLotRequest{
		SellerID:      uuid.New(),
		Title:         "Eames lounge chair",
		StartingPrice: decimal.RequireFromString("100000"),
		MinIncrement:  decimal.RequireFromString("1000"),
		StartAt:       testEpoch,
		CloseAt:       testEpoch.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("create lot: %v", err)
	}
	if _, err := engine.Activate(context.Background(), lot.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	return &lotServer{engine: engine, clock: clock, service: svc, server: srv, lot: lot}
}

func (s *lotServer) bid(t *testing.T, amount string) {
	t.Helper()
	if _, err := s.engine.PlaceBid(context.Background(), s.lot.ID, uuid.New(), decimal.RequireFromString(amount)); err != nil {
		t.Fatalf("bid %s: %v", amount, err)
	}
}

type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (c *changeLog) record(ch Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, ch)
}

func (c *changeLog) snapshot() []Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Change(nil), c.changes...)
}

func startWatcher(t *testing.T, s *lotServer, log *changeLog) *Watcher {
	t.Helper()
	w := NewWatcher(Config{
		BaseURL:  s.server.URL,
		LotID:    s.lot.ID,
		BidderID: "watcher-test",
		Poll:     poll.DefaultConfig(),
	}, clockwork.NewFakeClockAt(testEpoch), log.record)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWatcherFollowsLot(t *testing.T) {
	s := newLotServer(t)
	var changes changeLog
	w := startWatcher(t, s, &changes)

	eventually(t, "initial state", func() bool {
		v, ok := w.View()
		return ok && v.Version == 2 && v.Status == models.LotStatusActive
	})
	eventually(t, "stream connected", func() bool { return s.service.Connections().Connections(s.lot.ID) == 1 })

	s.bid(t, "101000")
	s.bid(t, "102000")
	eventually(t, "pushed bids", func() bool {
		v, _ := w.View()
		return v.Version == 4 && v.Price.Equal(decimal.RequireFromString("102000"))
	})

	// A late bid extends the lot; the watcher switches to the extension band.
	s.clock.Advance(9*time.Minute + 55*time.Second)
	s.bid(t, "103000")
	eventually(t, "extension observed", func() bool {
		v, _ := w.View()
		return v.ExtensionCount == 1 && w.Band() == poll.BandExtension
	})

	s.clock.Advance(time.Minute)
	if _, err := s.engine.Close(context.Background(), s.lot.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	eventually(t, "closed lot goes idle", func() bool {
		v, _ := w.View()
		return v.Status == models.LotStatusEnded && w.Band() == poll.BandIdle
	})

	var versions []int64
	extended := 0
	for _, ch := range changes.snapshot() {
		versions = append(versions, ch.View.Version)
		if ch.Extended {
			extended++
		}
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Fatalf("applied versions must strictly increase, got %v", versions)
		}
	}
	if extended != 1 {
		t.Fatalf("want exactly one extended change, got %d", extended)
	}
}

func TestWatcherPollIgnoresOlderSnapshot(t *testing.T) {
	s := newLotServer(t)
	var changes changeLog
	w := NewWatcher(Config{BaseURL: s.server.URL, LotID: s.lot.ID}, clockwork.NewFakeClockAt(testEpoch), changes.record)

	s.bid(t, "101000")
	if err := w.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if err := w.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got := changes.snapshot(); len(got) != 1 || got[0].View.Version != 3 || got[0].Source != "poll" {
		t.Fatalf("same snapshot should apply once, got %+v", got)
	}

	if _, err := w.api.Snapshot(context.Background(), uuid.New()); err == nil {
		t.Fatalf("unknown lot should fail")
	}
}

func TestWatcherRemainingUsesReconciledTime(t *testing.T) {
	s := newLotServer(t)
	local := clockwork.NewFakeClockAt(testEpoch.Add(-90 * time.Second))
	w := NewWatcher(Config{BaseURL: s.server.URL, LotID: s.lot.ID}, local, nil)

	if err := w.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if err := w.Reconciler().Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	// The local clock runs 90s slow; remaining time must still be ten minutes.
	if got := w.Remaining(); got != 10*time.Minute {
		t.Fatalf("want 10m remaining got %v", got)
	}
}
