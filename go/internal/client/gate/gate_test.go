package gate

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/shopspring/decimal"
)

var testEpoch = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func bidEvent(lotID uuid.UUID, version int64, price string) models.LotEvent {
	return models.LotEvent{
		ID:      uuid.New(),
		LotID:   lotID,
		Version: version,
		Type:    models.LotEventBidPlaced,
		State: models.LotState{
			Status:    models.LotStatusActive,
			Price:     decimal.RequireFromString(price),
			TotalBids: int(version - 1),
		},
	}
}

func TestOfferDiscardsStale(t *testing.T) {
	g := New(clockwork.NewFakeClockAt(testEpoch))
	lot := uuid.New()

	steps := []struct {
		name    string
		event   models.LotEvent
		applied bool
		price   string
	}{
		{name: "first", event: bidEvent(lot, 3, "101000"), applied: true, price: "101000"},
		{name: "newer", event: bidEvent(lot, 5, "103000"), applied: true, price: "103000"},
		{name: "late arrival", event: bidEvent(lot, 4, "102000"), applied: false, price: "103000"},
		{name: "duplicate", event: bidEvent(lot, 5, "103000"), applied: false, price: "103000"},
		{name: "rejection", event: models.LotEvent{LotID: lot, Version: 9, Type: models.LotEventBidRejected}, applied: false, price: "103000"},
		{name: "next", event: bidEvent(lot, 6, "104000"), applied: true, price: "104000"},
	}
	for _, step := range steps {
		if got := g.Offer(step.event); got != step.applied {
			t.Fatalf("%s: want applied=%v got %v", step.name, step.applied, got)
		}
		view, _ := g.View(lot)
		if !view.Price.Equal(decimal.RequireFromString(step.price)) {
			t.Fatalf("%s: want price %s got %s", step.name, step.price, view.Price)
		}
	}
	if g.Highest(lot) != 6 {
		t.Fatalf("want highest 6 got %d", g.Highest(lot))
	}
	if g.Discarded() != 2 {
		t.Fatalf("want 2 stale discards got %d", g.Discarded())
	}
}

func TestResetUsesSameRule(t *testing.T) {
	g := New(clockwork.NewFakeClockAt(testEpoch))
	lot := uuid.New()
	g.Offer(bidEvent(lot, 7, "107000"))

	old := models.LotSnapshot{LotID: lot, Version: 6, LotState: models.LotState{Price: decimal.RequireFromString("106000")}}
	if g.Reset(old) {
		t.Fatalf("an older snapshot must not roll the view back")
	}
	fresh := models.LotSnapshot{LotID: lot, Version: 8, LotState: models.LotState{Status: models.LotStatusEnded, Price: decimal.RequireFromString("107000")}}
	if !g.Reset(fresh) {
		t.Fatalf("newer snapshot should apply")
	}
	if view, _ := g.View(lot); view.Status != models.LotStatusEnded || view.Version != 8 {
		t.Fatalf("unexpected view %+v", view)
	}

	g.Forget(lot)
	if _, ok := g.View(lot); ok {
		t.Fatalf("forgotten lot should have no view")
	}
	if !g.Reset(old) {
		t.Fatalf("after Forget any version applies")
	}
}

func TestLotsAreIndependent(t *testing.T) {
	g := New(clockwork.NewFakeClockAt(testEpoch))
	a, b := uuid.New(), uuid.New()
	g.Offer(bidEvent(a, 10, "110000"))
	if !g.Offer(bidEvent(b, 2, "100000")) {
		t.Fatalf("lot b must not be gated by lot a's version")
	}
}

func TestShuffledDeliveryConverges(t *testing.T) {
	g := New(clockwork.NewFakeClockAt(testEpoch))
	lot := uuid.New()
	var evs []models.LotEvent
	for v := int64(2); v <= 50; v++ {
		evs = append(evs, bidEvent(lot, v, decimal.NewFromInt(100000+v*1000).String()))
	}
	rng := rand.New(rand.NewSource(7))
	rng.Shuffle(len(evs), func(i, j int) { evs[i], evs[j] = evs[j], evs[i] })

	var wg sync.WaitGroup
	for _, ev := range evs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Offer(ev)
		}()
	}
	wg.Wait()

	view, _ := g.View(lot)
	if view.Version != 50 || !view.Price.Equal(decimal.NewFromInt(150000)) {
		t.Fatalf("view should settle on the newest event, got version %d price %s", view.Version, view.Price)
	}
}

func TestAppliedAtUsesGateClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	g := New(clock)
	lot := uuid.New()

	g.Offer(bidEvent(lot, 3, "101000"))
	if view, _ := g.View(lot); !view.AppliedAt.Equal(testEpoch) {
		t.Fatalf("want applied at %v got %v", testEpoch, view.AppliedAt)
	}

	clock.Advance(time.Second)
	g.Offer(bidEvent(lot, 3, "101000"))
	if view, _ := g.View(lot); !view.AppliedAt.Equal(testEpoch) {
		t.Fatalf("stale update must not restamp, got %v", view.AppliedAt)
	}

	clock.Advance(time.Second)
	g.Offer(bidEvent(lot, 4, "102000"))
	if view, _ := g.View(lot); !view.AppliedAt.Equal(testEpoch.Add(2 * time.Second)) {
		t.Fatalf("want applied at %v got %v", testEpoch.Add(2*time.Second), view.AppliedAt)
	}
}
