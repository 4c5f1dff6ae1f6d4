package auction

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/models"
)

func TestRankBids(t *testing.T) {
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	at := func(s int) time.Time { return testEpoch.Add(time.Duration(s) * time.Second) }

	bids := []models.Bid{
		{ID: uuid.New(), BidderID: alice, Amount: dec("101000"), PlacedAt: at(1)},
		{ID: uuid.New(), BidderID: bob, Amount: dec("103000"), PlacedAt: at(2)},
		{ID: uuid.New(), BidderID: alice, Amount: dec("105000"), PlacedAt: at(3)},
		{ID: uuid.New(), BidderID: carol, Amount: dec("105000"), PlacedAt: at(4)},
		{ID: uuid.New(), BidderID: bob, Amount: dec("110000"), PlacedAt: at(5), Retracted: true},
	}

	ranked := RankBids(bids)
	if len(ranked) != 3 {
		t.Fatalf("want 3 rows got %d", len(ranked))
	}

	want := []struct {
		bidder uuid.UUID
		amount string
	}{
		{alice, "105000"},
		{carol, "105000"},
		{bob, "103000"},
	}
	for i, w := range want {
		row := ranked[i]
		if row.Rank != i+1 {
			t.Fatalf("row %d rank want %d got %d", i, i+1, row.Rank)
		}
		if row.BidderID != w.bidder || !row.Amount.Equal(dec(w.amount)) {
			t.Fatalf("row %d want %s/%s got %s/%s", i, w.bidder, w.amount, row.BidderID, row.Amount)
		}
	}
}

func TestRankBidsEmpty(t *testing.T) {
	if got := RankBids(nil); len(got) != 0 {
		t.Fatalf("expected empty ranking, got %d rows", len(got))
	}
}
