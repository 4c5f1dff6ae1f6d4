package auction

import (
	"sort"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/models"
)

// RankBids derives the bid ranking of a lot: retracted bids are dropped, each
// bidder keeps only their highest bid (the earliest one among equal amounts),
// and rows are ordered by amount desc, then placement time asc.
func RankBids(bids []models.Bid) []models.RankedBid {
	best := make(map[uuid.UUID]models.Bid, len(bids))
	for _, b := range bids {
		if b.Retracted {
			continue
		}
		cur, ok := best[b.BidderID]
		if !ok || b.Amount.GreaterThan(cur.Amount) ||
			(b.Amount.Equal(cur.Amount) && b.PlacedAt.Before(cur.PlacedAt)) {
			best[b.BidderID] = b
		}
	}

	ranked := make([]models.RankedBid, 0, len(best))
	for _, b := range best {
		ranked = append(ranked, models.RankedBid{Bid: b})
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if !a.Amount.Equal(b.Amount) {
			return a.Amount.GreaterThan(b.Amount)
		}
		if !a.PlacedAt.Equal(b.PlacedAt) {
			return a.PlacedAt.Before(b.PlacedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
