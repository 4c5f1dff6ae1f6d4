package auction

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/models"
)

func TestHubFanOutPerLot(t *testing.T) {
	hub := NewHub(4)
	lotA, lotB := uuid.New(), uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collect := func(lotID uuid.UUID, want int) <-chan []models.LotEvent {
		out := make(chan []models.LotEvent, 1)
		go func() {
			var got []models.LotEvent
			for ev := range hub.Subscribe(ctx, lotID) {
				got = append(got, ev)
				if len(got) == want {
					break
				}
			}
			out <- got
		}()
		return out
	}

	first := collect(lotA, 2)
	second := collect(lotA, 2)
	eventually(t, "two subscribers", func() bool { return hub.Subscribers(lotA) == 2 })

	_ = hub.Publish(ctx, lotB, []models.LotEvent{{LotID: lotB, Version: 9}})
	_ = hub.Publish(ctx, lotA, []models.LotEvent{{LotID: lotA, Version: 3}, {LotID: lotA, Version: 3}})

	for _, ch := range []<-chan []models.LotEvent{first, second} {
		select {
		case got := <-ch:
			if len(got) != 2 || got[0].LotID != lotA || got[1].Version != 3 {
				t.Fatalf("unexpected events %+v", got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber did not receive events")
		}
	}
	eventually(t, "subscribers to leave", func() bool { return hub.Subscribers(lotA) == 0 })
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(1)
	lotID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	next := pullEvents(ctx, hub, lotID)
	eventually(t, "subscriber", func() bool { return hub.Subscribers(lotID) == 1 })

	done := make(chan struct{})
	go func() {
		defer close(done)
		for v := int64(1); v <= 10; v++ {
			_ = hub.Publish(ctx, lotID, []models.LotEvent{{LotID: lotID, Version: v}})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}

	ev, ok := next()
	if !ok || ev.Version != 1 {
		t.Fatalf("want buffered version 1 got %+v ok=%v", ev, ok)
	}
}

// pullEvents starts a subscription that hands over one event per call.
func pullEvents(ctx context.Context, hub *Hub, lotID uuid.UUID) func() (models.LotEvent, bool) {
	events := make(chan models.LotEvent)
	ended := make(chan struct{})
	go func() {
		defer close(ended)
		for ev := range hub.Subscribe(ctx, lotID) {
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	next := func() (models.LotEvent, bool) {
		select {
		case ev := <-events:
			return ev, true
		case <-ended:
			return models.LotEvent{}, false
		case <-time.After(2 * time.Second):
			return models.LotEvent{}, false
		}
	}
	return next
}
