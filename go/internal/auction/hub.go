package auction

import (
	"context"
	"iter"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/rs/zerolog/log"
)

const defaultSubscriberBuffer = 64

// Hub fans lot events out to in-process subscribers. Delivery is best effort:
// a subscriber whose buffer is full misses events and is expected to catch up
// through its version gate and a snapshot poll.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*hubSubscriber]struct{}
	buffer int
}

type hubSubscriber struct {
	ch chan models.LotEvent
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[uuid.UUID]map[*hubSubscriber]struct{}),
		buffer: buffer,
	}
}

// Publish implements EventSink.
func (h *Hub) Publish(_ context.Context, lotID uuid.UUID, events []models.LotEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[lotID] {
		for _, ev := range events {
			select {
			case sub.ch <- ev:
			default:
				log.Debug().
					Str("lot_id", lotID.String()).
					Int64("version", ev.Version).
					Msg("subscriber buffer full, dropping lot event")
			}
		}
	}
	return nil
}

// Subscribe returns a lazy, unterminated sequence of events for a lot. The
// subscription is registered when iteration starts and removed when the loop
// exits or ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context, lotID uuid.UUID) iter.Seq[models.LotEvent] {
	return func(yield func(models.LotEvent) bool) {
		sub := h.register(lotID)
		defer h.unregister(lotID, sub)

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-sub.ch:
				if !yield(ev) {
					return
				}
			}
		}
	}
}

// Subscribers returns the number of live subscriptions for a lot.
func (h *Hub) Subscribers(lotID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[lotID])
}

func (h *Hub) register(lotID uuid.UUID) *hubSubscriber {
	sub := &hubSubscriber{ch: make(chan models.LotEvent, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[lotID] == nil {
		h.subs[lotID] = make(map[*hubSubscriber]struct{})
	}
	h.subs[lotID][sub] = struct{}{}
	return sub
}

func (h *Hub) unregister(lotID uuid.UUID, sub *hubSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subs[lotID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subs, lotID)
		}
	}
}
