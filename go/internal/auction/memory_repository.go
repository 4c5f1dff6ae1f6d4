package auction

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/models"
)

// MemoryRepository is an in-process LotRepository. It enforces the same
// version and settlement guards as the Postgres repository.
type MemoryRepository struct {
	mu          sync.RWMutex
	lots        map[uuid.UUID]*models.Lot
	bids        map[uuid.UUID][]models.Bid
	events      map[uuid.UUID][]models.LotEvent
	settlements map[uuid.UUID]models.Settlement
}

// NewMemoryRepository creates an empty MemoryRepository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		lots:        make(map[uuid.UUID]*models.Lot),
		bids:        make(map[uuid.UUID][]models.Bid),
		events:      make(map[uuid.UUID][]models.LotEvent),
		settlements: make(map[uuid.UUID]models.Settlement),
	}
}

func (r *MemoryRepository) CreateLot(_ context.Context, lot *models.Lot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lots[lot.ID] = lot.Clone()
	return nil
}

func (r *MemoryRepository) GetLot(_ context.Context, id uuid.UUID) (*models.Lot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lot, ok := r.lots[id]
	if !ok {
		return nil, ErrLotNotFound
	}
	return lot.Clone(), nil
}

func (r *MemoryRepository) ListBids(_ context.Context, lotID uuid.UUID) ([]models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Bid(nil), r.bids[lotID]...), nil
}

func (r *MemoryRepository) ApplyMutation(_ context.Context, m Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.lots[m.Lot.ID]
	if !ok {
		return ErrLotNotFound
	}
	if cur.Version != m.ExpectedVersion {
		return ErrVersionConflict
	}

	if m.RetractBidID != nil {
		bids := r.bids[m.Lot.ID]
		found := false
		for i := range bids {
			if bids[i].ID == *m.RetractBidID {
				bids[i].Retracted = true
				found = true
			}
		}
		if !found {
			return ErrBidNotFound
		}
	}
	if m.NewBid != nil {
		r.bids[m.Lot.ID] = append(r.bids[m.Lot.ID], *m.NewBid)
	}
	r.lots[m.Lot.ID] = m.Lot.Clone()
	r.events[m.Lot.ID] = append(r.events[m.Lot.ID], m.Events...)
	return nil
}

func (r *MemoryRepository) AppendEvents(_ context.Context, events []models.LotEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range events {
		r.events[ev.LotID] = append(r.events[ev.LotID], ev)
	}
	return nil
}

func (r *MemoryRepository) ListEvents(_ context.Context, lotID uuid.UUID, afterVersion int64, limit int) ([]models.LotEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.LotEvent
	for _, ev := range r.events[lotID] {
		if ev.Version > afterVersion {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) InsertSettlement(_ context.Context, s models.Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.settlements[s.LotID]; ok {
		return ErrSettlementExists
	}
	r.settlements[s.LotID] = s
	return nil
}

func (r *MemoryRepository) GetSettlement(_ context.Context, lotID uuid.UUID) (*models.Settlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.settlements[lotID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *MemoryRepository) FetchLotsDueForClose(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return r.fetchDue(models.LotStatusActive, now, limit, func(l *models.Lot) time.Time { return l.CloseAt }), nil
}

func (r *MemoryRepository) FetchLotsDueForActivation(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return r.fetchDue(models.LotStatusScheduled, now, limit, func(l *models.Lot) time.Time { return l.StartAt }), nil
}

func (r *MemoryRepository) fetchDue(status models.LotStatus, now time.Time, limit int, deadline func(*models.Lot) time.Time) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type due struct {
		id uuid.UUID
		at time.Time
	}
	var lots []due
	for _, l := range r.lots {
		if l.Status == status && !deadline(l).After(now) {
			lots = append(lots, due{id: l.ID, at: deadline(l)})
		}
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i].at.Before(lots[j].at) })

	ids := make([]uuid.UUID, 0, len(lots))
	for _, d := range lots {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, d.id)
	}
	return ids
}
