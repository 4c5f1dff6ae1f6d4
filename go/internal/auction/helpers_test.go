package auction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/shopspring/decimal"
)

var testEpoch = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type testEnv struct {
	engine *Engine
	repo   *MemoryRepository
	clock  *clockwork.FakeClock
	seller uuid.UUID
}

func newTestEnv(t *testing.T, rules ...models.CommissionRule) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil, rules...)
}

// newTestEnvWith builds the engine over wrap(repo) when wrap is set.
func newTestEnvWith(t *testing.T, wrap func(*MemoryRepository) LotRepository, rules ...models.CommissionRule) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	repo := NewMemoryRepository()
	var store LotRepository = repo
	if wrap != nil {
		store = wrap(repo)
	}
	engine := NewEngine(store, NewStaticCommissions(rules...), NewLocalClock(clock), Config{
		LockWait: 2 * time.Second,
		DefaultPolicy: models.ExtensionPolicy{
			Window:        30 * time.Second,
			Bonus:         15 * time.Second,
			MaxExtensions: 3,
		},
	})
	return &testEnv{engine: engine, repo: repo, clock: clock, seller: uuid.New()}
}

// createLot schedules a lot starting now at 100000 with a 1000 increment.
func (env *testEnv) createLot(t *testing.T, mutate func(*models.CreateLotRequest)) *models.Lot {
	t.Helper()
	now := env.clock.Now()
	req := models.CreateLotRequest{
		SellerID:      env.seller,
		Title:         "1967 Omega Speedmaster",
		StartingPrice: dec("100000"),
		MinIncrement:  dec("1000"),
		StartAt:       now,
		CloseAt:       now.Add(10 * time.Minute),
	}
	if mutate != nil {
		mutate(&req)
	}
	lot, err := env.engine.CreateLot(context.Background(), req)
	if err != nil {
		t.Fatalf("create lot failed: %v", err)
	}
	return lot
}

func (env *testEnv) activeLot(t *testing.T, mutate func(*models.CreateLotRequest)) *models.Lot {
	t.Helper()
	lot := env.createLot(t, mutate)
	if _, err := env.engine.Activate(context.Background(), lot.ID); err != nil {
		t.Fatalf("activate lot failed: %v", err)
	}
	return env.lot(t, lot.ID)
}

func (env *testEnv) lot(t *testing.T, id uuid.UUID) *models.Lot {
	t.Helper()
	lot, err := env.repo.GetLot(context.Background(), id)
	if err != nil {
		t.Fatalf("get lot failed: %v", err)
	}
	return lot
}

func (env *testEnv) bid(t *testing.T, lotID uuid.UUID, amount string) *BidResult {
	t.Helper()
	res, err := env.engine.PlaceBid(context.Background(), lotID, uuid.New(), dec(amount))
	if err != nil {
		t.Fatalf("bid %s failed: %v", amount, err)
	}
	return res
}

// advanceTo moves the fake clock to d before the lot's current close time.
func (env *testEnv) advanceTo(t *testing.T, lotID uuid.UUID, beforeClose time.Duration) {
	t.Helper()
	lot := env.lot(t, lotID)
	target := lot.CloseAt.Add(-beforeClose)
	env.clock.Advance(target.Sub(env.clock.Now()))
}

func (env *testEnv) eventsOfType(t *testing.T, lotID uuid.UUID, typ models.LotEventType) []models.LotEvent {
	t.Helper()
	evs, err := env.repo.ListEvents(context.Background(), lotID, 0, 0)
	if err != nil {
		t.Fatalf("list events failed: %v", err)
	}
	var out []models.LotEvent
	for _, ev := range evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// lockWaiters reports holders plus waiters on a lot's critical section.
func (e *Engine) lockWaiters(lotID uuid.UUID) int {
	e.locks.mu.Lock()
	defer e.locks.mu.Unlock()
	if l, ok := e.locks.locks[lotID]; ok {
		return l.refs
	}
	return 0
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// gatedRepo blocks the first GetLot after arm until release is closed.
type gatedRepo struct {
	*MemoryRepository
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func newGatedRepo(repo *MemoryRepository) *gatedRepo {
	return &gatedRepo{
		MemoryRepository: repo,
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
}

func (g *gatedRepo) arm() {
	g.mu.Lock()
	g.armed = true
	g.mu.Unlock()
}

func (g *gatedRepo) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	g.mu.Lock()
	block := g.armed
	g.armed = false
	g.mu.Unlock()
	if block {
		close(g.entered)
		<-g.release
	}
	return g.MemoryRepository.GetLot(ctx, id)
}

// failingSettlementRepo fails the first settlement insert.
type failingSettlementRepo struct {
	*MemoryRepository
	mu     sync.Mutex
	failed bool
}

func (f *failingSettlementRepo) InsertSettlement(ctx context.Context, s models.Settlement) error {
	f.mu.Lock()
	first := !f.failed
	f.failed = true
	f.mu.Unlock()
	if first {
		return errors.New("connection reset")
	}
	return f.MemoryRepository.InsertSettlement(ctx, s)
}

// countingRepo counts stored settlements.
type countingRepo struct {
	*MemoryRepository
	mu      sync.Mutex
	inserts int
}

func (c *countingRepo) InsertSettlement(ctx context.Context, s models.Settlement) error {
	err := c.MemoryRepository.InsertSettlement(ctx, s)
	if err == nil {
		c.mu.Lock()
		c.inserts++
		c.mu.Unlock()
	}
	return err
}

func (c *countingRepo) settlementInserts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inserts
}
