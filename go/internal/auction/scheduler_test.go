package auction

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/models"
)

func startScheduler(t *testing.T, env *testEnv) *Scheduler {
	t.Helper()
	sched := NewScheduler(env.engine, env.repo, env.clock, SchedulerConfig{
		Workers:       2,
		SweepInterval: time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return sched
}

func (env *testEnv) status(id uuid.UUID) models.LotStatus {
	got, err := env.repo.GetLot(context.Background(), id)
	if err != nil {
		return ""
	}
	return got.Status
}

func TestSchedulerFollowsExtensions(t *testing.T) {
	env := newTestEnv(t)
	sched := startScheduler(t, env)
	lot := env.createLot(t, func(r *models.CreateLotRequest) {
		r.StartAt = env.clock.Now().Add(time.Minute)
		r.CloseAt = env.clock.Now().Add(10 * time.Minute)
	})
	sched.Track(lot)

	env.clock.Advance(time.Minute)
	eventually(t, "activation", func() bool {
		return env.status(lot.ID) == models.LotStatusActive && sched.timerCount() == 1
	})

	env.advanceTo(t, lot.ID, 5*time.Second)
	if res := env.bid(t, lot.ID, "101000"); !res.Extension.Extended {
		t.Fatalf("late bid should extend")
	}

	// The original deadline passes without closing the extended lot.
	env.clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if got := env.status(lot.ID); got != models.LotStatusActive {
		t.Fatalf("lot closed at its original deadline, status %s", got)
	}

	env.clock.Advance(15 * time.Second)
	eventually(t, "close", func() bool {
		s, _ := env.repo.GetSettlement(context.Background(), lot.ID)
		return env.status(lot.ID) == models.LotStatusEnded && s != nil && sched.timerCount() == 0
	})
}

func TestSchedulerSweepPicksUpDueLots(t *testing.T) {
	env := newTestEnv(t)
	lot := env.createLot(t, func(r *models.CreateLotRequest) {
		r.CloseAt = env.clock.Now().Add(time.Minute)
	})

	sched := startScheduler(t, env)
	eventually(t, "sweep activation", func() bool {
		return env.status(lot.ID) == models.LotStatusActive && sched.timerCount() == 1
	})

	env.clock.Advance(time.Minute)
	eventually(t, "close", func() bool { return env.status(lot.ID) == models.LotStatusEnded })
}

func TestSchedulerCancelClearsTimers(t *testing.T) {
	env := newTestEnv(t)
	sched := startScheduler(t, env)
	lot := env.createLot(t, func(r *models.CreateLotRequest) {
		r.StartAt = env.clock.Now().Add(time.Hour)
		r.CloseAt = env.clock.Now().Add(2 * time.Hour)
	})
	sched.Track(lot)
	if n := sched.timerCount(); n != 1 {
		t.Fatalf("want one timer got %d", n)
	}

	if _, err := env.engine.Cancel(context.Background(), lot.ID, "withdrawn"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if n := sched.timerCount(); n != 0 {
		t.Fatalf("cancel should clear timers, %d left", n)
	}
}

func TestSchedulerRegistersAsSinkOnce(t *testing.T) {
	env := newTestEnv(t)
	sched := NewScheduler(env.engine, env.repo, env.clock, SchedulerConfig{})
	env.engine.AddSink(sched)

	registered := 0
	for _, sink := range env.engine.sinks {
		if sink == EventSink(sched) {
			registered++
		}
	}
	if registered != 1 {
		t.Fatalf("scheduler registered %d times", registered)
	}
}
