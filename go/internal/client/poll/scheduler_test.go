package poll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionhouse/go/internal/models"
)

var testEpoch = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func TestSelectBand(t *testing.T) {
	bands := DefaultBands()
	tests := []struct {
		name string
		in   Inputs
		want Band
	}{
		{name: "far from close", in: Inputs{Status: models.LotStatusActive, Remaining: 5 * time.Minute}, want: BandSlow},
		{name: "just above a minute", in: Inputs{Status: models.LotStatusActive, Remaining: 61 * time.Second}, want: BandSlow},
		{name: "exactly a minute", in: Inputs{Status: models.LotStatusActive, Remaining: time.Minute}, want: BandMedium},
		{name: "forty seconds", in: Inputs{Status: models.LotStatusActive, Remaining: 40 * time.Second}, want: BandMedium},
		{name: "twenty seconds", in: Inputs{Status: models.LotStatusActive, Remaining: 20 * time.Second}, want: BandFast},
		{name: "five seconds", in: Inputs{Status: models.LotStatusActive, Remaining: 5 * time.Second}, want: BandBurst},
		{name: "deadline passed", in: Inputs{Status: models.LotStatusActive, Remaining: -time.Second}, want: BandBurst},
		{name: "extension overrides", in: Inputs{Status: models.LotStatusActive, Remaining: 40 * time.Second, InExtension: true}, want: BandExtension},
		{name: "scheduled", in: Inputs{Status: models.LotStatusScheduled, Remaining: 5 * time.Second}, want: BandSlow},
		{name: "ended", in: Inputs{Status: models.LotStatusEnded, InExtension: true}, want: BandIdle},
		{name: "cancelled", in: Inputs{Status: models.LotStatusCancelled}, want: BandIdle},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SelectBand(tc.in, bands); got != tc.want {
				t.Fatalf("want %s got %s", tc.want, got)
			}
		})
	}
}

type pollHarness struct {
	clock     *clockwork.FakeClock
	sched     *Scheduler
	refreshes atomic.Int32
}

func newPollHarness(t *testing.T, cfg Config) *pollHarness {
	t.Helper()
	h := &pollHarness{clock: clockwork.NewFakeClockAt(testEpoch)}
	h.sched = NewScheduler(h.clock, h.clock, cfg, func(ctx context.Context) error {
		h.refreshes.Add(1)
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.sched.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// armed waits for the scheduler to hold its timer in band want.
func (h *pollHarness) armed(t *testing.T, want Band) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		err := h.clock.BlockUntilContext(ctx, 1)
		cancel()
		if err == nil && h.sched.Band() == want {
			return
		}
	}
	t.Fatalf("scheduler never armed band %s, at %s", want, h.sched.Band())
}

func (h *pollHarness) observe(status models.LotStatus, remaining, extension time.Duration) {
	h.sched.Observe(Observation{Status: status, CloseAt: h.clock.Now().Add(remaining), Extension: extension})
}

func TestSchedulerTightensTowardClose(t *testing.T) {
	bands := DefaultBands()
	h := newPollHarness(t, DefaultConfig())

	h.observe(models.LotStatusActive, 65*time.Second, 0)
	h.armed(t, BandSlow)

	h.clock.Advance(bands.Slow)
	h.armed(t, BandMedium)
	if n := h.refreshes.Load(); n != 1 {
		t.Fatalf("want one refresh got %d", n)
	}

	// Medium ticks every 3s until no more than 30s remain.
	for h.sched.Band() == BandMedium {
		h.clock.Advance(bands.Medium)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
			cancel()
			t.Fatalf("timer not re-armed: %v", err)
		}
		cancel()
	}
	if b := h.sched.Band(); b != BandFast {
		t.Fatalf("want fast band after medium, got %s", b)
	}

	h.observe(models.LotStatusEnded, 0, 0)
	eventually(t, "idle", func() bool { return h.sched.Band() == BandIdle })
}

func TestSchedulerExtensionBand(t *testing.T) {
	bands := DefaultBands()
	h := newPollHarness(t, DefaultConfig())

	h.observe(models.LotStatusActive, 8*time.Second, 0)
	h.armed(t, BandBurst)

	h.observe(models.LotStatusActive, 40*time.Second, 15*time.Second)
	h.armed(t, BandExtension)

	// The extension band lasts for the bonus plus the margin.
	h.clock.Advance(bands.Extension)
	h.armed(t, BandExtension)
	h.clock.Advance(15*time.Second + bands.ExtensionMargin)
	h.armed(t, BandFast)
}

func TestSchedulerSkipsWhenLimited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RatePerSecond = 1
	cfg.RateBurst = 1
	h := newPollHarness(t, cfg)

	h.observe(models.LotStatusActive, 5*time.Minute, time.Minute)
	h.armed(t, BandExtension)

	for i := 0; i < 4; i++ {
		h.clock.Advance(cfg.Bands.Extension)
		h.armed(t, BandExtension)
	}
	// Four ticks 500ms apart with one token per second: two allowed, two skipped.
	stats := h.sched.Stats()
	if stats.Refreshes != 2 || stats.Skipped != 2 {
		t.Fatalf("want 2 refreshes and 2 skips, got %+v", stats)
	}
	if n := h.refreshes.Load(); n != 2 {
		t.Fatalf("skipped refreshes must not run later, got %d calls", n)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
