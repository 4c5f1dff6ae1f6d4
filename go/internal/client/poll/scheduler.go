package poll

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Refresher fetches a fresh snapshot.
type Refresher func(ctx context.Context) error

// TimeSource reports reconciled server time.
type TimeSource interface {
	Now() time.Time
}

type Config struct {
	Bands Bands `yaml:"bands"`
	// RatePerSecond and RateBurst bound outbound refreshes.
	RatePerSecond float64 `yaml:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst"`
}

func DefaultConfig() Config {
	return Config{
		Bands:         DefaultBands(),
		RatePerSecond: 5,
		RateBurst:     5,
	}
}

// Observation is what the scheduler learns from an applied lot update.
type Observation struct {
	Status  models.LotStatus
	CloseAt time.Time
	// Extension is the bonus added by an extension observed in this update.
	Extension time.Duration
}

type Stats struct {
	Band      Band
	Refreshes int64
	Skipped   int64
	Failed    int64
}

// Scheduler is the cadence state machine. Its state is the current band and
// the single armed timer; every change goes through transition.
type Scheduler struct {
	clock   clockwork.Clock
	now     TimeSource
	limiter *rate.Limiter
	cfg     Config
	refresh Refresher

	mu             sync.Mutex
	band           Band
	timer          clockwork.Timer
	status         models.LotStatus
	closeAt        time.Time
	extensionUntil time.Time

	wake chan struct{}

	refreshes atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

func NewScheduler(clock clockwork.Clock, now TimeSource, cfg Config, refresh Refresher) *Scheduler {
	if cfg.Bands == (Bands{}) {
		cfg.Bands = DefaultBands()
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultConfig().RatePerSecond
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = DefaultConfig().RateBurst
	}
	return &Scheduler{
		clock:   clock,
		now:     now,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		cfg:     cfg,
		refresh: refresh,
		band:    BandIdle,
		status:  models.LotStatusScheduled,
		wake:    make(chan struct{}, 1),
	}
}

// Observe feeds a newly applied lot state into the state machine.
func (s *Scheduler) Observe(obs Observation) {
	s.mu.Lock()
	s.status = obs.Status
	s.closeAt = obs.CloseAt
	if obs.Extension > 0 {
		s.extensionUntil = s.now.Now().Add(obs.Extension + s.cfg.Bands.ExtensionMargin)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Band() Band {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.band
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Band:      s.Band(),
		Refreshes: s.refreshes.Load(),
		Skipped:   s.skipped.Load(),
		Failed:    s.failed.Load(),
	}
}

func (s *Scheduler) inputs() Inputs {
	now := s.now.Now()
	return Inputs{
		Status:      s.status,
		Remaining:   s.closeAt.Sub(now),
		InExtension: now.Before(s.extensionUntil),
	}
}

// transition recomputes the band. The armed timer is kept while the band is
// unchanged and replaced otherwise. It returns the channel of the armed
// timer, nil when idle.
func (s *Scheduler) transition() <-chan time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := SelectBand(s.inputs(), s.cfg.Bands)
	if next == s.band && s.timer != nil {
		return s.timer.Chan()
	}
	if next != s.band {
		log.Debug().
			Str("from", s.band.String()).
			Str("to", next.String()).
			Msg("poll cadence changed")
		s.band = next
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if next == BandIdle {
		return nil
	}
	s.timer = s.clock.NewTimer(s.cfg.Bands.Interval(next))
	return s.timer.Chan()
}

// Run drives refreshes until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.mu.Unlock()
	}()

	for {
		fire := s.transition()
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		case <-fire:
			s.mu.Lock()
			s.timer = nil
			s.mu.Unlock()
			s.fire(ctx)
		}
	}
}

// fire runs one refresh unless the limiter is exhausted, in which case the
// refresh is skipped rather than queued.
func (s *Scheduler) fire(ctx context.Context) {
	if !s.limiter.AllowN(s.clock.Now(), 1) {
		s.skipped.Add(1)
		log.Debug().Str("band", s.Band().String()).Msg("refresh skipped by rate limit")
		return
	}
	s.refreshes.Add(1)
	if err := s.refresh(ctx); err != nil {
		s.failed.Add(1)
		log.Warn().Err(err).Str("band", s.Band().String()).Msg("snapshot refresh failed")
	}
}
