// Package clocksync estimates authoritative server time independently of the
// local clock. Every deadline comparison on a client goes through a
// Reconciler rather than raw local time.
package clocksync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrClockUnavailable is returned by Sync when the time source cannot be
// reached. The Reconciler keeps serving time with a widened safety margin.
var ErrClockUnavailable = errors.New("clock source unavailable")

// Source returns the authoritative current time.
type Source interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (time.Time, error)

func (f SourceFunc) ServerTime(ctx context.Context) (time.Time, error) { return f(ctx) }

type Config struct {
	NormalInterval   time.Duration `yaml:"normal_interval"`
	CriticalInterval time.Duration `yaml:"critical_interval"`
	// CriticalWindow is how close a watched deadline must be before the
	// critical interval applies.
	CriticalWindow time.Duration `yaml:"critical_window"`
	BaseMargin     time.Duration `yaml:"base_margin"`
	DegradedMargin time.Duration `yaml:"degraded_margin"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

func DefaultConfig() Config {
	return Config{
		NormalInterval:   30 * time.Second,
		CriticalInterval: 5 * time.Second,
		CriticalWindow:   time.Minute,
		BaseMargin:       50 * time.Millisecond,
		DegradedMargin:   2 * time.Second,
		RequestTimeout:   3 * time.Second,
	}
}

// Reconciler tracks the offset between local and server time.
type Reconciler struct {
	source Source
	clock  clockwork.Clock
	cfg    Config

	mu        sync.RWMutex
	offset    time.Duration
	rtt       time.Duration
	synced    bool
	degraded  bool
	lastSync  time.Time
	attempted time.Time
	deadlines map[uuid.UUID]time.Time

	wake chan struct{}
}

func NewReconciler(source Source, clock clockwork.Clock, cfg Config) *Reconciler {
	def := DefaultConfig()
	if cfg.NormalInterval <= 0 {
		cfg.NormalInterval = def.NormalInterval
	}
	if cfg.CriticalInterval <= 0 {
		cfg.CriticalInterval = def.CriticalInterval
	}
	if cfg.CriticalWindow <= 0 {
		cfg.CriticalWindow = def.CriticalWindow
	}
	if cfg.DegradedMargin <= 0 {
		cfg.DegradedMargin = def.DegradedMargin
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	return &Reconciler{
		source:    source,
		clock:     clock,
		cfg:       cfg,
		deadlines: make(map[uuid.UUID]time.Time),
		wake:      make(chan struct{}, 1),
	}
}

// Sync fetches server time once and updates the offset. The offset is
// measured against the midpoint of the request so that half the round trip
// is compensated.
func (r *Reconciler) Sync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	sent := r.clock.Now()
	serverNow, err := r.source.ServerTime(ctx)
	received := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempted = received
	if err != nil {
		if !r.degraded {
			log.Warn().Err(err).Dur("offset", r.offset).Msg("clock source unavailable, widening safety margin")
		}
		r.degraded = true
		return fmt.Errorf("%w: %w", ErrClockUnavailable, err)
	}

	rtt := received.Sub(sent)
	midpoint := sent.Add(rtt / 2)
	if r.degraded {
		log.Info().Msg("clock source recovered")
	}
	r.offset = serverNow.Sub(midpoint)
	r.rtt = rtt
	r.synced = true
	r.degraded = false
	r.lastSync = received

	log.Debug().
		Dur("offset", r.offset).
		Dur("rtt", rtt).
		Msg("clock synced")
	return nil
}

// Now returns the reconciled server time.
func (r *Reconciler) Now() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clock.Now().Add(r.offset)
}

func (r *Reconciler) Offset() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.offset
}

// SafetyMargin is the uncertainty to allow on deadline comparisons: half the
// last round trip plus the base margin, or the degraded margin when the
// source has never answered or is currently failing.
func (r *Reconciler) SafetyMargin() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.degraded || !r.synced {
		return r.cfg.DegradedMargin
	}
	return r.cfg.BaseMargin + r.rtt/2
}

func (r *Reconciler) Degraded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.degraded
}

func (r *Reconciler) LastSync() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSync
}

// Watch registers a lot deadline. Resync becomes more frequent once any
// watched deadline is inside the critical window.
func (r *Reconciler) Watch(lotID uuid.UUID, closeAt time.Time) {
	r.mu.Lock()
	prev, ok := r.deadlines[lotID]
	r.deadlines[lotID] = closeAt
	r.mu.Unlock()
	if !ok || !prev.Equal(closeAt) {
		r.poke()
	}
}

func (r *Reconciler) Unwatch(lotID uuid.UUID) {
	r.mu.Lock()
	delete(r.deadlines, lotID)
	r.mu.Unlock()
	r.poke()
}

func (r *Reconciler) poke() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// NextInterval returns how long to wait before the next sync.
func (r *Reconciler) NextInterval() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.degraded {
		return r.cfg.CriticalInterval
	}
	now := r.clock.Now().Add(r.offset)
	for _, closeAt := range r.deadlines {
		remaining := closeAt.Sub(now)
		if remaining > 0 && remaining <= r.cfg.CriticalWindow {
			return r.cfg.CriticalInterval
		}
	}
	return r.cfg.NormalInterval
}

// untilNextSync measures the interval from the last attempt so that
// deadline changes re-arm the timer without postponing the sync.
func (r *Reconciler) untilNextSync() time.Duration {
	interval := r.NextInterval()
	r.mu.RLock()
	elapsed := r.clock.Since(r.attempted)
	r.mu.RUnlock()
	if wait := interval - elapsed; wait > 0 {
		return wait
	}
	return 0
}

// Run syncs immediately and then on the adaptive interval until ctx is done.
// Source failures never stop the loop.
func (r *Reconciler) Run(ctx context.Context) error {
	_ = r.Sync(ctx)
	select {
	case <-r.wake:
	default:
	}
	for {
		timer := r.clock.NewTimer(r.untilNextSync())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-r.wake:
			timer.Stop()
		case <-timer.Chan():
			_ = r.Sync(ctx)
		}
	}
}
