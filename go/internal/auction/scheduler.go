package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/rs/zerolog/log"
)

type taskKind string

const (
	taskActivate taskKind = "activate"
	taskClose    taskKind = "close"
)

type lotTask struct {
	lotID uuid.UUID
	kind  taskKind
}

type armedTimer struct {
	timer clockwork.Timer
	stop  chan struct{}
}

func (a *armedTimer) disarm() {
	stopAndDrainTimer(a.timer)
	close(a.stop)
}

// SchedulerConfig tunes the lot scheduler.
type SchedulerConfig struct {
	Workers       int
	BatchSize     int
	SweepInterval time.Duration
	RetryDelay    time.Duration
}

func (c *SchedulerConfig) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 250 * time.Millisecond
	}
}

// Scheduler drives time-based lot transitions. Each lot gets a one-shot timer
// at its start and close time; a periodic sweep over the repository is the
// backstop for missed timers and restarts. It implements EventSink so close
// timers follow extensions.
type Scheduler struct {
	engine     *Engine
	repo       LotRepository
	clock      clockwork.Clock
	cfg        SchedulerConfig
	instanceID string

	workCh chan lotTask
	done   chan struct{}

	activeTimers   map[lotTask]*armedTimer
	activeTimersMu sync.Mutex

	inFlight   map[lotTask]bool
	inFlightMu sync.Mutex
}

// NewScheduler creates a scheduler and registers it as a sink of the engine.
func NewScheduler(engine *Engine, repo LotRepository, clock clockwork.Clock, cfg SchedulerConfig) *Scheduler {
	cfg.setDefaults()
	s := &Scheduler{
		engine:       engine,
		repo:         repo,
		clock:        clock,
		cfg:          cfg,
		instanceID:   uuid.New().String()[:8],
		workCh:       make(chan lotTask, cfg.Workers*cfg.BatchSize),
		done:         make(chan struct{}),
		activeTimers: make(map[lotTask]*armedTimer),
		inFlight:     make(map[lotTask]bool),
	}
	engine.AddSink(s)
	return s
}

// Track arms the timer matching a lot's current status.
func (s *Scheduler) Track(lot *models.Lot) {
	switch lot.Status {
	case models.LotStatusScheduled:
		s.schedule(lotTask{lotID: lot.ID, kind: taskActivate}, lot.StartAt)
	case models.LotStatusActive:
		s.schedule(lotTask{lotID: lot.ID, kind: taskClose}, lot.CloseAt)
	}
}

// Publish implements EventSink. The last event of a mutation carries the
// resulting state.
func (s *Scheduler) Publish(_ context.Context, lotID uuid.UUID, evs []models.LotEvent) error {
	if len(evs) == 0 {
		return nil
	}
	state := evs[len(evs)-1].State
	switch state.Status {
	case models.LotStatusActive:
		s.cancelTimer(lotTask{lotID: lotID, kind: taskActivate})
		s.schedule(lotTask{lotID: lotID, kind: taskClose}, state.CloseAt)
	case models.LotStatusEnded, models.LotStatusCancelled:
		s.cancelTimer(lotTask{lotID: lotID, kind: taskActivate})
		s.cancelTimer(lotTask{lotID: lotID, kind: taskClose})
	}
	return nil
}

// Run starts the worker pool and the sweep loop and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Str("instance", s.instanceID).
		Int("workers", s.cfg.Workers).
		Dur("sweep_interval", s.cfg.SweepInterval).
		Msg("lot scheduler started")

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go s.worker(ctx, &wg, i)
	}

	ticker := s.clock.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", s.instanceID).Msg("lot scheduler shutdown requested")
			close(s.done)
			wg.Wait()
			s.stopAllTimers()
			return nil
		case <-ticker.Chan():
			s.sweep(ctx)
		}
	}
}

// sweep enqueues every lot whose start or close time has already passed.
func (s *Scheduler) sweep(ctx context.Context) {
	now := s.clock.Now()

	toActivate, err := s.repo.FetchLotsDueForActivation(ctx, now, s.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch lots due for activation")
	}
	for _, id := range toActivate {
		s.enqueue(lotTask{lotID: id, kind: taskActivate})
	}

	toClose, err := s.repo.FetchLotsDueForClose(ctx, now, s.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch lots due for close")
	}
	for _, id := range toClose {
		s.enqueue(lotTask{lotID: id, kind: taskClose})
	}

	if n := len(toActivate) + len(toClose); n > 0 {
		log.Debug().Int("due", n).Msg("sweep found due lots")
	}
}

func (s *Scheduler) enqueue(task lotTask) {
	select {
	case s.workCh <- task:
	default:
		log.Warn().
			Str("lot_id", task.lotID.String()).
			Str("task", string(task.kind)).
			Msg("work channel full, leaving lot to next sweep")
	}
}

// schedule arms a one-shot timer for task at deadline, replacing any existing one.
func (s *Scheduler) schedule(task lotTask, deadline time.Time) {
	d := deadline.Sub(s.clock.Now())
	if d <= 0 {
		s.cancelTimer(task)
		s.enqueue(task)
		return
	}

	armed := &armedTimer{timer: s.clock.NewTimer(d), stop: make(chan struct{})}
	s.replaceTimer(task, armed)

	go func(a *armedTimer) {
		select {
		case <-a.timer.Chan():
			s.removeTimer(task, a)
			s.enqueue(task)
		case <-a.stop:
		case <-s.done:
			stopAndDrainTimer(a.timer)
		}
	}(armed)

	log.Debug().
		Str("lot_id", task.lotID.String()).
		Str("task", string(task.kind)).
		Time("deadline", deadline).
		Dur("duration", d).
		Msg("scheduled one-shot timer")
}

func (s *Scheduler) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Debug().
				Str("instance", s.instanceID).
				Int("worker_id", workerID).
				Msg("worker shutting down")
			return
		case task := <-s.workCh:
			if !s.claim(task) {
				continue
			}
			if err := s.handle(ctx, task); err != nil {
				log.Error().
					Err(err).
					Str("lot_id", task.lotID.String()).
					Str("task", string(task.kind)).
					Int("worker_id", workerID).
					Msg("scheduled transition failed")
			}
			s.unclaim(task)
		}
	}
}

func (s *Scheduler) handle(ctx context.Context, task lotTask) error {
	var err error
	switch task.kind {
	case taskActivate:
		_, err = s.engine.Activate(ctx, task.lotID)
	case taskClose:
		_, err = s.engine.Close(ctx, task.lotID)
	default:
		return fmt.Errorf("unknown task kind %q", task.kind)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotDue), errors.Is(err, ErrInvalidTransition):
		// Deadline moved or another path already finished the lot.
		log.Debug().Err(err).Str("lot_id", task.lotID.String()).Str("task", string(task.kind)).Msg("transition skipped")
		return nil
	case errors.Is(err, ErrContended):
		s.schedule(task, s.clock.Now().Add(s.cfg.RetryDelay))
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	}
	return err
}

func (s *Scheduler) claim(task lotTask) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if s.inFlight[task] {
		return false
	}
	s.inFlight[task] = true
	return true
}

func (s *Scheduler) unclaim(task lotTask) {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	delete(s.inFlight, task)
}

// replaceTimer swaps the timer for a task under one lock so a fresh timer
// cannot slip in between stop and store.
func (s *Scheduler) replaceTimer(task lotTask, armed *armedTimer) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	if existing, ok := s.activeTimers[task]; ok {
		existing.disarm()
	}
	s.activeTimers[task] = armed
}

func (s *Scheduler) cancelTimer(task lotTask) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	if armed, ok := s.activeTimers[task]; ok {
		armed.disarm()
		delete(s.activeTimers, task)
	}
}

// removeTimer forgets a fired timer unless it was already replaced.
func (s *Scheduler) removeTimer(task lotTask, armed *armedTimer) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	if s.activeTimers[task] == armed {
		delete(s.activeTimers, task)
	}
}

func (s *Scheduler) stopAllTimers() {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	for task, armed := range s.activeTimers {
		armed.disarm()
		delete(s.activeTimers, task)
	}
}

func (s *Scheduler) timerCount() int {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	return len(s.activeTimers)
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
