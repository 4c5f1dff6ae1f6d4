package auction

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// lotLocks is a table of per-lot critical sections. Lots never share a lock;
// the table mutex only guards map bookkeeping and is never held while waiting.
// semaphore.Weighted serves waiters in FIFO order, so bids enter the section
// in arrival order.
type lotLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lotLock
}

type lotLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newLotLocks() *lotLocks {
	return &lotLocks{locks: make(map[uuid.UUID]*lotLock)}
}

// acquire enters the critical section for lotID, waiting at most wait.
// A timeout yields ErrContended; a cancelled parent context yields its error.
func (t *lotLocks) acquire(ctx context.Context, lotID uuid.UUID, wait time.Duration) (func(), error) {
	t.mu.Lock()
	l, ok := t.locks[lotID]
	if !ok {
		l = &lotLock{sem: semaphore.NewWeighted(1)}
		t.locks[lotID] = l
	}
	l.refs++
	t.mu.Unlock()

	if !l.sem.TryAcquire(1) {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		err := l.sem.Acquire(waitCtx, 1)
		cancel()
		if err != nil {
			t.unref(lotID, l)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrContended
			}
			return nil, err
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.sem.Release(1)
			t.unref(lotID, l)
		})
	}, nil
}

func (t *lotLocks) unref(lotID uuid.UUID, l *lotLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, lotID)
	}
}

// size returns how many lots currently have holders or waiters.
func (t *lotLocks) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
