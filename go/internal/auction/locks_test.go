package auction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLotLocksSerializePerLot(t *testing.T) {
	locks := newLotLocks()
	lotID := uuid.New()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.acquire(context.Background(), lotID, time.Second)
			if err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("critical section entered by %d holders at once", maxSeen)
	}
	if n := locks.size(); n != 0 {
		t.Fatalf("lock table should be empty, has %d entries", n)
	}
}

func TestLotLocksIndependentLots(t *testing.T) {
	locks := newLotLocks()
	a, b := uuid.New(), uuid.New()

	releaseA, err := locks.acquire(context.Background(), a, time.Second)
	if err != nil {
		t.Fatalf("acquire a failed: %v", err)
	}
	defer releaseA()

	releaseB, err := locks.acquire(context.Background(), b, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("holding lot a must not block lot b: %v", err)
	}
	releaseB()
}

func TestLotLocksTimeout(t *testing.T) {
	locks := newLotLocks()
	lotID := uuid.New()

	release, err := locks.acquire(context.Background(), lotID, time.Second)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if _, err := locks.acquire(context.Background(), lotID, 10*time.Millisecond); !errors.Is(err, ErrContended) {
		t.Fatalf("want ErrContended got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := locks.acquire(ctx, lotID, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled got %v", err)
	}

	release()
	release()
	if n := locks.size(); n != 0 {
		t.Fatalf("lock table should be empty, has %d entries", n)
	}

	again, err := locks.acquire(context.Background(), lotID, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("lock should be free after release: %v", err)
	}
	again()
}
