package fairness

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// memStore is an in-memory Store honoring the same serialization contract as
// the Postgres implementation: LockTarget blocks concurrent transactions on
// the same target until Commit or Rollback.
type memStore struct {
	mu           sync.Mutex
	published    int64
	links        map[int64]int64
	reservations map[[2]int64]time.Time
	targetLocks  map[int64]*sync.Mutex
}

func newMemStore(published int64) *memStore {
	return &memStore{
		published:    published,
		links:        map[int64]int64{},
		reservations: map[[2]int64]time.Time{},
		targetLocks:  map[int64]*sync.Mutex{},
	}
}

func (s *memStore) Begin(ctx context.Context) (Tx, error) {
	return &memTx{store: s, pending: map[[2]int64]time.Time{}}, nil
}

func (s *memStore) DeleteReservation(ctx context.Context, sourceID, targetID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int64{sourceID, targetID}
	if _, ok := s.reservations[key]; !ok {
		return false, nil
	}
	delete(s.reservations, key)
	return true, nil
}

func (s *memStore) SweepStale(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var swept int64
	for key, at := range s.reservations {
		if at.Before(before) {
			delete(s.reservations, key)
			swept++
		}
	}
	return swept, nil
}

func (s *memStore) lockFor(targetID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.targetLocks[targetID]
	if !ok {
		lock = &sync.Mutex{}
		s.targetLocks[targetID] = lock
	}
	return lock
}

func (s *memStore) reservationCount(targetID int64) int64 {
	var n int64
	for key := range s.reservations {
		if key[1] == targetID {
			n++
		}
	}
	return n
}

type memTx struct {
	store   *memStore
	locked  []*sync.Mutex
	pending map[[2]int64]time.Time
	done    bool
}

func (t *memTx) LockTarget(ctx context.Context, targetID int64) error {
	lock := t.store.lockFor(targetID)
	lock.Lock()
	t.locked = append(t.locked, lock)
	return nil
}

func (t *memTx) CountPublished(ctx context.Context) (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.published, nil
}

func (t *memTx) CountInbound(ctx context.Context, targetID int64) (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.links[targetID] + t.store.reservationCount(targetID), nil
}

func (t *memTx) InsertReservation(ctx context.Context, sourceID, targetID int64, at time.Time) (bool, error) {
	key := [2]int64{sourceID, targetID}
	t.store.mu.Lock()
	_, exists := t.store.reservations[key]
	t.store.mu.Unlock()
	if exists {
		return false, nil
	}
	t.pending[key] = at
	return true, nil
}

func (t *memTx) Commit(ctx context.Context) error {
	t.store.mu.Lock()
	for key, at := range t.pending {
		t.store.reservations[key] = at
	}
	t.store.mu.Unlock()
	t.release()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.release()
	return nil
}

func (t *memTx) release() {
	if t.done {
		return
	}
	t.done = true
	for _, lock := range t.locked {
		lock.Unlock()
	}
	t.locked = nil
}

func newTestManager(store Store) *Manager {
	return NewManager(store, Config{
		Share:                 0.05,
		BootstrapMinPublished: 50,
		ReservationTTL:        15 * time.Minute,
	}, zerolog.Nop())
}

func TestReserve_BootstrapThreshold(t *testing.T) {
	t.Parallel()

	store := newMemStore(49)
	manager := newTestManager(store)

	outcome, err := manager.Reserve(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if outcome != OutcomeBootstrap {
		t.Fatalf("expected bootstrap rejection at 49 published, got %v", outcome)
	}
	if len(store.reservations) != 0 {
		t.Fatalf("bootstrap rejection must not leave a reservation")
	}
}

func TestReserve_ShareBound(t *testing.T) {
	t.Parallel()

	store := newMemStore(60)
	store.links[7] = 1
	manager := newTestManager(store)

	// 1 inbound of 60 published; a second link stays under 5%.
	outcome, err := manager.Reserve(context.Background(), 1, 7)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if outcome != OutcomeReserved {
		t.Fatalf("expected reservation under share, got %v", outcome)
	}

	// Now 1 link + 1 reservation: the next claim would hit 3/60, exactly 5%.
	outcome, err = manager.Reserve(context.Background(), 2, 7)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if outcome != OutcomeShareExceeded {
		t.Fatalf("expected share rejection, got %v", outcome)
	}
}

func TestReserve_ExactBoundaryRejected(t *testing.T) {
	t.Parallel()

	store := newMemStore(40)
	store.links[9] = 1
	manager := newTestManager(store)

	// (1+1)/40 is exactly the 5% share; the committed-state invariant
	// requires strict inequality, so the boundary is rejected.
	outcome, err := manager.Reserve(context.Background(), 3, 9)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if outcome != OutcomeShareExceeded {
		t.Fatalf("expected rejection at exact share boundary, got %v", outcome)
	}
}

func TestReserve_ConcurrentLastSlot(t *testing.T) {
	t.Parallel()

	// 100 published, share 5%: inbound+1 must stay under 5, so with 3
	// existing links exactly one more reservation fits.
	store := newMemStore(100)
	store.links[42] = 3
	manager := newTestManager(store)

	const workers = 8
	outcomes := make([]Outcome, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = manager.Reserve(context.Background(), int64(100+i), 42)
		}(i)
	}
	wg.Wait()

	reserved := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d error: %v", i, errs[i])
		}
		if outcomes[i] == OutcomeReserved {
			reserved++
		}
	}
	if reserved != 1 {
		t.Fatalf("expected exactly one winner for the last slot, got %d", reserved)
	}
	if got := store.reservationCount(42); got != 1 {
		t.Fatalf("expected one persisted reservation, got %d", got)
	}
}

func TestAbortReleasesBudget(t *testing.T) {
	t.Parallel()

	store := newMemStore(100)
	manager := newTestManager(store)
	ctx := context.Background()

	if outcome, err := manager.Reserve(ctx, 1, 5); err != nil || outcome != OutcomeReserved {
		t.Fatalf("setup reservation failed: outcome=%v err=%v", outcome, err)
	}
	if err := manager.Abort(ctx, 1, 5); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if len(store.reservations) != 0 {
		t.Fatalf("expected reservation to be deleted on abort")
	}

	// Budget is free again.
	if outcome, err := manager.Reserve(ctx, 2, 5); err != nil || outcome != OutcomeReserved {
		t.Fatalf("expected budget to be reusable after abort: outcome=%v err=%v", outcome, err)
	}
}

func TestSweepReclaimsStaleReservations(t *testing.T) {
	t.Parallel()

	store := newMemStore(100)
	manager := newTestManager(store)
	ctx := context.Background()

	if outcome, err := manager.Reserve(ctx, 1, 5); err != nil || outcome != OutcomeReserved {
		t.Fatalf("setup reservation failed: outcome=%v err=%v", outcome, err)
	}

	// Age the reservation past the TTL.
	store.mu.Lock()
	for key := range store.reservations {
		store.reservations[key] = time.Now().UTC().Add(-time.Hour)
	}
	store.mu.Unlock()

	swept, err := manager.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected one swept reservation, got %d", swept)
	}
	if len(store.reservations) != 0 {
		t.Fatalf("expected stale reservation to be gone")
	}
}
