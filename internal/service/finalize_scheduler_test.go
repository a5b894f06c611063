package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/repository"
)

type countingFinalizer struct {
	mu    sync.Mutex
	calls map[uint]int
}

func newCountingFinalizer() *countingFinalizer {
	return &countingFinalizer{calls: map[uint]int{}}
}

func (f *countingFinalizer) Finalize(_ context.Context, sessionID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[sessionID]++
	return nil
}

func (f *countingFinalizer) count(sessionID uint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[sessionID]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSchedulePastBoundaryFinalizesSynchronously(t *testing.T) {
	fin := newCountingFinalizer()
	sched := NewFinalizeScheduler(fin, nil, SystemClock())

	sched.Schedule(1, time.Now().Add(-time.Minute))

	if fin.count(1) != 1 {
		t.Fatalf("overdue boundary must finalize synchronously, calls=%d", fin.count(1))
	}
	if sched.Scheduled(1) {
		t.Fatal("no timer should remain after a synchronous fire")
	}
}

func TestScheduleFutureBoundaryFires(t *testing.T) {
	fin := newCountingFinalizer()
	sched := NewFinalizeScheduler(fin, nil, SystemClock())

	sched.Schedule(1, time.Now().Add(30*time.Millisecond))
	if !sched.Scheduled(1) {
		t.Fatal("timer should be armed")
	}

	waitFor(t, time.Second, func() bool { return fin.count(1) == 1 })
	if sched.Scheduled(1) {
		t.Fatal("fired timer must remove itself from the registry")
	}
}

func TestScheduleReArmCancelsPriorTimer(t *testing.T) {
	fin := newCountingFinalizer()
	sched := NewFinalizeScheduler(fin, nil, SystemClock())

	sched.Schedule(1, time.Now().Add(time.Hour))
	sched.Schedule(1, time.Now().Add(30*time.Millisecond))

	waitFor(t, time.Second, func() bool { return fin.count(1) == 1 })
	// The first timer was replaced; give it a chance to misfire.
	time.Sleep(50 * time.Millisecond)
	if fin.count(1) != 1 {
		t.Fatalf("re-arm must cancel the prior timer, calls=%d", fin.count(1))
	}
}

func TestCancelPreventsFire(t *testing.T) {
	fin := newCountingFinalizer()
	sched := NewFinalizeScheduler(fin, nil, SystemClock())

	sched.Schedule(1, time.Now().Add(30*time.Millisecond))
	sched.Cancel(1)

	time.Sleep(80 * time.Millisecond)
	if fin.count(1) != 0 {
		t.Fatalf("cancelled timer must not fire, calls=%d", fin.count(1))
	}
	if sched.Scheduled(1) {
		t.Fatal("cancel must clear the registry entry")
	}
}

func TestScheduleSessionSkipsFinalized(t *testing.T) {
	fin := newCountingFinalizer()
	sched := NewFinalizeScheduler(fin, nil, SystemClock())

	sched.Schedule(1, time.Now().Add(time.Hour))
	sched.ScheduleSession(&domain.Session{ID: 1, Finalized: true})

	if sched.Scheduled(1) {
		t.Fatal("scheduling a finalized session must only cancel the stale timer")
	}
	if fin.count(1) != 0 {
		t.Fatalf("finalized session must not be re-finalized, calls=%d", fin.count(1))
	}
}

func TestReconcileOnBootFinalizesOverdueAndArmsFuture(t *testing.T) {
	db := newTestDB(t)
	sessions := repository.NewSessionRepository(db)
	now := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)

	overdue := &domain.Session{
		Title:           "missed while down",
		StartsAt:        now.Add(-2 * time.Hour),
		EndsAt:          now.Add(-90 * time.Minute),
		LateThresholdAt: now.Add(-100 * time.Minute),
	}
	future := &domain.Session{
		Title:           "upcoming",
		StartsAt:        now.Add(2 * time.Hour),
		EndsAt:          now.Add(150 * time.Minute),
		LateThresholdAt: now.Add(140 * time.Minute),
	}
	done := &domain.Session{
		Title:           "already closed",
		StartsAt:        now.Add(-4 * time.Hour),
		EndsAt:          now.Add(-210 * time.Minute),
		LateThresholdAt: now.Add(-220 * time.Minute),
	}
	for _, s := range []*domain.Session{overdue, future, done} {
		if err := sessions.Create(s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := sessions.MarkFinalized(done.ID, now.Add(-3*time.Hour)); err != nil {
		t.Fatalf("mark finalized: %v", err)
	}

	fin := newCountingFinalizer()
	sched := NewFinalizeScheduler(fin, sessions, fixedClock(now))
	t.Cleanup(sched.Shutdown)

	if err := sched.ReconcileOnBoot(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if fin.count(overdue.ID) != 1 {
		t.Fatalf("overdue session must be finalized immediately, calls=%d", fin.count(overdue.ID))
	}
	if !sched.Scheduled(future.ID) {
		t.Fatal("future session must get a timer")
	}
	if fin.count(done.ID) != 0 || sched.Scheduled(done.ID) {
		t.Fatal("finalized session must be left alone")
	}
}
