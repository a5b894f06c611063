package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/repository"
)

type Finalizer interface {
	Finalize(ctx context.Context, sessionID uint) error
}

// FinalizeScheduler holds at most one in-memory one-shot timer per session
// and fires the finalizer at each session's absence boundary. Timer state is
// never persisted: the durable finalized flag plus session timing fields are
// enough to rebuild all pending work on boot, and the finalizer's idempotence
// is the correctness backstop, not timer cancellation.
type FinalizeScheduler struct {
	mu           sync.Mutex
	timers       map[uint]*time.Timer
	finalizer    Finalizer
	sessions     repository.SessionRepository
	clock        Clock
	lateWindow   time.Duration
	safetyOffset time.Duration
}

func NewFinalizeScheduler(finalizer Finalizer, sessions repository.SessionRepository, clock Clock) *FinalizeScheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &FinalizeScheduler{
		timers:       make(map[uint]*time.Timer),
		finalizer:    finalizer,
		sessions:     sessions,
		clock:        clock,
		lateWindow:   DefaultLateWindow,
		safetyOffset: DefaultSafetyOffset,
	}
}

// Schedule arms (or re-arms) the timer for a session. A boundary at or before
// now runs the finalizer synchronously; there is no value in arming a no-op
// wait.
func (s *FinalizeScheduler) Schedule(sessionID uint, runAt time.Time) {
	delay := runAt.Sub(s.clock.Now())
	if delay <= 0 {
		s.Cancel(sessionID)
		if err := s.finalizer.Finalize(context.Background(), sessionID); err != nil {
			slog.Error("immediate finalize failed", "session_id", sessionID, "error", err.Error())
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
	}
	s.timers[sessionID] = time.AfterFunc(delay, func() { s.fire(sessionID) })
	slog.Info("finalize scheduled", "session_id", sessionID, "run_at", runAt)
}

// ScheduleSession computes the session's absence boundary and arms the timer
// for it. Finalized sessions only get their stale timer, if any, cancelled.
func (s *FinalizeScheduler) ScheduleSession(session *domain.Session) {
	if session.Finalized {
		s.Cancel(session.ID)
		return
	}
	s.Schedule(session.ID, session.AbsenceBoundary(s.lateWindow, s.safetyOffset))
}

// Cancel is best-effort and non-blocking: it does not wait for an in-flight
// callback.
func (s *FinalizeScheduler) Cancel(sessionID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
		delete(s.timers, sessionID)
	}
}

// Scheduled reports whether a live timer exists for the session.
func (s *FinalizeScheduler) Scheduled(sessionID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[sessionID]
	return ok
}

// ReconcileOnBoot rebuilds the timer registry from durable state: overdue
// sessions are finalized immediately, future ones get a timer. Individual
// finalize failures are logged and do not abort the pass.
func (s *FinalizeScheduler) ReconcileOnBoot(ctx context.Context) error {
	sessions, err := s.sessions.ListUnfinalized()
	if err != nil {
		return err
	}
	now := s.clock.Now()
	for i := range sessions {
		session := &sessions[i]
		boundary := session.AbsenceBoundary(s.lateWindow, s.safetyOffset)
		if !boundary.After(now) {
			if err := s.finalizer.Finalize(ctx, session.ID); err != nil {
				slog.ErrorContext(ctx, "boot reconciliation finalize failed",
					"session_id", session.ID, "error", err.Error())
			}
			continue
		}
		s.Schedule(session.ID, boundary)
	}
	slog.InfoContext(ctx, "finalize schedule reconciled", "sessions", len(sessions))
	return nil
}

// Shutdown stops every armed timer. In-flight callbacks are not interrupted.
func (s *FinalizeScheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *FinalizeScheduler) fire(sessionID uint) {
	s.mu.Lock()
	delete(s.timers, sessionID)
	s.mu.Unlock()
	if err := s.finalizer.Finalize(context.Background(), sessionID); err != nil {
		slog.Error("scheduled finalize failed", "session_id", sessionID, "error", err.Error())
	}
}
